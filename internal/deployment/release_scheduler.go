// release_scheduler.go polls in-flight deployments (pending/deploying) and
// reconciles their status from the task executor, appending history entries
// as the release workflow moves a deployment toward deployed or failed. Only
// one instance in a cluster runs the poll loop at a time, guarded by the
// cluster package's leader lock, mirroring the teacher's cron-trigger
// scheduler.
package deployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rakunlabs/logi"
	"github.com/worldline-go/hardloop"

	"github.com/computor-platform/computor-api/internal/cluster"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/taskexec"
)

// ReleaseRepo extends Repo with the scan queries the release poller needs.
type ReleaseRepo interface {
	Repo
	ListDeploymentsByStatus(ctx context.Context, statuses ...domain.DeploymentStatus) ([]domain.CourseContentDeployment, error)
}

type cronRunner interface {
	Start(ctx context.Context) error
	Stop()
}

// ReleaseScheduler drives phase 2 of §4.7: moving pending → deploying →
// deployed|failed by polling the workflow each deployment's WorkflowID was
// submitted under.
type ReleaseScheduler struct {
	repo     ReleaseRepo
	executor taskexec.Executor
	cluster  *cluster.Cluster
	interval time.Duration

	mu     sync.Mutex
	cron   cronRunner
	cancel context.CancelFunc
}

func NewReleaseScheduler(repo ReleaseRepo, executor taskexec.Executor, cl *cluster.Cluster, interval time.Duration) *ReleaseScheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ReleaseScheduler{repo: repo, executor: executor, cluster: cl, interval: interval}
}

// Start begins polling. If cluster is non-nil, only the node holding the
// deployment-release leader lock actually polls.
func (s *ReleaseScheduler) Start(ctx context.Context) error {
	if s.cluster == nil {
		return s.startPolling(ctx)
	}

	go s.runLockLoop(ctx)
	return nil
}

func (s *ReleaseScheduler) runLockLoop(ctx context.Context) {
	logger := logi.Ctx(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.cluster.LockScheduler(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("release scheduler: failed to acquire leader lock, retrying", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		logger.Info("release scheduler: acquired leader lock")
		if err := s.startPolling(ctx); err != nil {
			logger.Error("release scheduler: failed to start poll loop", "error", err)
		}

		<-ctx.Done()
		s.Stop()
		s.cluster.UnlockScheduler()
		return
	}
}

func (s *ReleaseScheduler) startPolling(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cronJob, err := hardloop.NewCron(hardloop.Cron{
		Name:  "deployment-release-poll",
		Specs: []string{fmt.Sprintf("@every %s", s.interval)},
		Func:  s.pollOnce,
	})
	if err != nil {
		return fmt.Errorf("release scheduler: create poll loop: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = cronJob

	if err := cronJob.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("release scheduler: start poll loop: %w", err)
	}
	return nil
}

func (s *ReleaseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *ReleaseScheduler) pollOnce(ctx context.Context) error {
	logger := logi.Ctx(ctx)

	deployments, err := s.repo.ListDeploymentsByStatus(ctx, domain.DeploymentPending, domain.DeploymentDeploying)
	if err != nil {
		logger.Error("release scheduler: list in-flight deployments failed", "error", err)
		return nil
	}

	for _, d := range deployments {
		if d.WorkflowID == "" {
			continue
		}
		if err := s.reconcileOne(ctx, d); err != nil {
			logger.Error("release scheduler: reconcile failed", "deployment_id", d.ID, "error", err)
		}
	}
	return nil
}

func (s *ReleaseScheduler) reconcileOne(ctx context.Context, d domain.CourseContentDeployment) error {
	status, err := s.executor.GetTaskStatus(ctx, d.WorkflowID)
	if err != nil {
		return s.transition(ctx, d, domain.DeploymentFailed, domain.DeploymentActionDeployFailed, err.Error())
	}

	switch status {
	case taskexec.StatusScheduled, taskexec.StatusRunning:
		if d.DeploymentStatus == domain.DeploymentPending {
			return s.transition(ctx, d, domain.DeploymentDeploying, domain.DeploymentActionDeployStarted, "")
		}
		return nil
	case taskexec.StatusCompleted:
		return s.transition(ctx, d, domain.DeploymentDeployed, domain.DeploymentActionDeploySucceeded, "")
	case taskexec.StatusFailed, taskexec.StatusCancelled:
		return s.transition(ctx, d, domain.DeploymentFailed, domain.DeploymentActionDeployFailed, "")
	default:
		return nil
	}
}

func (s *ReleaseScheduler) transition(ctx context.Context, d domain.CourseContentDeployment, status domain.DeploymentStatus, action domain.DeploymentAction, message string) error {
	d.DeploymentStatus = status
	if _, err := s.repo.UpdateDeployment(ctx, d); err != nil {
		return err
	}
	return s.repo.AppendHistory(ctx, domain.DeploymentHistory{
		DeploymentID: d.ID,
		Action:       action,
		Message:      message,
	})
}
