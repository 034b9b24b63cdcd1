// Package testscheduler implements the test scheduler (C6) from spec.md
// §4.6: input resolution, gating checks, workflow submission, and the
// Result status state machine.
package testscheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/computor-platform/computor-api/internal/apierr"
	"github.com/computor-platform/computor-api/internal/domain"
	"github.com/computor-platform/computor-api/internal/taskexec"
)

// ErrConflict is returned by Repo.CreateResult when the partial uniqueness
// index on (course_member_id, course_content_id, version_identifier) rejects
// a concurrent insert; the service translates it into apierr.AlreadyRunning.
var ErrConflict = errors.New("non-terminal result already exists for this version")

// Repo is the persistence slice the scheduler needs.
type Repo interface {
	GetSubmissionArtifact(ctx context.Context, id string) (*domain.SubmissionArtifact, error)
	GetLatestArtifact(ctx context.Context, submissionGroupID string) (*domain.SubmissionArtifact, error)
	GetArtifactByVersion(ctx context.Context, submissionGroupID, versionIdentifier string) (*domain.SubmissionArtifact, error)
	GetSubmissionGroup(ctx context.Context, id string) (*domain.SubmissionGroup, error)
	GetCourseContent(ctx context.Context, id string) (*domain.CourseContent, error)
	GetCourseContentType(ctx context.Context, id string) (*domain.CourseContentType, error)
	GetCourseContentDeployment(ctx context.Context, contentID string) (*domain.CourseContentDeployment, error)
	IsGroupMember(ctx context.Context, groupID, courseMemberID string) (bool, error)

	FindActiveResult(ctx context.Context, artifactID, courseMemberID string) (*domain.Result, error)
	FindFinishedResult(ctx context.Context, courseMemberID, contentID, versionIdentifier string) (*domain.Result, error)
	CountTestRuns(ctx context.Context, submissionGroupID string) (int, error)
	CreateResult(ctx context.Context, r domain.Result) (*domain.Result, error)
	UpdateResultStatus(ctx context.Context, resultID string, status domain.ResultStatus, grade *float64, resultJSON, logText string) error
}

// CreateTestRequest resolves to exactly one SubmissionArtifact per §4.6's
// input-resolution rule.
type CreateTestRequest struct {
	ArtifactID         string
	SubmissionGroupID  string
	VersionIdentifier  string
	CourseMemberID     string
	ElevatedCourseRole bool
}

type Scheduler struct {
	repo     Repo
	executor taskexec.Executor
}

func New(repo Repo, executor taskexec.Executor) *Scheduler {
	return &Scheduler{repo: repo, executor: executor}
}

// CreateTest runs the §4.6 gating checks and, if they all pass, submits a new
// grading task and returns the Result row tracking it.
func (s *Scheduler) CreateTest(ctx context.Context, req CreateTestRequest) (*domain.Result, error) {
	artifact, err := s.resolveArtifact(ctx, req)
	if err != nil {
		return nil, err
	}

	if !req.ElevatedCourseRole {
		isMember, err := s.repo.IsGroupMember(ctx, artifact.SubmissionGroupID, req.CourseMemberID)
		if err != nil {
			return nil, apierr.Database(err, "check group membership")
		}
		if !isMember {
			return nil, apierr.Forbidden("principal is not a member of submission group %q", artifact.SubmissionGroupID)
		}
	}

	content, err := s.contentForArtifact(ctx, artifact)
	if err != nil {
		return nil, err
	}

	contentType, err := s.repo.GetCourseContentType(ctx, content.CourseContentTypeID)
	if err != nil {
		return nil, apierr.Database(err, "load course content type")
	}
	if contentType == nil || contentType.ExecutionBackendID == "" {
		return nil, apierr.BadRequest("content has no configured execution backend")
	}

	active, err := s.repo.FindActiveResult(ctx, artifact.ID, req.CourseMemberID)
	if err != nil {
		return nil, apierr.Database(err, "look up active result")
	}
	if active != nil {
		reconciled, err := s.reconcile(ctx, active)
		if err != nil {
			return nil, err
		}
		if reconciled != nil {
			// Workflow engine still reports it in flight: no new run.
			return reconciled, nil
		}
	}

	finished, err := s.repo.FindFinishedResult(ctx, req.CourseMemberID, content.ID, artifact.VersionIdentifier)
	if err != nil {
		return nil, apierr.Database(err, "look up finished result")
	}
	if finished != nil {
		return nil, apierr.Conflict("already tested; only crashed/cancelled runs may be retried")
	}

	group, err := s.repo.GetSubmissionGroup(ctx, artifact.SubmissionGroupID)
	if err != nil {
		return nil, apierr.Database(err, "load submission group")
	}
	if group == nil {
		return nil, apierr.NotFound("SubmissionGroup", artifact.SubmissionGroupID)
	}
	if group.MaxTestRuns != nil {
		count, err := s.repo.CountTestRuns(ctx, group.ID)
		if err != nil {
			return nil, apierr.Database(err, "count test runs")
		}
		if count >= *group.MaxTestRuns {
			return nil, apierr.BadRequest("submission group has reached its max_test_runs limit")
		}
	}

	deployment, err := s.repo.GetCourseContentDeployment(ctx, content.ID)
	if err != nil {
		return nil, apierr.Database(err, "load course content deployment")
	}
	if deployment == nil || deployment.DeploymentPath == "" || deployment.VersionIdentifier == "" {
		return nil, apierr.BadRequest("assignment not released")
	}

	workflowID := "student-testing-" + uuid.NewString()

	result, err := s.repo.CreateResult(ctx, domain.Result{
		SubmissionArtifactID: artifact.ID,
		CourseMemberID:       req.CourseMemberID,
		CourseContentID:      content.ID,
		CourseContentTypeID:  content.CourseContentTypeID,
		ExecutionBackendID:   contentType.ExecutionBackendID,
		TestSystemID:         workflowID,
		Status:               domain.ResultScheduled,
		VersionIdentifier:    artifact.VersionIdentifier,
		ReferenceVersionIdentifier: deployment.VersionIdentifier,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, apierr.AlreadyRunning("a test is already running for this version")
		}
		return nil, apierr.Database(err, "create result row")
	}

	_, submitErr := s.executor.SubmitTask(ctx, taskexec.SubmitTaskInput{
		ResultID:           result.ID,
		ExecutionBackendID: contentType.ExecutionBackendID,
		SubmissionBucket:   artifact.Bucket,
		SubmissionKey:      artifact.ObjectKey,
		ReferenceKey:       deployment.DeploymentPath,
		VersionIdentifier:  artifact.VersionIdentifier,
	})
	if submitErr != nil {
		msg := fmt.Sprintf("workflow submission failed: %v", submitErr)
		if err := s.repo.UpdateResultStatus(ctx, result.ID, domain.ResultFailed, nil, "", msg); err != nil {
			return nil, apierr.Database(err, "mark result failed after submission error")
		}
		return nil, apierr.External(apierr.CodeExternalWorkflow, submitErr, "submit grading task")
	}

	return result, nil
}

// reconcile queries the workflow engine for a non-terminal Result. If the
// workflow is still in flight it returns the Result unchanged (no new run
// should be started); otherwise it commits the terminal status and returns
// nil so the caller proceeds to evaluate a new run.
func (s *Scheduler) reconcile(ctx context.Context, r *domain.Result) (*domain.Result, error) {
	status, err := s.executor.GetTaskStatus(ctx, r.TestSystemID)
	if err != nil {
		// Workflow id unknown to the engine: treat as crashed.
		if uerr := s.repo.UpdateResultStatus(ctx, r.ID, domain.ResultCrashed, nil, "", err.Error()); uerr != nil {
			return nil, apierr.Database(uerr, "mark result crashed")
		}
		return nil, nil
	}

	switch status {
	case taskexec.StatusScheduled, taskexec.StatusRunning:
		return r, nil
	case taskexec.StatusCompleted:
		res, err := s.executor.GetTaskResult(ctx, r.TestSystemID)
		if err != nil {
			return nil, apierr.External(apierr.CodeExternalWorkflow, err, "fetch task result")
		}
		if err := s.repo.UpdateResultStatus(ctx, r.ID, domain.ResultFinished, res.Grade, res.ResultJSON, res.LogText); err != nil {
			return nil, apierr.Database(err, "mark result finished")
		}
		return nil, nil
	case taskexec.StatusCancelled:
		if err := s.repo.UpdateResultStatus(ctx, r.ID, domain.ResultCancelled, nil, "", ""); err != nil {
			return nil, apierr.Database(err, "mark result cancelled")
		}
		return nil, nil
	case taskexec.StatusFailed:
		if err := s.repo.UpdateResultStatus(ctx, r.ID, domain.ResultFailed, nil, "", "workflow reported failure"); err != nil {
			return nil, apierr.Database(err, "mark result failed")
		}
		return nil, nil
	default:
		if err := s.repo.UpdateResultStatus(ctx, r.ID, domain.ResultCrashed, nil, "", "unknown workflow status"); err != nil {
			return nil, apierr.Database(err, "mark result crashed")
		}
		return nil, nil
	}
}

func (s *Scheduler) resolveArtifact(ctx context.Context, req CreateTestRequest) (*domain.SubmissionArtifact, error) {
	var (
		artifact *domain.SubmissionArtifact
		err      error
	)
	switch {
	case req.ArtifactID != "":
		artifact, err = s.repo.GetSubmissionArtifact(ctx, req.ArtifactID)
	case req.SubmissionGroupID != "" && req.VersionIdentifier != "":
		artifact, err = s.repo.GetArtifactByVersion(ctx, req.SubmissionGroupID, req.VersionIdentifier)
	case req.SubmissionGroupID != "":
		artifact, err = s.repo.GetLatestArtifact(ctx, req.SubmissionGroupID)
	default:
		return nil, apierr.BadRequest("one of artifact_id or submission_group_id is required")
	}
	if err != nil {
		return nil, apierr.Database(err, "resolve submission artifact")
	}
	if artifact == nil {
		return nil, apierr.NotFound("SubmissionArtifact", req.ArtifactID)
	}
	return artifact, nil
}

func (s *Scheduler) contentForArtifact(ctx context.Context, artifact *domain.SubmissionArtifact) (*domain.CourseContent, error) {
	group, err := s.repo.GetSubmissionGroup(ctx, artifact.SubmissionGroupID)
	if err != nil {
		return nil, apierr.Database(err, "load submission group")
	}
	if group == nil {
		return nil, apierr.NotFound("SubmissionGroup", artifact.SubmissionGroupID)
	}

	content, err := s.repo.GetCourseContent(ctx, group.CourseContentID)
	if err != nil {
		return nil, apierr.Database(err, "load course content")
	}
	if content == nil {
		return nil, apierr.NotFound("CourseContent", group.CourseContentID)
	}
	return content, nil
}
