// Package taskexec defines the task-execution boundary (C10): submitting a
// grading run, polling its status, and fetching its result, independent of
// the workflow engine behind it. internal/taskexec/temporal and
// internal/taskexec/fake provide the two adapters.
package taskexec

import "context"

// TaskStatus mirrors the coarse states a submitted task can occupy, decoupled
// from domain.ResultStatus so the executor boundary does not leak grading
// vocabulary.
type TaskStatus string

const (
	StatusScheduled TaskStatus = "scheduled"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// SubmitTaskInput carries everything a test-execution backend needs to run
// one grading pass over one SubmissionArtifact.
type SubmitTaskInput struct {
	ResultID           string
	ExecutionBackendID string
	SubmissionBucket   string
	SubmissionKey      string
	ReferenceBucket    string
	ReferenceKey       string
	VersionIdentifier  string
}

// TaskResult is the terminal outcome of a task, decoded from whatever shape
// the backend returns.
type TaskResult struct {
	Status     TaskStatus
	Grade      *float64
	ResultJSON string
	LogText    string
}

// Executor is the C10 boundary. Implementations must not suspend callers
// waiting on workflow completion; get_task_status is polled.
type Executor interface {
	SubmitTask(ctx context.Context, in SubmitTaskInput) (workflowID string, err error)
	GetTaskStatus(ctx context.Context, workflowID string) (TaskStatus, error)
	GetTaskResult(ctx context.Context, workflowID string) (*TaskResult, error)
	CancelTask(ctx context.Context, workflowID string) error
}
