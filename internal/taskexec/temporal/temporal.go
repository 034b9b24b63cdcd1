// Package temporal adapts the taskexec.Executor boundary onto a real
// Temporal cluster: submit_task starts a workflow, get_task_status/
// get_task_result query it.
package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/computor-platform/computor-api/internal/taskexec"
)

const WorkflowName = "GradingWorkflow"

// Adapter wraps a Temporal client. The worker process (cmd/computor-api or a
// dedicated worker binary) registers GradingWorkflow and its activities
// separately; Adapter only starts and queries executions.
type Adapter struct {
	client    client.Client
	taskQueue string
}

func New(c client.Client, taskQueue string) *Adapter {
	return &Adapter{client: c, taskQueue: taskQueue}
}

func (a *Adapter) SubmitTask(ctx context.Context, in taskexec.SubmitTaskInput) (string, error) {
	workflowID := "result-" + in.ResultID

	opts := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             a.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}

	_, err := a.client.ExecuteWorkflow(ctx, opts, WorkflowName, in)
	if err != nil {
		var already *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &already) {
			return workflowID, nil
		}
		return "", fmt.Errorf("start grading workflow: %w", err)
	}
	return workflowID, nil
}

func (a *Adapter) GetTaskStatus(ctx context.Context, workflowID string) (taskexec.TaskStatus, error) {
	desc, err := a.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return "", fmt.Errorf("describe workflow %s: %w", workflowID, err)
	}

	switch desc.WorkflowExecutionInfo.GetStatus() {
	case enums.WORKFLOW_EXECUTION_STATUS_RUNNING:
		return taskexec.StatusRunning, nil
	case enums.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return taskexec.StatusCompleted, nil
	case enums.WORKFLOW_EXECUTION_STATUS_FAILED, enums.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return taskexec.StatusFailed, nil
	case enums.WORKFLOW_EXECUTION_STATUS_CANCELED, enums.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return taskexec.StatusCancelled, nil
	default:
		return taskexec.StatusScheduled, nil
	}
}

func (a *Adapter) GetTaskResult(ctx context.Context, workflowID string) (*taskexec.TaskResult, error) {
	status, err := a.GetTaskStatus(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if status != taskexec.StatusCompleted && status != taskexec.StatusFailed {
		return &taskexec.TaskResult{Status: status}, nil
	}

	var result taskexec.TaskResult
	run := a.client.GetWorkflow(ctx, workflowID, "")
	if err := run.Get(ctx, &result); err != nil {
		return &taskexec.TaskResult{Status: taskexec.StatusFailed, LogText: err.Error()}, nil
	}
	result.Status = status
	return &result, nil
}

func (a *Adapter) CancelTask(ctx context.Context, workflowID string) error {
	if err := a.client.CancelWorkflow(ctx, workflowID, ""); err != nil {
		return fmt.Errorf("cancel workflow %s: %w", workflowID, err)
	}
	return nil
}
