// Package fake is an in-memory taskexec.Executor used by tests and local
// development without a Temporal cluster.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/computor-platform/computor-api/internal/taskexec"
)

type Adapter struct {
	mu      sync.Mutex
	counter int
	tasks   map[string]*taskexec.TaskResult
	// OnSubmit lets tests control the outcome recorded for each submitted
	// task; when nil, every task completes immediately with StatusCompleted.
	OnSubmit func(in taskexec.SubmitTaskInput) taskexec.TaskResult
}

func New() *Adapter {
	return &Adapter{tasks: make(map[string]*taskexec.TaskResult)}
}

func (a *Adapter) SubmitTask(_ context.Context, in taskexec.SubmitTaskInput) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counter++
	workflowID := fmt.Sprintf("fake-%d", a.counter)

	var result taskexec.TaskResult
	if a.OnSubmit != nil {
		result = a.OnSubmit(in)
	} else {
		result = taskexec.TaskResult{Status: taskexec.StatusCompleted}
	}
	a.tasks[workflowID] = &result
	return workflowID, nil
}

func (a *Adapter) GetTaskStatus(_ context.Context, workflowID string) (taskexec.TaskStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, ok := a.tasks[workflowID]
	if !ok {
		return "", fmt.Errorf("unknown workflow id %q", workflowID)
	}
	return result.Status, nil
}

func (a *Adapter) GetTaskResult(_ context.Context, workflowID string) (*taskexec.TaskResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, ok := a.tasks[workflowID]
	if !ok {
		return nil, fmt.Errorf("unknown workflow id %q", workflowID)
	}
	return result, nil
}

func (a *Adapter) CancelTask(_ context.Context, workflowID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	result, ok := a.tasks[workflowID]
	if !ok {
		return fmt.Errorf("unknown workflow id %q", workflowID)
	}
	result.Status = taskexec.StatusCancelled
	return nil
}
