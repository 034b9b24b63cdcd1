package fake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/computor-platform/computor-api/internal/taskexec"
)

func TestSubmitAndGetStatusDefaultsToCompleted(t *testing.T) {
	a := New()

	id, err := a.SubmitTask(context.Background(), taskexec.SubmitTaskInput{ResultID: "r1"})
	require.NoError(t, err)

	status, err := a.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, taskexec.StatusCompleted, status)
}

func TestOnSubmitOverridesResult(t *testing.T) {
	a := New()
	a.OnSubmit = func(in taskexec.SubmitTaskInput) taskexec.TaskResult {
		grade := 0.5
		return taskexec.TaskResult{Status: taskexec.StatusFailed, Grade: &grade, LogText: "boom"}
	}

	id, err := a.SubmitTask(context.Background(), taskexec.SubmitTaskInput{ResultID: "r2"})
	require.NoError(t, err)

	result, err := a.GetTaskResult(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, taskexec.StatusFailed, result.Status)
	assert.Equal(t, "boom", result.LogText)
}

func TestCancelTaskMarksCancelled(t *testing.T) {
	a := New()
	id, err := a.SubmitTask(context.Background(), taskexec.SubmitTaskInput{ResultID: "r3"})
	require.NoError(t, err)

	require.NoError(t, a.CancelTask(context.Background(), id))

	status, err := a.GetTaskStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, taskexec.StatusCancelled, status)
}

func TestUnknownWorkflowIDErrors(t *testing.T) {
	a := New()
	_, err := a.GetTaskStatus(context.Background(), "missing")
	assert.Error(t, err)
}
