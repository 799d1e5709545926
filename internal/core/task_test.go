package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLifecycle(t *testing.T) {
	task := NewTask("implement feature", TaskTypeCodeGeneration)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.IsTerminal())

	require.NoError(t, task.MarkInProgress("coder-1"))
	assert.Equal(t, TaskStatusInProgress, task.Status)
	assert.Equal(t, "coder-1", task.AssignedAgent)
	assert.NotNil(t, task.StartedAt)

	require.NoError(t, task.MarkCompleted(map[string]interface{}{"code": "ok"}))
	assert.True(t, task.IsTerminal())
	assert.True(t, task.IsSuccess())
	assert.NotNil(t, task.CompletedAt)
}

func TestTaskInvalidTransitions(t *testing.T) {
	task := NewTask("x", TaskTypeDebugging)

	err := task.MarkCompleted(nil)
	require.Error(t, err)
	assert.Equal(t, ErrCatState, GetCategory(err))

	require.NoError(t, task.MarkInProgress("a"))
	require.NoError(t, task.MarkFailed(errors.New("boom")))
	assert.Equal(t, TaskStatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)

	// Terminal tasks cannot restart.
	assert.Error(t, task.MarkInProgress("b"))
}

func TestTaskCancelIdempotent(t *testing.T) {
	task := NewTask("x", TaskTypeOptimization)
	require.NoError(t, task.MarkCancelled("shutdown"))
	assert.Equal(t, TaskStatusCancelled, task.Status)

	// Cancelling again is a no-op.
	require.NoError(t, task.MarkCancelled("again"))
	assert.Equal(t, "shutdown", task.Error)

	done := NewTask("y", TaskTypeOptimization)
	require.NoError(t, done.MarkInProgress("a"))
	require.NoError(t, done.MarkCompleted(nil))
	assert.Error(t, done.MarkCancelled("too late"))
}

func TestTaskCloneIsDeep(t *testing.T) {
	task := NewTask("x", TaskTypePlanning).WithContext(map[string]interface{}{"k": "v"})
	require.NoError(t, task.MarkInProgress("a"))
	require.NoError(t, task.MarkCompleted(map[string]interface{}{"out": 1}))

	clone := task.Clone()
	clone.Context["k"] = "mutated"
	clone.Result["out"] = 2

	assert.Equal(t, "v", task.Context["k"])
	assert.Equal(t, 1, task.Result["out"])
}

func TestTaskValidate(t *testing.T) {
	task := NewTask("", TaskTypePlanning)
	assert.Error(t, task.Validate())

	task.Title = "ok"
	assert.NoError(t, task.Validate())
}

func TestCapabilityFor(t *testing.T) {
	assert.Equal(t, "handle_code_generation", CapabilityFor(TaskTypeCodeGeneration))
}
