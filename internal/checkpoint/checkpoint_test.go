package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

func sampleState(desc string) *core.WorkflowState {
	s := core.NewWorkflowState(core.NewTaskID(), desc, core.TaskTypeCodeGeneration)
	s.Status = core.WorkflowStatusRunning
	s.GeneratedCode = "package main"
	return s
}

// exerciseStore runs the shared contract against a backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	cp, err := store.Latest(ctx, "wf-1")
	require.NoError(t, err)
	assert.Nil(t, cp, "empty store returns nil, not an error")

	state := sampleState("build the thing")
	require.NoError(t, store.Put(ctx, "wf-1", core.PhaseRepositoryAnalysis, state))

	state.RetryCount = 1
	require.NoError(t, store.Put(ctx, "wf-1", core.PhaseCodeGeneration, state))

	cp, err = store.Latest(ctx, "wf-1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, core.PhaseCodeGeneration, cp.Phase)
	assert.Equal(t, "wf-1", cp.WorkflowID)
	assert.Equal(t, 1, cp.State.RetryCount)
	assert.Equal(t, "package main", cp.State.GeneratedCode)

	phases, err := store.Phases(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, []core.Phase{core.PhaseRepositoryAnalysis, core.PhaseCodeGeneration}, phases)

	// Workflows do not leak into each other.
	other, err := store.Latest(ctx, "wf-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, store.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoints"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestMemoryStoreSnapshotsState(t *testing.T) {
	store := NewMemoryStore()
	state := sampleState("mutation isolation")
	require.NoError(t, store.Put(context.Background(), "wf-1", core.PhaseCodeGeneration, state))

	state.GeneratedCode = "mutated after checkpoint"

	cp, err := store.Latest(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "package main", cp.State.GeneratedCode)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoints")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	state := sampleState("persist me")
	require.NoError(t, store.Put(context.Background(), "wf-1", core.PhasePlanSynthesis, state))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	cp, err := reopened.Latest(context.Background(), "wf-1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, core.PhasePlanSynthesis, cp.Phase)
	assert.Equal(t, "persist me", cp.State.Description)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = New(BackendFile, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	_, err = New("bogus", "")
	assert.Error(t, err)
}
