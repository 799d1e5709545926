// Package checkpoint persists workflow state snapshots after each
// phase so interrupted workflows can resume at the recorded phase.
// Three backends exist: in-memory (default), a SQLite key-value store
// for production, and atomic JSON files.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
)

// Checkpoint is one persisted (workflow, phase, state) triple.
type Checkpoint struct {
	WorkflowID string              `json:"workflow_id"`
	Phase      core.Phase          `json:"phase"`
	State      *core.WorkflowState `json:"state"`
	SavedAt    time.Time           `json:"saved_at"`
}

// Store is the checkpoint store contract.
type Store interface {
	// Put persists a snapshot for the workflow at the given phase.
	Put(ctx context.Context, workflowID string, phase core.Phase, state *core.WorkflowState) error
	// Latest returns the most recent checkpoint, or nil when none exists.
	Latest(ctx context.Context, workflowID string) (*Checkpoint, error)
	// Phases returns the phases checkpointed for a workflow, in order.
	Phases(ctx context.Context, workflowID string) ([]core.Phase, error)
	// Close releases backend resources.
	Close() error
}

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendKV     = "kv"
	BackendFile   = "file"
)

// New creates a store for the named backend. path is the database file
// for kv and the snapshot directory for file.
func New(backend, path string) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendKV:
		return NewSQLiteStore(path)
	case BackendFile:
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", backend)
	}
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string][]*Checkpoint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string][]*Checkpoint)}
}

// Put appends a snapshot for the workflow.
func (s *MemoryStore) Put(_ context.Context, workflowID string, phase core.Phase, state *core.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[workflowID] = append(s.checkpoints[workflowID], &Checkpoint{
		WorkflowID: workflowID,
		Phase:      phase,
		State:      state.Snapshot(),
		SavedAt:    time.Now(),
	})
	return nil
}

// Latest returns the most recent checkpoint for the workflow.
func (s *MemoryStore) Latest(_ context.Context, workflowID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.checkpoints[workflowID]
	if len(cps) == 0 {
		return nil, nil
	}
	return cps[len(cps)-1], nil
}

// Phases lists the checkpointed phases in write order.
func (s *MemoryStore) Phases(_ context.Context, workflowID string) ([]core.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.checkpoints[workflowID]
	out := make([]core.Phase, 0, len(cps))
	for _, cp := range cps {
		out = append(out, cp.Phase)
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
