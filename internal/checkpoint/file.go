package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/hivemind-labs/hiveflow/internal/core"
)

// fileRecord is the on-disk layout: the full checkpoint history for
// one workflow, latest last.
type fileRecord struct {
	WorkflowID  string        `json:"workflow_id"`
	Checkpoints []*Checkpoint `json:"checkpoints"`
}

// FileStore persists checkpoints as one JSON file per workflow,
// written atomically so a crash never leaves a torn snapshot.
type FileStore struct {
	dir string
}

// NewFileStore creates the snapshot directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}

func (s *FileStore) load(workflowID string) (*fileRecord, error) {
	data, err := os.ReadFile(s.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return &fileRecord{WorkflowID: workflowID}, nil
		}
		return nil, fmt.Errorf("reading checkpoint file: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint file: %w", err)
	}
	return &rec, nil
}

// Put appends a snapshot and rewrites the workflow file atomically.
func (s *FileStore) Put(_ context.Context, workflowID string, phase core.Phase, state *core.WorkflowState) error {
	rec, err := s.load(workflowID)
	if err != nil {
		return err
	}
	rec.Checkpoints = append(rec.Checkpoints, &Checkpoint{
		WorkflowID: workflowID,
		Phase:      phase,
		State:      state.Snapshot(),
		SavedAt:    time.Now(),
	})

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint file: %w", err)
	}
	if err := renameio.WriteFile(s.path(workflowID), data, 0o640); err != nil {
		return fmt.Errorf("writing checkpoint file: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint for the workflow.
func (s *FileStore) Latest(_ context.Context, workflowID string) (*Checkpoint, error) {
	rec, err := s.load(workflowID)
	if err != nil {
		return nil, err
	}
	if len(rec.Checkpoints) == 0 {
		return nil, nil
	}
	return rec.Checkpoints[len(rec.Checkpoints)-1], nil
}

// Phases lists the checkpointed phases in write order.
func (s *FileStore) Phases(_ context.Context, workflowID string) ([]core.Phase, error) {
	rec, err := s.load(workflowID)
	if err != nil {
		return nil, err
	}
	out := make([]core.Phase, 0, len(rec.Checkpoints))
	for _, cp := range rec.Checkpoints {
		out = append(out, cp.Phase)
	}
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
