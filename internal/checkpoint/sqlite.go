package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hivemind-labs/hiveflow/internal/core"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	workflow_id TEXT NOT NULL,
	phase       TEXT NOT NULL,
	state       TEXT NOT NULL,
	saved_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON checkpoints(workflow_id, seq);
`

// SQLiteStore persists checkpoints in a SQLite database. This is the
// production key-value backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the checkpoint database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put inserts a snapshot row.
func (s *SQLiteStore) Put(ctx context.Context, workflowID string, phase core.Phase, state *core.WorkflowState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (workflow_id, phase, state, saved_at) VALUES (?, ?, ?, ?)`,
		workflowID, string(phase), string(stateJSON), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent checkpoint for the workflow.
func (s *SQLiteStore) Latest(ctx context.Context, workflowID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phase, state, saved_at FROM checkpoints WHERE workflow_id = ? ORDER BY seq DESC LIMIT 1`,
		workflowID,
	)

	var phase, stateJSON string
	var savedAt time.Time
	if err := row.Scan(&phase, &stateJSON, &savedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}

	var state core.WorkflowState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint state: %w", err)
	}

	return &Checkpoint{
		WorkflowID: workflowID,
		Phase:      core.Phase(phase),
		State:      &state,
		SavedAt:    savedAt,
	}, nil
}

// Phases lists the checkpointed phases in write order.
func (s *SQLiteStore) Phases(ctx context.Context, workflowID string) ([]core.Phase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phase FROM checkpoints WHERE workflow_id = ? ORDER BY seq`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.Phase
	for rows.Next() {
		var phase string
		if err := rows.Scan(&phase); err != nil {
			return nil, fmt.Errorf("scanning checkpoint phase: %w", err)
		}
		out = append(out, core.Phase(phase))
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
