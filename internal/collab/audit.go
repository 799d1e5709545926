package collab

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AuditRecord is one append-only invocation record.
type AuditRecord struct {
	ID          string                 `json:"id"`
	At          time.Time              `json:"at"`
	Tenant      string                 `json:"tenant"`
	Actor       string                 `json:"actor"`
	Service     string                 `json:"service"`
	Tool        string                 `json:"tool"`
	Request     map[string]interface{} `json:"request,omitempty"`
	Response    map[string]interface{} `json:"response,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Provider    string                 `json:"provider,omitempty"`
	ResourceRef string                 `json:"resource_ref,omitempty"`
	IP          string                 `json:"ip,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
}

// AuditSink records invocations. Sink failures must never fail the
// primary operation; callers log and continue.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
	Close() error
}

// NopAuditSink discards records.
type NopAuditSink struct{}

// Record discards the record.
func (NopAuditSink) Record(context.Context, AuditRecord) error { return nil }

// Close is a no-op.
func (NopAuditSink) Close() error { return nil }

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id           TEXT PRIMARY KEY,
	at           TIMESTAMP NOT NULL,
	tenant       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	service      TEXT NOT NULL,
	tool         TEXT NOT NULL,
	request      TEXT,
	response     TEXT,
	error        TEXT,
	provider     TEXT,
	resource_ref TEXT,
	ip           TEXT,
	user_agent   TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_tenant_at ON audit_log(tenant, at);
`

// SQLiteAuditSink appends records to a SQLite database.
type SQLiteAuditSink struct {
	db *sql.DB
}

// NewSQLiteAuditSink opens (and migrates) the audit database.
func NewSQLiteAuditSink(dbPath string) (*SQLiteAuditSink, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}
	return &SQLiteAuditSink{db: db}, nil
}

// Record inserts one row. The record ID is generated when absent.
func (s *SQLiteAuditSink) Record(ctx context.Context, rec AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}

	reqJSON, err := marshalNullable(rec.Request)
	if err != nil {
		return fmt.Errorf("marshaling audit request: %w", err)
	}
	respJSON, err := marshalNullable(rec.Response)
	if err != nil {
		return fmt.Errorf("marshaling audit response: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, tenant, actor, service, tool, request, response, error, provider, resource_ref, ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.At, rec.Tenant, rec.Actor, rec.Service, rec.Tool,
		reqJSON, respJSON, rec.Error, rec.Provider, rec.ResourceRef, rec.IP, rec.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteAuditSink) Close() error {
	return s.db.Close()
}

func marshalNullable(m map[string]interface{}) (interface{}, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
