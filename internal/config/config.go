// Package config loads coordinator configuration from flags,
// environment variables, config files and defaults.
package config

import (
	"strings"
	"time"
)

// Config is the root configuration for the coordinator.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Collab     CollabConfig     `mapstructure:"collaborators"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP front-end.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	CORSOrigins string `mapstructure:"cors_origins"` // csv
}

// Origins splits the CSV origin list. Empty means allow all.
func (s ServerConfig) Origins() []string {
	if strings.TrimSpace(s.CORSOrigins) == "" {
		return []string{"*"}
	}
	parts := strings.Split(s.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WorkflowConfig configures the workflow engine.
type WorkflowConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the global workflow deadline. Zero is treated as
// unset and falls back to the default; a negative value disables the
// deadline (engine.NoTimeout semantics).
func (w WorkflowConfig) Timeout() time.Duration {
	if w.TimeoutSeconds == 0 {
		return 1800 * time.Second
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"` // memory, kv, file
	Path    string `mapstructure:"path"`    // kv db path or file directory
}

// AgentsConfig configures the default roster and bus behaviour.
type AgentsConfig struct {
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks"`
	HistorySize        int `mapstructure:"history_size"`
	MessageHistorySize int `mapstructure:"message_history_size"`
	CollectTimeoutSecs int `mapstructure:"collect_timeout_seconds"`
	PollIntervalMS     int `mapstructure:"poll_interval_ms"`
}

// CollectTimeout returns the bus result-collection deadline.
func (a AgentsConfig) CollectTimeout() time.Duration {
	return time.Duration(a.CollectTimeoutSecs) * time.Second
}

// PollInterval returns the bus collection polling cadence.
func (a AgentsConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// CollabConfig holds collaborator endpoints. Empty endpoints select
// the built-in stubs.
type CollabConfig struct {
	LLMEndpoint       string `mapstructure:"llm_endpoint"`
	RepoEndpoint      string `mapstructure:"repo_endpoint"`
	RetrievalEndpoint string `mapstructure:"retrieval_endpoint"`
	AuditDBURL        string `mapstructure:"audit_db_url"`
}
