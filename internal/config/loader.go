package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "HIVEFLOW",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "HIVEFLOW",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (HIVEFLOW_* plus the bare legacy keys)
// 3. Project config (.hiveflow.yaml in current directory)
// 4. User config (~/.config/hiveflow/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	l.bindWellKnownEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".hiveflow")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "hiveflow"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and invokes fn with the
// reloaded config. Intended for hot-reloading the log level.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			return
		}
		fn(&cfg)
	})
	l.v.WatchConfig()
}

// bindWellKnownEnv binds the bare environment keys recognized for
// deployment compatibility alongside the HIVEFLOW_* forms.
func (l *Loader) bindWellKnownEnv() {
	_ = l.v.BindEnv("workflow.max_retries", "HIVEFLOW_WORKFLOW_MAX_RETRIES", "MAX_RETRIES")
	_ = l.v.BindEnv("workflow.timeout_seconds", "HIVEFLOW_WORKFLOW_TIMEOUT_SECONDS", "WORKFLOW_TIMEOUT_SECONDS")
	_ = l.v.BindEnv("checkpoint.backend", "HIVEFLOW_CHECKPOINT_BACKEND", "CHECKPOINT_BACKEND")
	_ = l.v.BindEnv("collaborators.llm_endpoint", "HIVEFLOW_LLM_ENDPOINT", "LLM_ENDPOINT")
	_ = l.v.BindEnv("collaborators.repo_endpoint", "HIVEFLOW_REPO_ENDPOINT", "REPO_ENDPOINT")
	_ = l.v.BindEnv("collaborators.audit_db_url", "HIVEFLOW_AUDIT_DB_URL", "AUDIT_DB_URL")
	_ = l.v.BindEnv("server.cors_origins", "HIVEFLOW_CORS_ORIGINS", "CORS_ORIGINS")
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.addr", ":8420")
	l.v.SetDefault("server.cors_origins", "")

	l.v.SetDefault("workflow.max_retries", 3)
	l.v.SetDefault("workflow.timeout_seconds", 1800)

	l.v.SetDefault("checkpoint.backend", "memory")
	l.v.SetDefault("checkpoint.path", ".hiveflow/checkpoints")

	l.v.SetDefault("agents.max_concurrent_tasks", 3)
	l.v.SetDefault("agents.history_size", 100)
	l.v.SetDefault("agents.message_history_size", 1000)
	l.v.SetDefault("agents.collect_timeout_seconds", 30)
	l.v.SetDefault("agents.poll_interval_ms", 500)

	l.v.SetDefault("collaborators.llm_endpoint", "")
	l.v.SetDefault("collaborators.repo_endpoint", "")
	l.v.SetDefault("collaborators.retrieval_endpoint", "")
	l.v.SetDefault("collaborators.audit_db_url", "")
}
