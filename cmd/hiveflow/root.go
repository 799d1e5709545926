package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hivemind-labs/hiveflow/internal/config"
	"github.com/hivemind-labs/hiveflow/internal/logging"
)

// rootOptions carries flags shared across subcommands.
type rootOptions struct {
	configFile string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "hiveflow",
		Short:         "Multi-agent workflow coordinator",
		Long:          "hiveflow coordinates a swarm of specialized agents through a phased workflow: analysis, competing plans, synthesis, generation, debugging and review.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (auto, text, json)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSubmitCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// loadConfig builds the config with flag overrides applied.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, *config.Loader, error) {
	v := viper.New()
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		v.Set("log.level", o.logLevel)
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil && f.Changed {
		v.Set("log.format", o.logFormat)
	}

	loader := config.NewLoaderWithViper(v)
	if o.configFile != "" {
		loader = loader.WithConfigFile(o.configFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}
