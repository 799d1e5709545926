package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivemind-labs/hiveflow/internal/api"
	"github.com/hivemind-labs/hiveflow/internal/checkpoint"
	"github.com/hivemind-labs/hiveflow/internal/collab"
	"github.com/hivemind-labs/hiveflow/internal/config"
	"github.com/hivemind-labs/hiveflow/internal/events"
	"github.com/hivemind-labs/hiveflow/internal/logging"
	"github.com/hivemind-labs/hiveflow/internal/swarm"
)

// shutdownGrace bounds graceful shutdown of the HTTP server and the swarm.
const shutdownGrace = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, loader, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger := newLogger(cfg)
			loader.Watch(func(updated *config.Config) {
				logger.Info("configuration reloaded", "log_level", updated.Log.Level)
			})

			return serve(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := checkpoint.New(cfg.Checkpoint.Backend, cfg.Checkpoint.Path)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var audit collab.AuditSink = collab.NopAuditSink{}
	if cfg.Collab.AuditDBURL != "" {
		sink, err := collab.NewSQLiteAuditSink(cfg.Collab.AuditDBURL)
		if err != nil {
			return fmt.Errorf("opening audit sink: %w", err)
		}
		audit = sink
	}
	defer func() { _ = audit.Close() }()

	eventBus := events.New(256)
	defer eventBus.Close()

	manager := swarm.NewManager(cfg, swarm.Deps{
		Model:      languageModel(cfg),
		Retriever:  retriever(cfg),
		Repository: repository(cfg),
		Checkpoint: store,
		Events:     eventBus,
		Logger:     logger,
	})
	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initializing swarm: %w", err)
	}

	server := api.NewServer(manager, eventBus, audit, logger, cfg.Server)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("swarm shutdown incomplete", "error", err)
	}
	return nil
}

func languageModel(cfg *config.Config) collab.LanguageModel {
	if cfg.Collab.LLMEndpoint != "" {
		return collab.NewHTTPLanguageModel(cfg.Collab.LLMEndpoint)
	}
	return &collab.StubLanguageModel{}
}

func retriever(cfg *config.Config) collab.Retriever {
	if cfg.Collab.RetrievalEndpoint != "" {
		return collab.NewHTTPRetriever(cfg.Collab.RetrievalEndpoint)
	}
	return collab.StubRetriever{}
}

func repository(cfg *config.Config) collab.Repository {
	if cfg.Collab.RepoEndpoint != "" {
		return collab.NewHTTPRepository(cfg.Collab.RepoEndpoint)
	}
	return &collab.MemoryRepository{}
}
