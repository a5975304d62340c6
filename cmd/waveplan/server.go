package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/artpar/waveplan/internal/core/domain"
	"github.com/artpar/waveplan/internal/shell/api"
	"github.com/artpar/waveplan/internal/shell/docker"
	"github.com/artpar/waveplan/internal/shell/executor"
	"github.com/artpar/waveplan/internal/shell/notify"
	"github.com/artpar/waveplan/internal/shell/provider"
	"github.com/artpar/waveplan/internal/shell/store"
)

// =============================================================================
// Serve Command
// =============================================================================

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the planning API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			logger.Info("starting waveplan",
				"version", Version,
				"config", root.configPath,
			)

			server, err := NewServer(cfg, logger)
			if err != nil {
				return err
			}
			return server.Start(cmd.Context())
		},
	}
}

// =============================================================================
// Server
// =============================================================================

// Server represents the waveplan API server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	catalog    *provider.FileProvider
	docker     docker.Client
	runner     *executor.Runner
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	model, err := domain.ParseTimingModel(cfg.Planner.TimingModel)
	if err != nil {
		return nil, newExitError("NewServer", err, ExitConfigError)
	}

	// Open database
	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// Load catalog
	catalogProvider, err := provider.NewFileProvider(cfg.Catalog.Path, cfg.Catalog.Format, logger)
	if err != nil {
		s.Close()
		return nil, newExitError("NewServer", err, ExitConfigError)
	}

	// Connect to Docker when containers are managed
	var dockerClient docker.Client
	var exec executor.Executor
	switch cfg.Executor.Kind {
	case ExecutorDocker:
		d, err := docker.NewDockerClient(cfg.Docker.Host)
		if err != nil {
			s.Close()
			return nil, newExitError("NewServer", err, ExitServerError)
		}
		if err := d.Ping(context.Background()); err != nil {
			s.Close()
			d.Close()
			return nil, newExitError("NewServer", err, ExitServerError)
		}
		dockerClient = d
		exec = executor.NewDockerExecutor(d, executor.DockerConfig{
			Project:      cfg.Executor.Project,
			StopTimeout:  cfg.Executor.StopTimeout,
			ReadyTimeout: cfg.Executor.ReadyTimeout,
		}, logger)
		logger.Info("docker executor enabled", "project", cfg.Executor.Project)

	case ExecutorDryRun:
		exec = executor.NewDryRunExecutor(logger)
		logger.Info("dry-run executor enabled")

	default:
		logger.Info("plan execution disabled")
	}

	// Create runner with notifications
	var runner *executor.Runner
	if exec != nil {
		runner = executor.NewRunner(s, exec, newNotifier(cfg, logger), executor.RunnerConfig{
			ServiceTimeout:  cfg.Executor.ServiceTimeout,
			RollbackTimeout: cfg.Executor.RollbackTimeout,
		}, logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apiCfg := api.Config{
		Provider:       catalogProvider,
		Store:          s,
		Logger:         logger,
		Registry:       registry,
		Strategy:       cfg.Planner.Strategy,
		TimingModel:    model,
		StrictServices: cfg.Planner.StrictServices,
		Version:        Version,
	}
	// Interface fields stay nil when the collaborator is absent.
	if runner != nil {
		apiCfg.Runner = runner
	}
	if dockerClient != nil {
		apiCfg.Docker = dockerClient
	}

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      api.NewHandler(apiCfg).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		catalog:    catalogProvider,
		docker:     dockerClient,
		runner:     runner,
		logger:     logger,
	}, nil
}

// newNotifier always logs rollout events and also posts them to the
// configured webhook.
func newNotifier(cfg *Config, logger *slog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.WebhookURL != "" {
		webhook := notify.DefaultWebhookConfig()
		webhook.URL = cfg.Notify.WebhookURL
		webhook.Token = cfg.Notify.WebhookToken
		if cfg.Notify.Timeout > 0 {
			webhook.Timeout = cfg.Notify.Timeout
		}
		if cfg.Notify.RetryAttempts > 0 {
			webhook.RetryAttempts = cfg.Notify.RetryAttempts
		}
		notifiers = append(notifiers, notify.NewWebhookNotifier(webhook))
		logger.Info("webhook notifications enabled", "url", cfg.Notify.WebhookURL)
	}
	return notifiers
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Watch the catalog in background
	watchCtx, stopWatch := context.WithCancel(ctx)
	var watchWG sync.WaitGroup
	if s.config.Catalog.Watch {
		watchWG.Add(1)
		go func() {
			defer watchWG.Done()
			if err := s.catalog.Watch(watchCtx); err != nil {
				s.logger.Error("catalog watcher stopped", "error", err)
			}
		}()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"catalog", s.catalog.Path())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	var serveErr error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		serveErr = newExitError("Start", err, ExitServerError)
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	stopWatch()
	watchWG.Wait()

	if err := s.Shutdown(context.Background()); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown gracefully shuts down the server. Rollouts still running when the
// shutdown timeout expires are cancelled and rolled back.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drain rollouts
	if s.runner != nil {
		if err := s.runner.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("rollouts cancelled at shutdown", "error", err)
		}
	}

	// Close Docker client
	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Error("Docker client close error", "error", err)
		}
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
		return newExitError("Shutdown", err, ExitDatabaseError)
	}

	s.logger.Info("shutdown complete")
	return nil
}
