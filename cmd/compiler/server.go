package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/api"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/deploy"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/docker"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/events"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/installer"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/scheduler"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/store"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/vcs"
	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

const interruptedMessage = "interrupted by restart"

// =============================================================================
// Server
// =============================================================================

// Server represents the compiler application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	docker     *docker.DockerClient
	scheduler  *scheduler.Scheduler
	updater    *workers.Updater
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Open store
	s, err := store.Open(cfg.Store.Driver, cfg.Store.Location, logger)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	ctx := context.Background()
	if err := seedSettings(ctx, s, cfg.Settings.Domain(), logger); err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}
	if err := recoverInterrupted(ctx, s, logger); err != nil {
		s.Close()
		return nil, &ServerError{Op: "NewServer", Err: err, ExitCode: ExitDatabaseError}
	}

	// Connect to Docker
	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify Docker connection
	if err := d.Ping(ctx); err != nil {
		s.Close()
		d.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	hub := events.NewHub(events.DefaultBacklog, logger)
	git := vcs.NewGit(cfg.Paths.Git, logger)
	platform := installer.NewAdapter(d, cfg.Platform.Installer(), logger)

	orchestrator := deploy.NewOrchestrator(platform, git, d, s, hub, deploy.Config{
		AppsDir:           cfg.Paths.AppsDir,
		WorkDir:           cfg.Paths.WorkDir,
		SettleDelay:       cfg.Deploy.SettleDelay,
		InstallTimeout:    cfg.Deploy.InstallTimeout,
		PreInstallTimeout: cfg.Deploy.PreInstallTimeout,
		UsePullPolicy:     cfg.Deploy.UsePullPolicy,
		HostRoot:          cfg.Paths.HostRoot,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sched := scheduler.New(orchestrator, settingsLimit(s, logger), scheduler.NewMetrics(registry), logger)

	var updater *workers.Updater
	if cfg.Updater.Enabled {
		updater = workers.NewUpdater(s, git, sched, workers.UpdaterConfig{
			Interval:      cfg.Updater.Interval,
			CheckTimeout:  cfg.Updater.CheckTimeout,
			MaxConcurrent: cfg.Updater.MaxConcurrent,
			AppsDir:       cfg.Paths.AppsDir,
		}, logger)
	} else {
		logger.Info("auto-update disabled")
	}

	handler := api.NewHandler(api.Deps{
		Store:    s,
		Queue:    sched,
		Platform: platform,
		Events:   hub,
		Docker:   d,
		Gatherer: registry,
		Token:    cfg.Server.Token,
	}, logger)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		docker:     d,
		scheduler:  sched,
		updater:    updater,
		logger:     logger,
	}, nil
}

// settingsLimit reads the concurrency limit from the stored settings on
// every dispatch pass.
func settingsLimit(s store.Store, logger *slog.Logger) scheduler.LimitFunc {
	return func(ctx context.Context) int {
		settings, err := s.GetSettings(ctx)
		if err != nil {
			logger.Warn("failed to read concurrency limit", "error", err)
			return domain.DefaultConcurrencyLimit
		}
		return settings.ConcurrencyLimit
	}
}

// seedSettings stores the configured settings when the store still holds
// the defaults.
func seedSettings(ctx context.Context, s store.Store, seed domain.Settings, logger *slog.Logger) error {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	if current != domain.DefaultSettings() || seed == current {
		return nil
	}
	logger.Info("seeding settings from config",
		"concurrency_limit", seed.ConcurrencyLimit,
		"ref_domain", seed.RefDomain,
	)
	return s.SaveSettings(ctx, seed)
}

// recoverInterrupted fails applications a previous process left mid-run.
func recoverInterrupted(ctx context.Context, s store.Store, logger *slog.Logger) error {
	apps, err := s.ListApplications(ctx)
	if err != nil {
		return err
	}
	for i := range apps {
		app := &apps[i]
		if !app.Status.IsActive() {
			continue
		}
		logger.Warn("marking interrupted deployment as failed", "app_id", app.ID, "status", app.Status)
		app.Fail(interruptedMessage)
		if err := s.SaveApplication(ctx, app); err != nil {
			return err
		}
	}
	return nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if s.updater != nil {
		s.updater.Start()
	}

	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"auth", s.config.Server.Token != "")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.updater != nil {
		s.updater.Stop()
	}

	// Cancels running deployments and resolves queued callers
	s.scheduler.Stop()

	// Close Docker client
	if err := s.docker.Close(); err != nil {
		s.logger.Error("Docker client close error", "error", err)
	}

	// Close store
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
