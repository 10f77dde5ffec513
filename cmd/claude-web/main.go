package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/liamgwallace/claude-web/internal/api"
	"github.com/liamgwallace/claude-web/internal/config"
	"github.com/liamgwallace/claude-web/internal/files"
	"github.com/liamgwallace/claude-web/internal/health"
	"github.com/liamgwallace/claude-web/internal/job"
	"github.com/liamgwallace/claude-web/internal/metrics"
	"github.com/liamgwallace/claude-web/internal/relay"
	"github.com/liamgwallace/claude-web/internal/runner"
	"github.com/liamgwallace/claude-web/internal/store"
	"github.com/liamgwallace/claude-web/internal/template"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("addr", cfg.ListenAddr()).
		Str("data_dir", cfg.DataDir).
		Bool("templates_enabled", cfg.TemplatesEnabled()).
		Msg("starting claude-web")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Storage
	projects, err := store.NewProjectStore(cfg.DataDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open data directory")
	}
	if cfg.TemplatesEnabled() {
		seeder, err := template.New(cfg.TemplateDir, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("template_dir", cfg.TemplateDir).Msg("failed to load project template")
		}
		manifest := seeder.Manifest()
		logger.Info().
			Str("template_dir", cfg.TemplateDir).
			Str("description", manifest.Description).
			Strs("substitute", manifest.Substitute).
			Msg("project template loaded")
		projects.SetSeeder(seeder)
	}
	threads := store.NewThreadStore(projects, logger)

	// Collaborator
	claude := runner.New(runner.Config{
		Binary:          cfg.ClaudeBin,
		Timeout:         cfg.ClaudeTimeout,
		SkipPermissions: cfg.ClaudeSkipPermissions,
	}, logger)
	if bin, err := claude.Locate(); err != nil {
		logger.Warn().Err(err).Msg("claude CLI not found; message jobs will fail until it is installed")
	} else {
		logger.Info().Str("bin", bin).Dur("timeout", claude.Timeout()).Msg("claude CLI located")
	}

	m := metrics.New()

	rel := relay.New(threads, claude, logger)
	rel.SetRecorder(m)

	engine := job.NewEngine(job.Config{
		QueueSize: cfg.JobQueueSize,
		Retention: cfg.JobRetention,
	}, rel, logger)
	engine.SetRecorder(m)
	engine.Start(ctx)

	checker := health.NewChecker(logger)
	checker.Register("data_dir", health.DataDirCheck(projects.Root()))
	checker.Register("collaborator", health.CollaboratorCheck(claude.Locate))
	logger.Info().Strs("checks", checker.Names()).Msg("health checks registered")

	server := api.NewServer(api.ServerConfig{
		ListenAddr:   cfg.ListenAddr(),
		CORSOrigins:  cfg.CORSOrigins,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}, api.Deps{
		Projects: projects,
		Threads:  threads,
		Files:    files.NewService(projects, logger),
		Engine:   engine,
		Checker:  checker,
		Metrics:  m,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	// Wait for shutdown signal or a failed listener
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case <-gctx.Done():
		logger.Error().Msg("API server exited, shutting down")
	}

	// The in-flight job is left to finish; the deadline bounds the wait.
	done := make(chan error, 1)
	go func() {
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
		cancel()
		engine.Stop()
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Msg("server stopped with error")
		}
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("claude-web stopped")
}
