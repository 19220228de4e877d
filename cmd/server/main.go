// Package main is the entry point for the code runner server.
//
// main only reads configuration, builds the dependencies and starts the
// server. Everything it wires together lives under internal/.
package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sakif/code-runner/internal/config"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/docker"
	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/executor/process"
	"github.com/sakif/code-runner/internal/executor/workspace"
	"github.com/sakif/code-runner/internal/metrics"
	sqliteRepo "github.com/sakif/code-runner/internal/repository/sqlite"
	"github.com/sakif/code-runner/internal/server"
	"github.com/sakif/code-runner/internal/service"
)

func main() {
	// === 1. LOAD CONFIGURATION ===
	// Defaults, then the optional YAML file (CONFIG_PATH or ./code-runner.yaml),
	// then environment variables such as PORT and RUNNER.
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := cfg.NewLogger(os.Stdout)

	// === 3. METRICS ===
	// A private registry keeps /metrics to what this process registers.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	// === 4. WORKSPACE ===
	// Every execution gets its own directory under the base dir. Files that
	// cannot be removed are logged by the manager and counted here.
	ws, err := workspace.New(cfg.Executor.WorkspaceDir, logger, workspace.WithReleaseHook(collector.ReleaseFailed))
	if err != nil {
		logger.Error("failed to prepare workspace", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 5. PROCESS RUNNER ===
	// "local" runs toolchains installed on this host; "docker" runs them in
	// pre-warmed, network-less containers that share the workspace directory.
	var closers []io.Closer
	var runner process.Runner
	switch cfg.Executor.Runner {
	case config.RunnerDocker:
		dockerRunner, err := docker.New(cfg.DockerConfig(), logger)
		if err != nil {
			logger.Error("docker runner unavailable", slog.String("error", err.Error()))
			os.Exit(1)
		}
		runner = dockerRunner
		closers = append(closers, dockerRunner)
	default:
		runner = process.NewLocal(process.LocalConfig{MaxOutputBytes: cfg.Executor.MaxOutputBytes}, logger)
	}

	// === 6. LANGUAGES AND ENGINE ===
	pipelines, err := cfg.Pipelines()
	if err != nil {
		logger.Error("invalid language configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	languages, err := language.NewRegistry(pipelines...)
	if err != nil {
		logger.Error("invalid language configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	engine := executor.NewEngine(languages, ws, runner, logger,
		executor.WithDefaultTimeout(cfg.Executor.DefaultTimeout),
		executor.WithObserver(collector),
	)

	// === 7. DATABASE ===
	// os.MkdirAll is `mkdir -p`: the data directory is created on first run.
	if dir := filepath.Dir(cfg.Database.Path); cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	db, err := sqliteRepo.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	closers = append(closers, db)

	logger.Info("code runner configured",
		slog.String("runner", cfg.Executor.Runner),
		slog.String("workspace", ws.BaseDir()),
		slog.String("database", cfg.Database.Path),
		slog.Any("languages", languages.IDs()),
	)

	// === 8. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		Limits: service.ExecutionLimits{
			MaxCodeLength:  cfg.Executor.MaxCodeLength,
			MaxInputLength: cfg.Executor.MaxInputLength,
		},
		DisplayOnlyLanguages: cfg.Snippets.DisplayOnlyLanguages,
	}, server.Deps{
		Executor:  engine,
		Languages: languages,
		Snippets:  db,
		Metrics:   metrics.Handler(registry),
		Ping:      db.Ping,
		Closers:   closers,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM, then closes the database and
	// the docker pool.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
