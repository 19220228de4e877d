// Command run executes one source file through the same engine the server
// uses, with the local runner.
//
//	run -lang python solution.py < input.txt
//	run -timeout 2s main.c
//
// The language defaults to the one whose extension matches the file. The
// program's stdout and stderr are copied through. Exit status: 0 when the
// program succeeded, 1 when it failed (compile error, crash, timeout, bad
// request), 2 when the runner itself failed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sakif/code-runner/internal/config"
	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/executor/process"
	"github.com/sakif/code-runner/internal/executor/workspace"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitInternal = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	lang := fs.String("lang", "", "language id (default: inferred from the file extension)")
	timeout := fs.Duration("timeout", 0, "per-step timeout for steps without their own (default from config)")
	configPath := fs.String("config", config.PathFromEnv(), "YAML config file with language overrides")
	verbose := fs.Bool("v", false, "log engine activity to stderr")
	if err := fs.Parse(args); err != nil {
		return exitFailed
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: run [-lang id] [-timeout d] [-config file] <source file>")
		return exitFailed
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitInternal
	}
	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	pipelines, err := cfg.Pipelines()
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitInternal
	}
	registry, err := language.NewRegistry(pipelines...)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitInternal
	}

	path := fs.Arg(0)
	if *lang == "" {
		*lang = inferLanguage(registry, path)
		if *lang == "" {
			fmt.Fprintf(stderr, "run: cannot infer the language of %s; pass -lang\n", path)
			return exitFailed
		}
	}

	code, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitFailed
	}
	input, err := io.ReadAll(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "run: reading stdin: %v\n", err)
		return exitInternal
	}

	ws, err := workspace.New(cfg.Executor.WorkspaceDir, logger)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitInternal
	}
	defaultTimeout := cfg.Executor.DefaultTimeout
	if *timeout > 0 {
		defaultTimeout = *timeout
	}
	runner := process.NewLocal(process.LocalConfig{MaxOutputBytes: cfg.Executor.MaxOutputBytes}, logger)
	engine := executor.NewEngine(registry, ws, runner, logger, executor.WithDefaultTimeout(defaultTimeout))

	start := time.Now()
	res, err := engine.Execute(ctx, executor.ExecutionRequest{
		Language: *lang,
		Code:     string(code),
		Stdin:    string(input),
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(stderr, "run: interrupted")
			return exitFailed
		}
		fmt.Fprintf(stderr, "run: %v\n", err)
		return exitInternal
	}

	if res.Stdout != "" {
		fmt.Fprintln(stdout, res.Stdout)
	}
	if res.Stderr != "" {
		fmt.Fprintln(stderr, res.Stderr)
	}
	logger.Debug("execution finished",
		slog.String("language", res.Language),
		slog.Bool("success", res.Success),
		slog.Int64("run_ms", res.ExecutionTimeMillis),
		slog.Duration("total", time.Since(start)),
	)

	if !res.Success {
		// Stderr was already shown; print the summary only when it adds something.
		if res.Error != "" && res.Error != res.Stderr {
			fmt.Fprintf(stderr, "run: %s\n", res.Error)
		}
		return exitFailed
	}
	return exitOK
}

// inferLanguage returns the id of the pipeline whose extension matches path.
func inferLanguage(registry *language.Registry, path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	for _, p := range registry.Languages() {
		if p.Extension == ext {
			return p.ID
		}
	}
	return ""
}
