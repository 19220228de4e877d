package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/executor/process"
	"github.com/sakif/code-runner/internal/executor/workspace"
)

// Engine implements Executor on top of a language registry, a workspace
// manager and a process runner.
//
// It keeps no per-request state of its own, so a single Engine serves any
// number of concurrent requests.
type Engine struct {
	registry       *language.Registry
	workspace      *workspace.Manager
	runner         process.Runner
	logger         *slog.Logger
	observer       Observer
	defaultTimeout time.Duration
}

var _ Executor = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultTimeout sets the timeout of steps that do not declare one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithObserver registers an Observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewEngine wires an Engine together.
func NewEngine(registry *language.Registry, ws *workspace.Manager, runner process.Runner, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		registry:       registry,
		workspace:      ws,
		runner:         runner,
		logger:         logger,
		observer:       NoopObserver{},
		defaultTimeout: process.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req through its language pipeline.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Requests that can never run are answered before anything touches the
	// filesystem or spawns a process.
	pipeline, err := e.registry.Resolve(req.Language)
	if err != nil {
		return reject(req.Language, KindUnsupportedLanguage, fmt.Sprintf("Unsupported language: %s", req.Language)), nil
	}
	if strings.TrimSpace(req.Code) == "" {
		return reject(req.Language, KindEmptySource, "Code cannot be empty"), nil
	}

	start := time.Now()
	e.observer.ExecutionStarted(pipeline.ID)

	var result *ExecutionResult
	outcome := OutcomeInternal
	defer func() {
		e.observer.ExecutionFinished(pipeline.ID, outcome, time.Since(start))
	}()

	err = e.workspace.With(func(scope *workspace.Scope) error {
		var runErr error
		result, runErr = e.run(ctx, pipeline, req, scope)
		return runErr
	})

	switch {
	case err == nil:
		outcome = OutcomeSuccess
		if !result.Success {
			outcome = string(result.Kind)
		}
		e.logger.Debug("execution finished",
			slog.String("language", pipeline.ID),
			slog.Bool("success", result.Success),
			slog.String("kind", string(result.Kind)),
			slog.Int64("executionTimeMs", result.ExecutionTimeMillis),
		)
		return result, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		outcome = OutcomeCancelled
		return nil, err
	default:
		e.logger.Error("execution failed",
			slog.String("language", pipeline.ID),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, ErrInternal) {
			err = fmt.Errorf("%w: %w", ErrInternal, err)
		}
		return nil, err
	}
}

// run performs the pipeline inside an acquired scope.
func (e *Engine) run(ctx context.Context, p language.Pipeline, req ExecutionRequest, scope *workspace.Scope) (*ExecutionResult, error) {
	srcPath, err := scope.WriteFile(p.SourceFile(), []byte(req.Code))
	if err != nil {
		return nil, fmt.Errorf("%w: writing source: %w", ErrInternal, err)
	}

	vars := language.Vars{
		Source: srcPath,
		Binary: scope.Path(language.BinaryName),
		Dir:    scope.Dir,
	}

	if p.EntryPoint != nil {
		entry, err := p.EntryPoint(req.Code)
		if err != nil {
			e.logger.Debug("no entry point",
				slog.String("language", p.ID),
				slog.String("error", err.Error()),
			)
			res := reject(p.ID, KindNoEntryPoint, msgNoEntryPoint)
			res.Stderr = stderrNoEntryPoint
			return res, nil
		}
		vars.Entry = entry

		if name := p.EntrySourceFile(entry); name != p.SourceFile() {
			renamed, err := scope.CopyFile(srcPath, name)
			if err != nil {
				return nil, fmt.Errorf("%w: copying source to %s: %w", ErrInternal, name, err)
			}
			vars.Source = renamed
		}
	}

	if p.Compile != nil {
		res, err := e.step(ctx, p.ID, StepCompile, *p.Compile, vars, "", scope)
		if err != nil {
			return nil, err
		}
		if !res.Succeeded() {
			return &ExecutionResult{
				Success:  false,
				Stdout:   strings.TrimSpace(res.Stdout),
				Stderr:   strings.TrimSpace(res.Stderr),
				Error:    failureMessage(res, msgCompileFailed),
				Language: p.ID,
				Kind:     KindCompileFailed,
				ExitCode: res.ExitCode,
				TimedOut: res.TimedOut,
			}, nil
		}
	}

	res, err := e.step(ctx, p.ID, StepRun, p.Run, vars, req.Stdin, scope)
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{
		Success:             res.Succeeded(),
		Stdout:              strings.TrimSpace(res.Stdout),
		Stderr:              strings.TrimSpace(res.Stderr),
		ExecutionTimeMillis: res.Elapsed.Milliseconds(),
		Language:            p.ID,
		ExitCode:            res.ExitCode,
		TimedOut:            res.TimedOut,
	}
	if !result.Success {
		result.Kind = KindRuntimeFailed
		result.Error = failureMessage(res, msgRuntimeFailed)
	}
	return result, nil
}

// step runs one pipeline step, trying the fallback programs in order while
// the previous one is not installed.
func (e *Engine) step(ctx context.Context, lang, name string, s language.Step, vars language.Vars, stdin string, scope *workspace.Scope) (*process.Result, error) {
	// Artifacts are tracked before the step runs so that partial output of a
	// failed or killed step is removed too.
	for _, path := range s.ExpandArtifacts(vars) {
		scope.Track(path)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	args := s.Expand(vars)
	programs := append([]string{args[0]}, s.Fallbacks...)

	var lastErr error
	for _, program := range programs {
		argv := append([]string{program}, args[1:]...)

		res, err := e.runner.Run(ctx, process.Command{
			Args:    argv,
			Dir:     scope.Dir,
			Stdin:   stdin,
			Timeout: timeout,
		})
		if err == nil {
			e.observer.StepFinished(lang, name, res.Elapsed, res.Succeeded())
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !process.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s step of %s: %w", ErrInternal, name, lang, err)
		}

		e.logger.Debug("program not found, trying fallback",
			slog.String("language", lang),
			slog.String("step", name),
			slog.String("program", program),
		)
		lastErr = err
	}

	return nil, fmt.Errorf("%w: no usable toolchain for %s %s step (tried %s): %w",
		ErrInternal, lang, name, strings.Join(programs, ", "), lastErr)
}

func reject(lang string, kind Kind, msg string) *ExecutionResult {
	return &ExecutionResult{
		Success:  false,
		Error:    msg,
		Language: lang,
		Kind:     kind,
	}
}

func failureMessage(res *process.Result, fallback string) string {
	if msg := res.Message(); msg != "" {
		return msg
	}
	return fallback
}
