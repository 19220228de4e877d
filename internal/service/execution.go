package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/code-runner/internal/apperror"
	"github.com/sakif/code-runner/internal/executor"
)

// ExecutionLimits bounds what a compile request may submit.
type ExecutionLimits struct {
	MaxCodeLength  int
	MaxInputLength int
}

// DefaultExecutionLimits returns the limits the API has always enforced.
func DefaultExecutionLimits() ExecutionLimits {
	return ExecutionLimits{
		MaxCodeLength:  MaxCodeLength,
		MaxInputLength: MaxInputLength,
	}
}

// ExecutionService validates compile requests and hands them to an Executor.
type ExecutionService struct {
	exec   executor.Executor
	langs  LanguageSupporter
	limits ExecutionLimits
	logger *slog.Logger
}

// NewExecutionService creates an ExecutionService. Zero limits fall back to
// DefaultExecutionLimits.
func NewExecutionService(exec executor.Executor, langs LanguageSupporter, limits ExecutionLimits, logger *slog.Logger) *ExecutionService {
	defaults := DefaultExecutionLimits()
	if limits.MaxCodeLength <= 0 {
		limits.MaxCodeLength = defaults.MaxCodeLength
	}
	if limits.MaxInputLength <= 0 {
		limits.MaxInputLength = defaults.MaxInputLength
	}
	return &ExecutionService{
		exec:   exec,
		langs:  langs,
		limits: limits,
		logger: logger,
	}
}

// Compile runs req. Problems with the request itself come back as a
// validation error; problems with the submitted program come back inside the
// result. Any other error is a server-side fault.
func (s *ExecutionService) Compile(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.exec.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("execution abandoned by caller",
				slog.String("language", req.Language),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Error("execution failed",
				slog.String("language", req.Language),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("executing %s code: %w", req.Language, err)
	}

	s.logger.Info("execution finished",
		slog.String("language", req.Language),
		slog.Bool("success", result.Success),
		slog.String("kind", string(result.Kind)),
		slog.Int64("run_ms", result.ExecutionTimeMillis),
		slog.Duration("total", time.Since(start)),
	)
	return result, nil
}

func (s *ExecutionService) validate(req executor.ExecutionRequest) error {
	var errs []apperror.FieldError
	fail := func(field, msg string) {
		errs = append(errs, apperror.FieldError{Field: field, Message: msg})
	}

	if !s.langs.Supports(req.Language) {
		fail("language", "Invalid language")
	}
	switch {
	case strings.TrimSpace(req.Code) == "":
		fail("code", "Code is required")
	case runes(req.Code) > s.limits.MaxCodeLength:
		fail("code", "Code must be less than "+sizeLabel(s.limits.MaxCodeLength))
	}
	if runes(req.Stdin) > s.limits.MaxInputLength {
		fail("input", "Input must be less than "+sizeLabel(s.limits.MaxInputLength))
	}

	return apperror.Invalid(errs)
}
