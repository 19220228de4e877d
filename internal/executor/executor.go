// Package executor runs untrusted source code through a per-language
// compile and run pipeline and reports what happened.
package executor

import (
	"context"
	"errors"
)

// ErrInternal marks a failure of the engine itself, as opposed to a failure
// of the submitted program. Callers should report it as a server-side fault.
var ErrInternal = errors.New("executor: internal error")

// Kind classifies an unsuccessful execution.
type Kind string

const (
	KindUnsupportedLanguage Kind = "unsupported_language"
	KindEmptySource         Kind = "empty_source"
	KindNoEntryPoint        Kind = "no_entry_point"
	KindCompileFailed       Kind = "compile_failed"
	KindRuntimeFailed       Kind = "runtime_failed"
)

// Generic failure descriptions used when neither stderr nor the OS has
// anything to say.
const (
	msgCompileFailed = "Compilation failed."
	msgRuntimeFailed = "Program exited with a non-zero status."
)

// Shown when the entry-point resolver finds no entry declaration.
const (
	msgNoEntryPoint    = "Could not find a public class (e.g., public class Main) in your Java code."
	stderrNoEntryPoint = "No public class found."
)

// ExecutionRequest is a single piece of code to run.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"input"`
}

// ExecutionResult is the normalized outcome of an execution.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"output"`
	Stderr  string `json:"stderr"`
	// Error is the combined failure message, empty on success.
	Error string `json:"error,omitempty"`
	// ExecutionTimeMillis covers the run step only. It is zero when the
	// program never ran.
	ExecutionTimeMillis int64  `json:"executionTime"`
	Language            string `json:"language"`
	Kind                Kind   `json:"kind,omitempty"`
	ExitCode            int    `json:"exitCode"`
	TimedOut            bool   `json:"timedOut"`
}

// Executor runs code in an isolated, time-bounded environment.
//
// Execute returns a result for every outcome of the submitted program,
// including compile errors, crashes and timeouts. A non-nil error means the
// engine itself failed (wrapping ErrInternal) or ctx was cancelled.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
