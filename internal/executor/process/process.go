// Package process runs one external command with a hard wall-clock limit.
//
// A Runner never goes through a shell: Command.Args is an argument vector,
// Args[0] is the program and the rest are passed to it verbatim. Stdin is
// written in full and then closed, stdout and stderr are captured in memory.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when a Command does not set its own.
const DefaultTimeout = 10 * time.Second

// TimeoutExitCode is reported for a process killed at its deadline,
// the same value the unix timeout(1) command uses.
const TimeoutExitCode = 124

// Command describes a single process spawn.
type Command struct {
	// Args is the argument vector. Args[0] is looked up on PATH.
	Args []string
	// Dir is the working directory of the process.
	Dir string
	// Stdin is written to the process and then closed. Empty means no input.
	Stdin string
	// Env is appended to the runner's base environment.
	Env []string
	// Timeout bounds the wall-clock time of the process. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Program returns the program name, or "" for an empty command.
func (c Command) Program() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// EffectiveTimeout is Timeout, or DefaultTimeout when Timeout is not set.
func (c Command) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Result is the outcome of a process that was started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
	TimedOut bool
	// Err is the OS-level wait error (e.g. "exit status 1", "signal: killed"),
	// nil when the process exited cleanly.
	Err error
}

// Succeeded reports whether the process exited with status zero before its deadline.
func (r *Result) Succeeded() bool {
	return r != nil && !r.TimedOut && r.Err == nil && r.ExitCode == 0
}

// Message returns the text that best describes a failure: stderr when the
// process wrote any, otherwise the OS-level exit description.
func (r *Result) Message() string {
	if r == nil {
		return ""
	}
	if msg := strings.TrimSpace(r.Stderr); msg != "" {
		return msg
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.ExitCode != 0 {
		return fmt.Sprintf("exit status %d", r.ExitCode)
	}
	return ""
}

// Runner executes commands.
//
// Run returns a non-nil Result whenever the process was started, whatever its
// exit status. The error is reserved for failures to start the process
// (*StartError) and for cancellation of ctx by the caller, in which case the
// process has already been killed.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// StartError reports that a process could not be spawned at all.
type StartError struct {
	Program string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("process: start %q: %v", e.Program, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err means the program does not exist on PATH.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// MarkTimedOut records that the process was killed at its deadline d.
func (r *Result) MarkTimedOut(d time.Duration) {
	r.TimedOut = true
	r.ExitCode = TimeoutExitCode
	r.Stderr = appendLine(r.Stderr, fmt.Sprintf("Execution timed out after %s.", d))
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if strings.HasSuffix(s, "\n") {
		return s + line
	}
	return s + "\n" + line
}
