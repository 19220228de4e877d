package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultMaxOutputBytes caps each captured stream.
const DefaultMaxOutputBytes = 1 << 20

// defaultWaitDelay bounds how long Wait keeps draining pipes after the
// process was killed or exited while a descendant still holds them open.
const defaultWaitDelay = 500 * time.Millisecond

// LocalConfig configures a Local runner.
type LocalConfig struct {
	// MaxOutputBytes caps stdout and stderr independently. Zero means
	// DefaultMaxOutputBytes, a negative value disables the cap.
	MaxOutputBytes int
	// Env is the base environment of every process. Nil inherits the
	// environment of the current process.
	Env []string
}

// Local runs commands as child processes of the current process.
type Local struct {
	maxOutput int
	env       []string
	waitDelay time.Duration
	logger    *slog.Logger
}

var _ Runner = (*Local)(nil)

// NewLocal creates a Local runner.
func NewLocal(cfg LocalConfig, logger *slog.Logger) *Local {
	maxOutput := cfg.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	env := cfg.Env
	if env == nil {
		env = os.Environ()
	}
	return &Local{
		maxOutput: maxOutput,
		env:       env,
		waitDelay: defaultWaitDelay,
		logger:    logger,
	}
}

// Run spawns cmd and waits for it, killing its process group at the deadline
// or when ctx is cancelled.
func (l *Local) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, &StartError{Err: errors.New("empty command")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := c.EffectiveTimeout()
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(append([]string(nil), l.env...), c.Env...)
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	stdout := NewOutputBuffer(l.maxOutput)
	stderr := NewOutputBuffer(l.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = l.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StartError{Program: c.Args[0], Err: err}
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	// Reap anything the program left running in its group. Only a pipe left
	// open past WaitDelay or a fired context means members may remain; after a
	// clean reap the group id may already belong to someone else.
	if needsGroupReap(runCtx, waitErr) {
		_ = killProcessGroup(cmd)
	}

	if waitErr != nil && ctx.Err() != nil {
		l.logger.Debug("process cancelled",
			slog.String("program", c.Args[0]),
			slog.Duration("elapsed", elapsed),
		)
		return nil, ctx.Err()
	}

	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Err = waitErr
		res.MarkTimedOut(timeout)
	case errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0:
		// The program itself exited cleanly; only a stray descendant kept the
		// pipes open and has been killed above.
	default:
		res.Err = waitErr
	}

	l.logger.Debug("process finished",
		slog.String("program", c.Args[0]),
		slog.Int("exitCode", res.ExitCode),
		slog.Bool("timedOut", res.TimedOut),
		slog.Duration("elapsed", elapsed),
	)

	return res, nil
}

// needsGroupReap reports whether the child's process group may still have
// live members after Wait returned.
func needsGroupReap(runCtx context.Context, waitErr error) bool {
	return errors.Is(waitErr, exec.ErrWaitDelay) || runCtx.Err() != nil
}
