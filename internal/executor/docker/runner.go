// Package docker runs commands inside throwaway containers from a pre-warmed
// pool, as an alternative to running them on the host.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/code-runner/internal/executor/process"
)

const pullTimeout = 2 * time.Minute

// Runner implements process.Runner by exec'ing each command in a fresh
// container. The container is removed after the command, which also kills
// anything the command left behind.
type Runner struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ process.Runner = (*Runner)(nil)

// New connects to the Docker daemon from the environment and starts the pool.
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	if cfg.PullImage {
		if err := pullImage(cli, cfg.Image, logger); err != nil {
			cli.Close()
			return nil, err
		}
	}

	r := NewWithClient(cli, cfg, logger)
	r.pool.Start()
	return r, nil
}

// NewWithClient builds a Runner on an existing client without starting the
// pool.
func NewWithClient(cli client.APIClient, cfg Config, logger *slog.Logger) *Runner {
	if cfg.MaxOutputBytes == 0 {
		cfg.MaxOutputBytes = process.DefaultMaxOutputBytes
	}
	return &Runner{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cli, cfg, logger),
	}
}

func pullImage(cli client.APIClient, ref string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), pullTimeout)
	defer cancel()

	logger.Info("pulling docker image", slog.String("image", ref))
	reader, err := cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// The pull completes only once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	logger.Info("docker image is ready", slog.String("image", ref))
	return nil
}

// Pool exposes the container pool, mainly so callers can Start it when the
// Runner was built with NewWithClient.
func (r *Runner) Pool() *Pool {
	return r.pool
}

// Close removes the idle containers and closes the client.
func (r *Runner) Close() error {
	r.pool.Stop()
	return r.cli.Close()
}

// Run executes c in a pooled container.
func (r *Runner) Run(ctx context.Context, c process.Command) (*process.Result, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, &process.StartError{Err: errors.New("empty command")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	containerID, err := r.pool.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}
	// Each container serves exactly one command.
	defer r.pool.Remove(containerID)

	timeout := c.EffectiveTimeout()
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := r.cli.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		User:         r.config.User,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   c.Dir,
		Env:          c.Env,
		Cmd:          c.Args,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	start := time.Now()
	attach, err := r.cli.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	go func() {
		if c.Stdin != "" {
			_, _ = io.WriteString(attach.Conn, c.Stdin)
		}
		_ = attach.CloseWrite()
	}()

	stdout := process.NewOutputBuffer(r.config.MaxOutputBytes)
	stderr := process.NewOutputBuffer(r.config.MaxOutputBytes)

	done := make(chan struct{})
	go func() {
		// stdcopy demultiplexes the stream docker interleaves.
		_, _ = stdcopy.StdCopy(stdout, stderr, attach.Reader)
		close(done)
	}()

	select {
	case <-done:
	case <-execCtx.Done():
		// Closing the attach connection unblocks StdCopy; removing the
		// container in the deferred call kills the process.
		attach.Close()
		<-done

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res := &process.Result{
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Elapsed: time.Since(start),
			Err:     context.DeadlineExceeded,
		}
		res.MarkTimedOut(timeout)
		r.logger.Debug("container exec timed out",
			slog.String("program", c.Program()),
			slog.Duration("elapsed", res.Elapsed),
		)
		return res, nil
	}
	elapsed := time.Since(start)

	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), removeTimeout)
	defer inspectCancel()
	inspect, err := r.cli.ContainerExecInspect(inspectCtx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	res := &process.Result{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Elapsed:  elapsed,
	}
	if res.ExitCode != 0 {
		if notFound(res) {
			return nil, &process.StartError{
				Program: c.Program(),
				Err:     fmt.Errorf("%w: %s", exec.ErrNotFound, strings.TrimSpace(res.Stdout+res.Stderr)),
			}
		}
		res.Err = fmt.Errorf("exit status %d", res.ExitCode)
	}

	r.logger.Debug("container exec finished",
		slog.String("program", c.Program()),
		slog.Int("exitCode", res.ExitCode),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

// notFound recognizes the runtime's report of a missing executable, which
// docker delivers as ordinary output with status 126 or 127.
func notFound(res *process.Result) bool {
	if res.ExitCode != 126 && res.ExitCode != 127 {
		return false
	}
	return strings.Contains(res.Stdout+res.Stderr, "executable file not found")
}
