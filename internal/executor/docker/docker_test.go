package docker_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/executor/docker"
	"github.com/sakif/code-runner/internal/executor/process"
)

// fakeDocker answers the handful of API calls the runner makes. Embedding the
// interface leaves every other method nil, so an unexpected call panics.
type fakeDocker struct {
	client.APIClient

	mu        sync.Mutex
	next      int
	created   []*container.HostConfig
	removed   []string
	execs     []container.ExecOptions
	stdout    string
	stderr    string
	exitCode  int
	hang      bool
	closeHits int
}

func (f *fakeDocker) ContainerCreate(_ context.Context, _ *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.created = append(f.created, host)
	return container.CreateResponse{ID: fmt.Sprintf("c%d", f.next)}, nil
}

func (f *fakeDocker) ContainerStart(context.Context, string, container.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDocker) ContainerExecCreate(_ context.Context, _ string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, opts)
	return container.ExecCreateResponse{ID: "exec-1"}, nil
}

func (f *fakeDocker) ContainerExecAttach(context.Context, string, container.ExecStartOptions) (types.HijackedResponse, error) {
	server, conn := net.Pipe()

	f.mu.Lock()
	stdout, stderr, hang := f.stdout, f.stderr, f.hang
	f.mu.Unlock()

	if !hang {
		go func() {
			defer server.Close()
			if stdout != "" {
				_, _ = stdcopy.NewStdWriter(server, stdcopy.Stdout).Write([]byte(stdout))
			}
			if stderr != "" {
				_, _ = stdcopy.NewStdWriter(server, stdcopy.Stderr).Write([]byte(stderr))
			}
		}()
	}
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(conn)}, nil
}

func (f *fakeDocker) ContainerExecInspect(context.Context, string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return container.ExecInspect{ExitCode: f.exitCode}, nil
}

func (f *fakeDocker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeHits++
	return nil
}

func (f *fakeDocker) removedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeRunner(t *testing.T, fake *fakeDocker) *docker.Runner {
	t.Helper()
	cfg := docker.DefaultConfig()
	cfg.PoolSize = 1
	cfg.WorkspaceDir = "/srv/code-runner/work"

	r := docker.NewWithClient(fake, cfg, testLogger())
	r.Pool().Start()
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunner_Success(t *testing.T) {
	fake := &fakeDocker{stdout: "hello\n", stderr: "warning\n"}
	r := newFakeRunner(t, fake)

	res, err := r.Run(context.Background(), process.Command{
		Args:  []string{"python3", "/srv/code-runner/work/abc/program.py"},
		Dir:   "/srv/code-runner/work/abc",
		Stdin: "input",
	})
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "warning\n", res.Stderr)

	require.Len(t, fake.execs, 1)
	assert.Equal(t, []string{"python3", "/srv/code-runner/work/abc/program.py"}, []string(fake.execs[0].Cmd))
	assert.Equal(t, "/srv/code-runner/work/abc", fake.execs[0].WorkingDir)
	assert.True(t, fake.execs[0].AttachStdin)
	assert.Contains(t, fake.removedIDs(), "c1", "the container is removed after one command")
}

func TestRunner_NonZeroExit(t *testing.T) {
	fake := &fakeDocker{stderr: "Traceback: ZeroDivisionError\n", exitCode: 1}
	r := newFakeRunner(t, fake)

	res, err := r.Run(context.Background(), process.Command{Args: []string{"python3", "x.py"}})
	require.NoError(t, err)

	assert.False(t, res.Succeeded())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "Traceback: ZeroDivisionError", res.Message())
}

func TestRunner_ExecutableNotFound(t *testing.T) {
	fake := &fakeDocker{
		stdout:   `OCI runtime exec failed: exec failed: unable to start container process: exec: "python3": executable file not found in $PATH: unknown`,
		exitCode: 127,
	}
	r := newFakeRunner(t, fake)

	res, err := r.Run(context.Background(), process.Command{Args: []string{"python3", "x.py"}})
	assert.Nil(t, res)

	var startErr *process.StartError
	require.True(t, errors.As(err, &startErr))
	assert.Equal(t, "python3", startErr.Program)
	assert.True(t, process.IsNotFound(err))
}

func TestRunner_Timeout(t *testing.T) {
	fake := &fakeDocker{hang: true}
	r := newFakeRunner(t, fake)

	start := time.Now()
	res, err := r.Run(context.Background(), process.Command{
		Args:    []string{"sleep", "30"},
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Equal(t, process.TimeoutExitCode, res.ExitCode)
	assert.Contains(t, res.Stderr, "Execution timed out after 200ms.")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, fake.removedIDs(), "c1")
}

func TestRunner_Cancelled(t *testing.T) {
	fake := &fakeDocker{hang: true}
	r := newFakeRunner(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	res, err := r.Run(ctx, process.Command{Args: []string{"sleep", "30"}, Timeout: 5 * time.Second})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunner_EmptyCommand(t *testing.T) {
	r := newFakeRunner(t, &fakeDocker{})

	_, err := r.Run(context.Background(), process.Command{})
	var startErr *process.StartError
	assert.True(t, errors.As(err, &startErr))
}

func TestPool_ContainerSandbox(t *testing.T) {
	fake := &fakeDocker{}
	r := newFakeRunner(t, fake)

	id, err := r.Pool().Acquire(context.Background())
	require.NoError(t, err)
	r.Pool().Remove(id)

	fake.mu.Lock()
	host := fake.created[0]
	fake.mu.Unlock()

	assert.Equal(t, container.NetworkMode("none"), host.NetworkMode)
	assert.True(t, host.ReadonlyRootfs)
	assert.Equal(t, []string{"/srv/code-runner/work:/srv/code-runner/work"}, host.Binds)
	assert.Contains(t, host.Tmpfs, "/tmp")
}

func TestPool_StopRemovesIdleContainers(t *testing.T) {
	fake := &fakeDocker{}
	cfg := docker.DefaultConfig()
	cfg.PoolSize = 2
	cfg.WorkspaceDir = "/work"
	pool := docker.NewPool(fake, cfg, testLogger())
	pool.Start()

	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.created) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()
	pool.Stop()

	fake.mu.Lock()
	created := len(fake.created)
	fake.mu.Unlock()
	assert.Len(t, fake.removedIDs(), created, "every container the pool created is removed")

	_, err := pool.Acquire(context.Background())
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := docker.DefaultConfig()
	assert.Error(t, cfg.Validate(), "workspace directory is required")

	cfg.WorkspaceDir = "/work"
	assert.NoError(t, cfg.Validate())

	cfg.PoolSize = 0
	assert.Error(t, cfg.Validate())
}

// TestRunner_Daemon runs real commands when a Docker daemon and the sandbox
// image are available.
func TestRunner_Daemon(t *testing.T) {
	image := os.Getenv("CODE_RUNNER_TEST_IMAGE")
	if image == "" {
		t.Skip("set CODE_RUNNER_TEST_IMAGE to run against a Docker daemon")
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		t.Skipf("docker daemon not reachable: %v", err)
	}
	cli.Close()

	dir := t.TempDir()
	cfg := docker.DefaultConfig()
	cfg.Image = image
	cfg.PoolSize = 1
	cfg.WorkspaceDir = dir

	r, err := docker.New(cfg, testLogger())
	require.NoError(t, err)
	defer r.Close()

	src := filepath.Join(dir, "program.sh")
	require.NoError(t, os.WriteFile(src, []byte("read line; echo \"got $line\""), 0o644))

	res, err := r.Run(context.Background(), process.Command{
		Args:    []string{"sh", src},
		Dir:     dir,
		Stdin:   "hello\n",
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded(), res.Message())
	assert.Equal(t, "got hello\n", res.Stdout)

	res, err = r.Run(context.Background(), process.Command{
		Args:    []string{"sleep", "30"},
		Dir:     dir,
		Timeout: time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}
