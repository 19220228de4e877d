package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const (
	// poolLabel marks containers owned by the pool so leftovers of a crashed
	// process can be found with `docker ps --filter label=code-runner.pool`.
	poolLabel = "code-runner.pool"

	createTimeout = 10 * time.Second
	removeTimeout = 5 * time.Second
	refillBackoff = time.Second
)

// Pool keeps a number of idle, started containers ready to exec into.
// Every container is handed out once and must be removed by the caller.
type Pool struct {
	cli    client.APIClient
	config Config
	logger *slog.Logger

	ready    chan string
	done     chan struct{}
	wg       sync.WaitGroup
	start    sync.Once
	stopOnce sync.Once
}

// NewPool creates a pool. Start must be called before Acquire can succeed.
func NewPool(cli client.APIClient, cfg Config, logger *slog.Logger) *Pool {
	return &Pool{
		cli:    cli,
		config: cfg,
		logger: logger,
		ready:  make(chan string, cfg.PoolSize),
		done:   make(chan struct{}),
	}
}

// Start fills the pool in the background.
func (p *Pool) Start() {
	p.start.Do(func() {
		p.logger.Info("starting container pool",
			slog.String("image", p.config.Image),
			slog.Int("poolSize", p.config.PoolSize),
		)
		p.wg.Add(1)
		go p.refill()
	})
}

// Stop ends the refill loop and removes every idle container.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping container pool")
		close(p.done)
		p.wg.Wait()

		for {
			select {
			case id := <-p.ready:
				p.Remove(id)
			default:
				return
			}
		}
	})
}

// Acquire takes a container out of the pool, waiting until one is ready or
// ctx is done.
func (p *Pool) Acquire(ctx context.Context) (string, error) {
	select {
	case id := <-p.ready:
		return id, nil
	case <-p.done:
		return "", fmt.Errorf("docker: pool is stopped")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Remove force-removes a container, killing whatever still runs in it.
func (p *Pool) Remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove container",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
	}
}

// refill blocks on the channel send, so it creates a new container exactly
// when one has been taken.
func (p *Pool) refill() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		default:
		}

		id, err := p.create()
		if err != nil {
			p.logger.Error("failed to create pre-warmed container", slog.String("error", err.Error()))
			select {
			case <-time.After(refillBackoff):
				continue
			case <-p.done:
				return
			}
		}

		select {
		case p.ready <- id:
		case <-p.done:
			p.Remove(id)
			return
		}
	}
}

// create starts an idle container that mounts the workspace and does nothing
// until commands are exec'd into it.
func (p *Pool) create() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), createTimeout)
	defer cancel()

	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   p.config.MemoryLimit,
			NanoCPUs: int64(p.config.CPULimit * 1e9),
		},
		Binds: []string{p.config.WorkspaceDir + ":" + p.config.WorkspaceDir},
		// The root filesystem stays read-only; toolchains that need scratch
		// space get a private /tmp.
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,exec,size=64m"},
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:  p.config.Image,
		Cmd:    []string{"sleep", "infinity"},
		Env:    []string{"HOME=/tmp"},
		User:   p.config.User,
		Labels: map[string]string{poolLabel: "true"},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.Remove(resp.ID)
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	return resp.ID, nil
}
