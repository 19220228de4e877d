package docker

import "fmt"

// Config holds the configuration of the Docker runner.
type Config struct {
	// Image must provide every interpreter and compiler the language table
	// refers to.
	Image string `yaml:"image"`
	// PullImage pulls Image before the pool starts. Leave it off for images
	// built locally.
	PullImage bool `yaml:"pull_image"`
	// MemoryLimit is the maximum amount of memory a container can use (in bytes).
	MemoryLimit int64 `yaml:"memory_limit"`
	// CPULimit is the number of CPUs a container can use.
	CPULimit float64 `yaml:"cpu_limit"`
	// PoolSize is the number of pre-warmed containers to maintain.
	PoolSize int `yaml:"pool_size"`
	// User runs the commands inside the container. Empty means the image default.
	User string `yaml:"user"`
	// WorkspaceDir is the host directory holding execution scopes. It is
	// bind-mounted at the same path so that paths in commands resolve
	// identically inside the container.
	WorkspaceDir string `yaml:"-"`
	// MaxOutputBytes caps stdout and stderr independently.
	MaxOutputBytes int `yaml:"-"`
}

// DefaultConfig provides defaults for a polyglot sandbox image.
func DefaultConfig() Config {
	return Config{
		Image: "code-runner-sandbox:latest",
		// 256 MB memory limit, compilers need more than interpreters
		MemoryLimit: 256 * 1024 * 1024,
		// 1 CPU
		CPULimit: 1,
		PoolSize: 3,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Image == "":
		return fmt.Errorf("docker: image is required")
	case c.PoolSize < 1:
		return fmt.Errorf("docker: pool size must be at least 1, got %d", c.PoolSize)
	case c.WorkspaceDir == "":
		return fmt.Errorf("docker: workspace directory is required")
	case c.MemoryLimit < 0 || c.CPULimit < 0:
		return fmt.Errorf("docker: resource limits must not be negative")
	}
	return nil
}
