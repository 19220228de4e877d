// Package config loads the server configuration.
//
// Values come from three layers, each overriding the previous one:
// the built-in defaults, an optional YAML file, and environment variables.
// The result is validated once at startup.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sakif/code-runner/internal/executor/docker"
	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/executor/process"
)

// Runner kinds.
const (
	RunnerLocal  = "local"
	RunnerDocker = "docker"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Executor ExecutorConfig `yaml:"executor"`
	Docker   docker.Config  `yaml:"docker"`
	// Languages override built-in pipelines with the same id, or add new ones.
	Languages []language.Spec `yaml:"languages"`
	Snippets  SnippetsConfig  `yaml:"snippets"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// DatabaseConfig configures the snippet store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the process-wide logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ExecutorConfig configures the execution engine.
type ExecutorConfig struct {
	WorkspaceDir   string        `yaml:"workspace_dir"`
	Runner         string        `yaml:"runner"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`
	MaxCodeLength  int           `yaml:"max_code_length"`
	MaxInputLength int           `yaml:"max_input_length"`
}

// SnippetsConfig configures the saved-code store.
type SnippetsConfig struct {
	// DisplayOnlyLanguages may be saved but not executed.
	DisplayOnlyLanguages []string `yaml:"display_only_languages"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Database: DatabaseConfig{
			Path: "data/code-runner.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Executor: ExecutorConfig{
			WorkspaceDir:   filepath.Join(os.TempDir(), "code-runner"),
			Runner:         RunnerLocal,
			DefaultTimeout: process.DefaultTimeout,
			MaxOutputBytes: process.DefaultMaxOutputBytes,
			MaxCodeLength:  50000,
			MaxInputLength: 10000,
		},
		Docker: docker.DefaultConfig(),
		Snippets: SnippetsConfig{
			DisplayOnlyLanguages: []string{"html", "css", "csharp"},
		},
	}
}

// Load reads the YAML file at path (if path is not empty) over the defaults,
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PathFromEnv returns the config file named by CONFIG_PATH, or
// "code-runner.yaml" in the working directory if that exists.
func PathFromEnv() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("code-runner.yaml"); err == nil {
		return "code-runner.yaml"
	}
	return ""
}

func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("WORKSPACE_DIR"); v != "" {
		c.Executor.WorkspaceDir = v
	}
	if v := os.Getenv("RUNNER"); v != "" {
		c.Executor.Runner = strings.ToLower(v)
	}
	if v := os.Getenv("EXEC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid EXEC_TIMEOUT %q: %w", v, err)
		}
		c.Executor.DefaultTimeout = d
	}
	if v := os.Getenv("MAX_OUTPUT_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_OUTPUT_BYTES %q: %w", v, err)
		}
		c.Executor.MaxOutputBytes = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("DOCKER_IMAGE"); v != "" {
		c.Docker.Image = v
	}
	if v := os.Getenv("DOCKER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DOCKER_POOL_SIZE %q: %w", v, err)
		}
		c.Docker.PoolSize = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	if c.Executor.WorkspaceDir == "" {
		return fmt.Errorf("executor workspace directory is required")
	}
	if c.Executor.DefaultTimeout <= 0 {
		return fmt.Errorf("executor default timeout must be positive")
	}
	if c.Executor.MaxCodeLength <= 0 || c.Executor.MaxInputLength < 0 {
		return fmt.Errorf("executor length limits must be positive")
	}

	switch c.Executor.Runner {
	case RunnerLocal:
	case RunnerDocker:
		if err := c.DockerConfig().Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown runner %q (want %s or %s)", c.Executor.Runner, RunnerLocal, RunnerDocker)
	}

	if _, err := c.Pipelines(); err != nil {
		return err
	}
	return nil
}

// Pipelines builds the language table: the built-in pipelines merged with
// the configured ones.
func (c *Config) Pipelines() ([]language.Pipeline, error) {
	return language.BuildAll(language.Merge(language.DefaultSpecs(), c.Languages))
}

// DockerConfig returns the docker runner settings completed with the
// executor's workspace and output limits.
func (c *Config) DockerConfig() docker.Config {
	d := c.Docker
	d.WorkspaceDir = c.Executor.WorkspaceDir
	if abs, err := filepath.Abs(d.WorkspaceDir); err == nil {
		d.WorkspaceDir = abs
	}
	d.MaxOutputBytes = c.Executor.MaxOutputBytes
	return d
}

// NewLogger builds the process-wide logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
