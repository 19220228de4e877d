package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code-runner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, RunnerLocal, cfg.Executor.Runner)
	assert.Equal(t, 10*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, 50000, cfg.Executor.MaxCodeLength)
	assert.Equal(t, 10000, cfg.Executor.MaxInputLength)
	assert.Equal(t, []string{"html", "css", "csharp"}, cfg.Snippets.DisplayOnlyLanguages)

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	assert.Len(t, pipelines, 7)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
executor:
  runner: docker
  default_timeout: 4s
  workspace_dir: /var/lib/code-runner/work
docker:
  image: registry.local/sandbox:1
  pool_size: 5
languages:
  - id: python
    name: Python
    extension: .py
    run:
      command: pypy3 {src}
      timeout: 20s
  - id: ruby
    name: Ruby
    extension: .rb
    run:
      command: ruby {src}
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, RunnerDocker, cfg.Executor.Runner)
	assert.Equal(t, 4*time.Second, cfg.Executor.DefaultTimeout)
	assert.Equal(t, "registry.local/sandbox:1", cfg.Docker.Image)
	assert.Equal(t, 5, cfg.Docker.PoolSize)
	// Untouched nested defaults survive.
	assert.Equal(t, "data/code-runner.db", cfg.Database.Path)
	assert.Equal(t, int64(256*1024*1024), cfg.Docker.MemoryLimit)

	docker := cfg.DockerConfig()
	assert.Equal(t, "/var/lib/code-runner/work", docker.WorkspaceDir)

	pipelines, err := cfg.Pipelines()
	require.NoError(t, err)
	assert.Len(t, pipelines, 8)

	byID := make(map[string][]string)
	for _, p := range pipelines {
		byID[p.ID] = p.Run.Command
	}
	assert.Equal(t, []string{"pypy3", "{src}"}, byID["python"])
	assert.Equal(t, []string{"ruby", "{src}"}, byID["ruby"])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("PORT", "7000")
	t.Setenv("EXEC_TIMEOUT", "2500ms")
	t.Setenv("RUNNER", "LOCAL")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("WORKSPACE_DIR", "/tmp/elsewhere")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.Executor.DefaultTimeout)
	assert.Equal(t, RunnerLocal, cfg.Executor.Runner)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/tmp/elsewhere", cfg.Executor.WorkspaceDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad port", env: map[string]string{"PORT": "eighty"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "bad timeout", env: map[string]string{"EXEC_TIMEOUT": "soon"}},
		{name: "unknown runner", env: map[string]string{"RUNNER": "firecracker"}},
		{name: "bad level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "bad format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "bad pool size", env: map[string]string{"DOCKER_POOL_SIZE": "many"}},
		{name: "invalid yaml", file: "server: [port"},
		{name: "invalid language", file: "languages:\n  - id: x\n    extension: x\n    run:\n      command: x\n"},
		{name: "unknown resolver", file: "languages:\n  - id: k\n    extension: .kt\n    entry_point: kotlin-main\n    run:\n      command: kotlin {entry}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/code-runner.yaml")
	assert.Equal(t, "/etc/code-runner.yaml", PathFromEnv())
}
