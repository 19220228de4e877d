package server_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/metrics"
	"github.com/sakif/code-runner/internal/repository/sqlite"
	"github.com/sakif/code-runner/internal/server"
)

type echoExecutor struct{}

func (echoExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	return &executor.ExecutionResult{Success: true, Stdout: req.Stdin, Language: req.Language}, nil
}

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func newTestServer(t *testing.T, cfg server.Config, closers ...io.Closer) *server.Server {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := language.NewRegistry(language.Defaults()...)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg)
	collector.ExecutionStarted("python")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	srv, err := server.New(cfg, server.Deps{
		Executor:  echoExecutor{},
		Languages: reg,
		Snippets:  db,
		Metrics:   metrics.Handler(promReg),
		Ping:      db.Ping,
		Closers:   closers,
	}, logger)
	require.NoError(t, err)
	return srv
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := server.New(server.Config{}, server.Deps{}, slog.Default())
	assert.Error(t, err)
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t, server.Config{MaxBodyBytes: 1 << 20})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}
	post := func(path, body string) (int, string) {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(out)
	}

	status, body := get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "coderunner_executions_in_flight")

	status, body = get("/api/languages")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"id":"python"`)

	for _, path := range []string{"/api/compile", "/compile"} {
		status, body = post(path, `{"language":"python","code":"print(input())","input":"hi"}`)
		assert.Equal(t, http.StatusOK, status, path)
		assert.Contains(t, body, `"output":"hi"`, path)
	}

	status, body = get("/api/codes")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"pagination"`)

	status, _ = get("/api/codes/statistics")
	assert.Equal(t, http.StatusOK, status)
}

func TestBodyLimit(t *testing.T) {
	srv := newTestServer(t, server.Config{MaxBodyBytes: 64})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := `{"language":"python","code":"` + strings.Repeat("x", 200) + `"}`
	resp, err := http.Post(ts.URL+"/api/compile", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServe_ShutdownRunsClosers(t *testing.T) {
	closer := &closeRecorder{}
	srv := newTestServer(t, server.Config{ShutdownTimeout: time.Second}, closer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.True(t, closer.closed)
}
