// Package workspace hands out one private directory per execution and
// guarantees its removal.
//
// LIFECYCLE:
//
//	m, _ := workspace.New("/tmp/code-runner", logger)
//	err := m.With(func(s *workspace.Scope) error {
//	    path, err := s.WriteFile("program.py", source)
//	    ...
//	})
//
// With releases the scope on every exit path, including a panic inside the
// callback. Acquire/Release are available for callers that need to manage
// the lifetime themselves; Release is idempotent.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// ReleaseHook is called once for every path that could not be removed.
type ReleaseHook func(path string, err error)

// Option configures a Manager.
type Option func(*Manager)

// WithReleaseHook registers fn to be told about cleanup failures, in addition
// to the log line the Manager always writes.
func WithReleaseHook(fn ReleaseHook) Option {
	return func(m *Manager) {
		m.onReleaseError = fn
	}
}

// Manager allocates scopes under a shared base directory.
type Manager struct {
	baseDir        string
	logger         *slog.Logger
	onReleaseError ReleaseHook
}

// New creates the base directory if it does not exist and returns a Manager.
func New(baseDir string, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if baseDir == "" {
		return nil, errors.New("workspace: base directory is required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving %s: %w", baseDir, err)
	}
	if err := os.MkdirAll(abs, dirMode); err != nil {
		return nil, fmt.Errorf("workspace: creating base directory: %w", err)
	}

	m := &Manager{
		baseDir: abs,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// BaseDir returns the absolute path all scopes live under.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// Acquire creates a fresh scope with a random 128-bit name.
func (m *Manager) Acquire() (*Scope, error) {
	id := uuid.NewString()
	dir := filepath.Join(m.baseDir, id)

	// Mkdir (not MkdirAll) fails if the name is somehow already taken.
	if err := os.Mkdir(dir, dirMode); err != nil {
		return nil, fmt.Errorf("workspace: creating scope %s: %w", id, err)
	}

	m.logger.Debug("workspace scope acquired", slog.String("scope", id))
	return &Scope{ID: id, Dir: dir}, nil
}

// Release deletes every artifact tracked by s and then the scope directory.
// Failures are logged and reported to the release hook; they never propagate.
// Calling Release more than once is a no-op.
func (m *Manager) Release(s *Scope) {
	if s == nil {
		return
	}
	s.releaseOnce.Do(func() {
		failures := 0
		for _, path := range s.Artifacts() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				failures++
				m.reportFailure(s, path, err)
			}
		}
		if err := os.RemoveAll(s.Dir); err != nil {
			failures++
			m.reportFailure(s, s.Dir, err)
		}
		m.logger.Debug("workspace scope released",
			slog.String("scope", s.ID),
			slog.Int("artifacts", len(s.artifacts)),
			slog.Int("failures", failures),
		)
	})
}

// With acquires a scope, runs fn inside it and releases the scope however fn
// returns.
func (m *Manager) With(fn func(*Scope) error) error {
	s, err := m.Acquire()
	if err != nil {
		return err
	}
	defer m.Release(s)
	return fn(s)
}

func (m *Manager) reportFailure(s *Scope, path string, err error) {
	m.logger.Error("failed to remove workspace artifact",
		slog.String("scope", s.ID),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	if m.onReleaseError != nil {
		m.onReleaseError(path, err)
	}
}

// Scope is the private directory of one execution.
//
// A Scope belongs to a single request and is not safe for concurrent use.
type Scope struct {
	ID  string
	Dir string

	artifacts   []string
	releaseOnce sync.Once
}

// Path returns the absolute path of name inside the scope.
func (s *Scope) Path(name string) string {
	return filepath.Join(s.Dir, filepath.Base(name))
}

// Track records path as an artifact to delete on release.
func (s *Scope) Track(path string) {
	for _, p := range s.artifacts {
		if p == path {
			return
		}
	}
	s.artifacts = append(s.artifacts, path)
}

// Artifacts returns the tracked paths in creation order.
func (s *Scope) Artifacts() []string {
	out := make([]string, len(s.artifacts))
	copy(out, s.artifacts)
	return out
}

// WriteFile writes data to name inside the scope and tracks it.
func (s *Scope) WriteFile(name string, data []byte) (string, error) {
	path := s.Path(name)
	s.Track(path)
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return "", fmt.Errorf("workspace: writing %s: %w", name, err)
	}
	return path, nil
}

// CopyFile copies src to name inside the scope and tracks the copy.
func (s *Scope) CopyFile(src, name string) (string, error) {
	dst := s.Path(name)
	if dst == src {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("workspace: opening %s: %w", src, err)
	}
	defer in.Close()

	s.Track(dst)
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return "", fmt.Errorf("workspace: creating %s: %w", name, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("workspace: copying to %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("workspace: closing %s: %w", name, err)
	}
	return dst, nil
}
