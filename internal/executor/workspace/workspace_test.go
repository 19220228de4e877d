package workspace_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-runner/internal/executor/workspace"
)

func newTestManager(t *testing.T, opts ...workspace.Option) *workspace.Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	m, err := workspace.New(filepath.Join(t.TempDir(), "scopes"), logger, opts...)
	require.NoError(t, err)
	return m
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	return list
}

func TestNew_CreatesBaseDir(t *testing.T) {
	m := newTestManager(t)

	info, err := os.Stat(m.BaseDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(m.BaseDir()))
}

func TestNew_RequiresBaseDir(t *testing.T) {
	_, err := workspace.New("", slog.Default())
	assert.Error(t, err)
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager(t)

	s, err := m.Acquire()
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)
	assert.Equal(t, m.BaseDir(), filepath.Dir(s.Dir))

	src, err := s.WriteFile("program.py", []byte("print('ok')"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir, "program.py"), src)

	copied, err := s.CopyFile(src, "Main.java")
	require.NoError(t, err)
	data, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, "print('ok')", string(data))

	// An untracked file written by a compiler.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, "Main$Inner.class"), []byte{0xCA, 0xFE}, 0o644))

	assert.Equal(t, []string{src, copied}, s.Artifacts())

	m.Release(s)
	_, err = os.Stat(s.Dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, entries(t, m.BaseDir()))

	// A second release is harmless.
	m.Release(s)
	m.Release(nil)
}

func TestScope_TrackDeduplicates(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Acquire()
	require.NoError(t, err)
	defer m.Release(s)

	s.Track(s.Path("program"))
	s.Track(s.Path("program"))
	assert.Len(t, s.Artifacts(), 1)
}

func TestScope_PathStaysInside(t *testing.T) {
	m := newTestManager(t)
	s, err := m.Acquire()
	require.NoError(t, err)
	defer m.Release(s)

	assert.Equal(t, filepath.Join(s.Dir, "passwd"), s.Path("../../etc/passwd"))
}

func TestWith_ReleasesOnError(t *testing.T) {
	m := newTestManager(t)
	boom := errors.New("boom")

	var dir string
	err := m.With(func(s *workspace.Scope) error {
		dir = s.Dir
		_, werr := s.WriteFile("a.txt", []byte("a"))
		require.NoError(t, werr)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, statErr := os.Stat(dir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	m := newTestManager(t)

	var dir string
	assert.Panics(t, func() {
		_ = m.With(func(s *workspace.Scope) error {
			dir = s.Dir
			_, _ = s.WriteFile("a.txt", []byte("a"))
			panic("mid-pipeline failure")
		})
	})

	_, err := os.Stat(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Empty(t, entries(t, m.BaseDir()))
}

func TestRelease_FailureIsReportedNotPropagated(t *testing.T) {
	var mu sync.Mutex
	var failed []string
	m := newTestManager(t, workspace.WithReleaseHook(func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, path)
	}))

	s, err := m.Acquire()
	require.NoError(t, err)

	// os.Remove refuses a non-empty directory, even for root.
	stubborn := s.Path("stubborn")
	require.NoError(t, os.MkdirAll(filepath.Join(stubborn, "child"), 0o755))
	s.Track(stubborn)
	later, err := s.WriteFile("later.txt", []byte("x"))
	require.NoError(t, err)

	m.Release(s)

	assert.Equal(t, []string{stubborn}, failed)
	_, err = os.Stat(later)
	assert.True(t, errors.Is(err, os.ErrNotExist), "artifacts after a failed one are still removed")
	assert.Empty(t, entries(t, m.BaseDir()))
}

func TestAcquire_ConcurrentScopesAreUnique(t *testing.T) {
	m := newTestManager(t)
	const n = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.With(func(s *workspace.Scope) error {
				mu.Lock()
				seen[s.Dir] = true
				mu.Unlock()
				_, err := s.WriteFile("program.c", []byte("int main(){}"))
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Empty(t, entries(t, m.BaseDir()))
}
