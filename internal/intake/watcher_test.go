package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

type recorder struct {
	mu    sync.Mutex
	names []string
	fail  map[string]bool
}

func (r *recorder) handle(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("empty file")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := filepath.Base(path)
	r.names = append(r.names, name)
	if r.fail[name] {
		return errors.New("rejected")
	}
	return nil
}

func (r *recorder) handled() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func startWatcher(t *testing.T, dir string, h Handler, clock timeutil.Clock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := NewWatcher(dir, h)
	w.Settle = 20 * time.Millisecond
	if clock != nil {
		w.Clock = clock
	}
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_ExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.json"), `{}`)
	writeFile(t, filepath.Join(dir, "a.json"), `{}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	rec := &recorder{}
	startWatcher(t, dir, rec.handle, nil)

	require.Eventually(t, func() bool { return len(rec.handled()) == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"a.json", "b.json"}, rec.handled(), "existing files are handled in name order")

	writeFile(t, filepath.Join(dir, "c.json"), `{}`)
	require.Eventually(t, func() bool { return len(rec.handled()) == 3 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "c.json", rec.handled()[2])

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "c.json"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "a.json"))
	assert.NoFileExists(t, filepath.Join(dir, "a.json"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestWatcher_FailedFilesAreSetAside(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{fail: map[string]bool{"bad.json": true}}
	startWatcher(t, dir, rec.handle, nil)

	waitWatching(t, dir)

	writeFile(t, filepath.Join(dir, "bad.json"), `{}`)
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir, "bad.json"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dir, ProcessedDir, "bad.json"))
}

func TestWatcher_InterruptedFileStaysInInbox(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var calls []string
	handler := func(ctx context.Context, path string) error {
		calls = append(calls, filepath.Base(path))
		cancel()
		return ctx.Err()
	}

	w := NewWatcher(dir, handler)
	w.Settle = 20 * time.Millisecond
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, []string{"a.json"}, calls)
	for _, name := range []string{"a.json", "b.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.NoFileExists(t, filepath.Join(dir, FailedDir, name))
		assert.NoFileExists(t, filepath.Join(dir, ProcessedDir, name))
	}
}

func waitWatching(t *testing.T, dir string) {
	t.Helper()
	// failed/ is created once the inbox is watched.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_WaitsForFileToSettle(t *testing.T) {
	dir := t.TempDir()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	rec := &recorder{}
	startWatcher(t, dir, rec.handle, clock)
	waitWatching(t, dir)

	writeFile(t, filepath.Join(dir, "s.json"), `{}`)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.handled(), "the mock clock has not moved, so the file has not settled")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(rec.handled()) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocker, "x")

	w := NewWatcher(filepath.Join(blocker, "inbox"), func(context.Context, string) error { return nil })
	assert.Error(t, w.Run(context.Background()))
}

func TestIsSessionFile(t *testing.T) {
	assert.True(t, isSessionFile("/in/a.json"))
	assert.True(t, isSessionFile("/in/A.JSON"))
	assert.False(t, isSessionFile("/in/a.json.tmp"))
	assert.False(t, isSessionFile("/in/processed"))
}
