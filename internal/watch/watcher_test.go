package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, opts Options) (*Watcher, context.CancelFunc) {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, cancel
}

func TestNew_RequiresTrigger(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_SkipsMissingDirectories(t *testing.T) {
	root := t.TempDir()
	w, err := New(Options{
		Recursive: []string{filepath.Join(root, "missing")},
		Flat:      []string{filepath.Join(root, "also-missing")},
		Trigger:   func() {},
	})
	require.NoError(t, err)
	defer w.fs.Close()
	assert.Empty(t, w.WatchList())
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	sessions := filepath.Join(root, "sessions", "2025")
	require.NoError(t, os.MkdirAll(sessions, 0o755))

	var fired atomic.Int32
	startWatcher(t, Options{
		Recursive: []string{filepath.Join(root, "sessions")},
		Relevant:  func(path string) bool { return strings.HasSuffix(path, ".jsonl") },
		Debounce:  100 * time.Millisecond,
		Trigger:   func() { fired.Add(1) },
	})

	path := filepath.Join(sessions, "rollout.jsonl")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x\n", i+1)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return fired.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()

	var fired atomic.Int32
	startWatcher(t, Options{
		Flat:     []string{root},
		Relevant: func(path string) bool { return strings.HasSuffix(path, ".log") },
		Debounce: 50 * time.Millisecond,
		Trigger:  func() { fired.Add(1) },
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())

	require.NoError(t, os.WriteFile(filepath.Join(root, "codex-desktop-a.log"), []byte("x\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_FollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	var fired atomic.Int32
	w, _ := startWatcher(t, Options{
		Recursive: []string{root},
		Relevant:  func(path string) bool { return strings.HasSuffix(path, ".jsonl") },
		Debounce:  50 * time.Millisecond,
		Trigger:   func() { fired.Add(1) },
	})

	day := filepath.Join(root, "2025", "09")
	require.NoError(t, os.MkdirAll(day, 0o755))
	assert.Eventually(t, func() bool {
		for _, p := range w.WatchList() {
			if p == day {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	before := fired.Load()
	require.NoError(t, os.WriteFile(filepath.Join(day, "rollout.jsonl"), []byte("{}\n"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() > before }, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_TriggerPanicDoesNotStopWatching(t *testing.T) {
	root := t.TempDir()

	var fired atomic.Int32
	startWatcher(t, Options{
		Flat:     []string{root},
		Debounce: 50 * time.Millisecond,
		Trigger: func() {
			fired.Add(1)
			panic("boom")
		},
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return fired.Load() == 2 }, 5*time.Second, 20*time.Millisecond)
}
