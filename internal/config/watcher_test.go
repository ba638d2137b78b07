package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 20 * time.Millisecond

// waitForCount polls counter until it reaches want or two seconds elapse.
func waitForCount(counter *int32, want int32) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func newWatchedFile(t *testing.T, name string, fn ChangeFunc) (string, *FileWatcher) {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("steps: []"), 0644))

	w, err := NewFileWatcher(testDebounce)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, w.Watch(path, fn))

	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)
	return path, w
}

func TestFileWatcherWrite(t *testing.T) {
	var count int32
	var seen atomic.Value
	path, _ := newWatchedFile(t, "playbook.yaml", func(p string) error {
		seen.Store(p)
		atomic.AddInt32(&count, 1)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("publish: true"), 0644))

	require.True(t, waitForCount(&count, 1), "expected change callback")
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, seen.Load())
}

func TestFileWatcherAtomicWrite(t *testing.T) {
	var count int32
	path, _ := newWatchedFile(t, "playbook.yaml", func(string) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	// Simulate atomic write (like vim does): write to temp, then rename
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("publish: true"), 0644))
	require.NoError(t, os.Rename(tmp, path))

	assert.True(t, waitForCount(&count, 1), "expected change callback on atomic write")
}

func TestFileWatcherDebounce(t *testing.T) {
	var count int32
	path, _ := newWatchedFile(t, "playbook.yaml", func(string) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("publish: true"), 0644))
	}

	require.True(t, waitForCount(&count, 1))
	time.Sleep(10 * testDebounce)
	assert.Less(t, atomic.LoadInt32(&count), int32(5))
}

func TestFileWatcherCallbackError(t *testing.T) {
	var count int32
	path, _ := newWatchedFile(t, "playbook.yaml", func(string) error {
		atomic.AddInt32(&count, 1)
		return errors.New("apply failed")
	})

	require.NoError(t, os.WriteFile(path, []byte("publish: true"), 0644))
	require.True(t, waitForCount(&count, 1))

	// The watcher keeps running after a failed callback.
	time.Sleep(5 * testDebounce)
	require.NoError(t, os.WriteFile(path, []byte("publish: false"), 0644))
	assert.True(t, waitForCount(&count, 2))
}

func TestFileWatcherIgnoresOtherFiles(t *testing.T) {
	var count int32
	path, _ := newWatchedFile(t, "playbook.yaml", func(string) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	other := filepath.Join(filepath.Dir(path), "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte("other: content"), 0644))

	time.Sleep(15 * testDebounce)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestFileWatcherNonexistentDir(t *testing.T) {
	w, err := NewFileWatcher(0)
	require.NoError(t, err)
	defer w.Close()

	err = w.Watch("/nonexistent/path/playbook.yaml", func(string) error { return nil })
	assert.Error(t, err)
}

func TestFileWatcherClose(t *testing.T) {
	var count int32
	path, w := newWatchedFile(t, "playbook.yaml", func(string) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(path, []byte("publish: true"), 0644))
	time.Sleep(15 * testDebounce)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestSetupSIGHUPHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count int32
	SetupSIGHUPHandler(ctx, "config.yaml", func(path string) error {
		assert.Equal(t, "config.yaml", path)
		atomic.AddInt32(&count, 1)
		return nil
	})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	assert.True(t, waitForCount(&count, 1), "expected reload on SIGHUP")
}
