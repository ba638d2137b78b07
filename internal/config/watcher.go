// Package config watches the files "cpmgmt apply --watch" depends on and
// handles SIGHUP so the playbook and configuration can change without a
// restart.
package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc is called with the path of a watched file after it changed.
// A returned error is logged and does not stop the watcher.
type ChangeFunc func(path string) error

// SetupSIGHUPHandler calls fn with path on every SIGHUP until ctx is done.
// SIGHUP is the standard Unix signal for configuration reload.
// The handler is registered before SetupSIGHUPHandler returns.
//
// Usage:
//
//	config.SetupSIGHUPHandler(ctx, "/path/to/config.yaml", app.reloadConfig)
//	// Now: kill -HUP <pid> triggers reload
func SetupSIGHUPHandler(ctx context.Context, path string, fn ChangeFunc) {
	// Buffered channel prevents signal loss if handler is busy
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sighup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sighup:
				log.Infof("SIGHUP received, reloading %s...", path)
				if err := fn(path); err != nil {
					log.Errorf("Reload of %s failed: %v", path, err)
				}
			}
		}
	}()

	log.Info("SIGHUP handler configured for config reload")
}

// FileWatcher runs a ChangeFunc when its file is written or replaced.
//
// Directories are watched rather than files: editors such as vim save by
// writing a temporary file and renaming it over the original, which
// replaces the inode a file-level watch would be attached to.
//
// Events for one file are debounced, and callbacks never run concurrently,
// so a playbook is not re-applied while a previous run is in flight.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu     sync.Mutex
	files  map[string]ChangeFunc
	timers map[string]*time.Timer
	closed bool

	// Serializes callbacks.
	runMu sync.Mutex
	done  chan struct{}
}

// NewFileWatcher starts a watcher with the given debounce window.
// A zero debounce uses DefaultDebounce.
//
// The caller must Close the watcher.
func NewFileWatcher(debounce time.Duration) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &FileWatcher{
		watcher:  watcher,
		debounce: debounce,
		files:    make(map[string]ChangeFunc),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers fn for path. Watching the same path again replaces fn.
// Returns an error if the directory containing path cannot be watched.
func (w *FileWatcher) Watch(path string, fn ChangeFunc) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w.mu.Lock()
	w.files[abs] = fn
	w.mu.Unlock()

	log.Infof("Watching file: %s", path)
	return nil
}

// Close stops the watcher. Pending debounced callbacks are dropped.
func (w *FileWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *FileWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.schedule(filepath.Clean(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("File watcher error: %v", err)
		}
	}
}

// schedule (re)arms the debounce timer for path if it is watched.
func (w *FileWatcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if _, ok := w.files[path]; !ok {
		return
	}

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.fire(path)
	})
}

func (w *FileWatcher) fire(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	fn := w.files[path]
	closed := w.closed
	w.mu.Unlock()
	if closed || fn == nil {
		return
	}

	w.runMu.Lock()
	defer w.runMu.Unlock()

	log.Infof("%s changed, reloading...", path)
	if err := fn(path); err != nil {
		log.Errorf("Reload of %s failed: %v", path, err)
	}
}
