// Package watcher calls back when a single file changes on disk.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce coalesces the burst of events editors emit for one save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches one file. The parent directory is watched so that
// atomic saves (write temp file, rename over) are seen too.
type Watcher struct {
	fs       *fsnotify.Watcher
	onChange func()
	stopCh   chan struct{}
	done     chan struct{}
	path     string
	debounce time.Duration
	stopOnce sync.Once
}

// New creates a watcher for path. onChange runs on its own goroutine after
// the debounce delay.
func New(path string, onChange func()) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watcher: onChange is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		fs:       fsw,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		path:     abs,
		debounce: DefaultDebounce,
	}, nil
}

// SetDebounce overrides the debounce delay. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.loop()
	return nil
}

// Stop stops watching and waits for the loop to exit. Pending callbacks are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fs.Close()
	})
	select {
	case <-w.done:
	case <-time.After(time.Second):
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug().Str("path", w.path).Str("op", event.Op.String()).Msg("Watched file changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("path", w.path).Msg("File watcher error")

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) fire() {
	select {
	case <-w.stopCh:
		return
	default:
	}
	w.onChange()
}
