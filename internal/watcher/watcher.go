// Package watcher reloads the job definitions file when it changes.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/turbo/internal/log"
)

// Watcher signals when the definitions file has settled after a burst of
// edits.
type Watcher struct {
	fs       *fsnotify.Watcher
	path     string
	quiet    time.Duration
	changed  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// Config names the file to follow and how long it must stay untouched
// before a change is reported.
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultConfig follows path with a half second quiet period.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		DebounceDur: 500 * time.Millisecond,
	}
}

// New prepares a watcher. Nothing is observed until Start.
func New(cfg Config) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	return &Watcher{
		fs:      fs,
		path:    cfg.Path,
		quiet:   cfg.DebounceDur,
		changed: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}, nil
}

// Start subscribes to the file's parent directory so that editors replacing
// the file by rename are seen too. At most one signal is buffered on the
// returned channel.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fs.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}
	go w.run()
	return w.changed, nil
}

// Stop ends the watch. Calling it more than once is harmless.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) run() {
	var (
		quiet *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.touchesFile(ev) {
				continue
			}
			if quiet == nil {
				quiet = time.NewTimer(w.quiet)
			} else {
				quiet.Reset(w.quiet)
			}
			fire = quiet.C

		case <-fire:
			fire = nil
			w.signal()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "file watcher error", err, "path", w.path)
		}
	}
}

// signal never blocks; a signal already waiting covers this one.
func (w *Watcher) signal() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

func (w *Watcher) touchesFile(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Base(ev.Name) == filepath.Base(w.path)
}
