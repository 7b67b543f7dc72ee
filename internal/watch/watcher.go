// Package watch decides when to run ingestion: it watches the source trees
// and fires a trigger once writes have settled for the debounce interval.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanpelt/codexlens/internal/logger"
	"github.com/vanpelt/codexlens/internal/recovery"
)

// Options configures a Watcher
type Options struct {
	// Recursive directories are watched together with every subdirectory
	Recursive []string
	// Flat directories are watched without descending
	Flat []string
	// Relevant filters the files whose changes count; nil accepts all
	Relevant func(path string) bool
	Debounce time.Duration
	Trigger  func()
}

// Watcher coalesces file events into debounced triggers
type Watcher struct {
	fs        *fsnotify.Watcher
	opts      Options
	recursive map[string]bool
	triggers  chan struct{}
}

// New starts watching every existing directory in opts
func New(opts Options) (*Watcher, error) {
	if opts.Trigger == nil {
		return nil, errors.New("watch: trigger is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		fs:        fsw,
		opts:      opts,
		recursive: make(map[string]bool),
		triggers:  make(chan struct{}, 1),
	}

	for _, dir := range opts.Recursive {
		w.recursive[filepath.Clean(dir)] = true
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	for _, dir := range opts.Flat {
		if err := w.add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// WatchList returns the directories currently watched
func (w *Watcher) WatchList() []string {
	return w.fs.WatchList()
}

// Run processes events until ctx is done. Triggers run one at a time on a
// separate goroutine; events arriving during a trigger schedule one more.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	done := make(chan struct{})
	recovery.SafeGo("watch-trigger", func() {
		defer close(done)
		for range w.triggers {
			recovery.Run("ingest-trigger", w.opts.Trigger)
		}
	})
	defer func() {
		close(w.triggers)
		<-done
	}()

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("file watcher error: %v", err)

		case <-timer.C:
			select {
			case w.triggers <- struct{}{}:
			default:
			}
		}
	}
}

// handle reports whether the event should (re)arm the debounce timer
func (w *Watcher) handle(event fsnotify.Event) bool {
	logger.Debugf("file event: %s %s", event.Op, event.Name)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.underRecursive(event.Name) {
				if err := w.addRecursive(event.Name); err != nil {
					logger.Warnf("failed to watch new directory %s: %v", event.Name, err)
				}
				// files may have been written before the watch was added
				return true
			}
			return false
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return w.opts.Relevant == nil || w.opts.Relevant(event.Name)
}

func (w *Watcher) underRecursive(path string) bool {
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		if w.recursive[dir] {
			return true
		}
		if parent := filepath.Dir(dir); parent == dir {
			return false
		}
	}
}

func (w *Watcher) add(dir string) error {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debugf("not watching missing directory %s", dir)
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return w.fs.Add(dir)
}

func (w *Watcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return nil
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return nil
}
