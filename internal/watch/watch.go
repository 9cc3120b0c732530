// Package watch reacts to jars dropped into a directory tree.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "jardownloader/internal/errors"
	"jardownloader/internal/jarscan"
	"jardownloader/internal/logger"
)

// DefaultDebounce is how long a jar must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled jar.
type Handler func(ctx context.Context, jarPath string)

// Watcher watches a directory tree and hands every new or rewritten jar to
// its Handler once writes to it have stopped for the debounce window.
type Watcher struct {
	root     string
	ignore   []string
	debounce time.Duration
	handle   Handler
	logger   logger.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
	done   chan struct{}
}

// Option customises a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips events below dir, typically the download directory.
func WithIgnore(dir string) Option {
	return func(w *Watcher) {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}
}

// New returns a Watcher for root.
func New(root string, handle Handler, log logger.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		handle:   handle,
		logger:   log,
		timers:   make(map[string]*time.Timer),
		ready:    make(chan string),
	}
	for _, opt := range opts {
		opt(w)
	}

	// an ignored directory that contains the root would silence everything
	if root, err := filepath.Abs(root); err == nil {
		kept := w.ignore[:0]
		for _, dir := range w.ignore {
			if root == dir || strings.HasPrefix(root, dir+string(filepath.Separator)) {
				continue
			}
			kept = append(kept, dir)
		}
		w.ignore = kept
	}
	return w
}

// Run blocks until ctx is cancelled. Handlers run on the calling goroutine,
// one jar at a time.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.SystemError(apperrors.CodeSystemGeneric, "failed to create file watcher", err).
			WithModule("watch").
			WithOperation("Run")
	}
	defer func() { _ = fw.Close() }()

	if err := w.addTree(fw, w.root, false); err != nil {
		return apperrors.ValidationError(apperrors.CodeSearchPath, "failed to watch search directory", err).
			WithModule("watch").
			WithOperation("Run").
			WithField("path", w.root)
	}

	w.done = make(chan struct{})
	defer w.stop()

	w.logger.Info("Watching %s for new .jar files (Ctrl+C to stop)", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-w.ready:
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				continue
			}
			w.handle(logger.WithSource(ctx, path), path)
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.onEvent(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) onEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// jars moved in together with their directory produce no events of their own
			if err := w.addTree(fw, event.Name, true); err != nil {
				w.logger.Warn("Cannot watch %s: %v", event.Name, err)
			}
			return
		}
		w.schedule(event.Name)
	case event.Has(fsnotify.Write):
		w.schedule(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.cancel(event.Name)
	}
}

// addTree watches dir and every directory below it. With scheduleJars set,
// jars already present are scheduled as if they had just been created.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, scheduleJars bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("Skipping unreadable path %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			w.logger.Debug("Watching directory %s", path)
			return fw.Add(path)
		}
		if scheduleJars {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	if !jarscan.IsJar(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.logger.Debug("Detected %s", path)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	close(w.done)
}

func (w *Watcher) ignored(path string) bool {
	if len(w.ignore) == 0 {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range w.ignore {
		if abs == dir || strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
