package manifest

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used unless WithDebounce overrides it.
const DefaultDebounce = 300 * time.Millisecond

// Change is a debounced batch of manifest file changes.
type Change struct {
	Paths []string
	Time  time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a path must be quiet before it is reported.
// Non-positive durations keep the default.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher monitors a deployments tree for manifest changes. Directories
// created after Start are watched as well.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func(Change)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewWatcher creates a Watcher for root. onChange runs on the watcher's
// goroutine.
func NewWatcher(root string, onChange func(Change), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		onChange: onChange,
		done:     make(chan struct{}),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start adds every directory under root and begins watching.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("manifest watcher: create fsnotify: %w", err)
	}
	w.fsWatcher = fsw
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return err
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for the background goroutine to
// exit. It is safe to call Stop multiple times.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(path); err != nil {
			return fmt.Errorf("manifest watcher: watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("manifest watcher error", "err", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("manifest watcher: add directory", "path", event.Name, "err", err)
			}
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if !isManifest(event.Name) {
		return
	}
	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range w.pending {
		if now.Sub(t) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)
	w.logger.Info("manifests changed", "paths", ready)
	w.onChange(Change{Paths: ready, Time: now})
}
