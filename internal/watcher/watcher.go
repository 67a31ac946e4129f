// Package watcher flags the session index as stale when recipe sources change.
//
// The knowledge base is append-only within a session: chunks are never
// re-split after the index is built. The watcher therefore does not trigger
// re-indexing, it only records that the on-disk sources have drifted from the
// loaded snapshot so the CLI prompt and /status can surface it.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// StalenessWatcher watches the data root and latches a stale flag on the
// first relevant change.
type StalenessWatcher struct {
	root       string
	extensions []string
	debounce   time.Duration
	onStale    func(path string)
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	pending string
	stale   bool
	started bool
	done    chan struct{}
	stopOne sync.Once
}

// Option configures a StalenessWatcher.
type Option func(*StalenessWatcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *StalenessWatcher) { w.logger = l }
}

// WithDebounce overrides the change coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *StalenessWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnStale sets a callback invoked once, with the path that triggered it,
// when the watcher transitions to stale.
func WithOnStale(fn func(path string)) Option {
	return func(w *StalenessWatcher) { w.onStale = fn }
}

// New creates a watcher over root. extensions filter which files count as
// recipe sources (empty = all).
func New(root string, extensions []string, opts ...Option) *StalenessWatcher {
	w := &StalenessWatcher{
		root:       filepath.Clean(root),
		extensions: extensions,
		debounce:   defaultDebounce,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *StalenessWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	if err := w.addTreeLocked(w.root); err != nil {
		_ = fsw.Close()
		w.watcher = nil
		w.mu.Unlock()
		return err
	}
	w.started = true
	if w.logger != nil {
		w.logger.Debug("staleness watcher starting",
			zap.String("root", w.root), zap.Strings("extensions", w.extensions))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *StalenessWatcher) run(ctx context.Context) {
	// Capture the channels once: Stop nils out w.watcher, and the select
	// re-evaluates its cases every iteration.
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	events, errs := w.watcher.Events, w.watcher.Errors
	w.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("staleness watcher error", zap.Error(err))
			}
		}
	}
}

func (w *StalenessWatcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// New directories keep getting watched, a stale flag fires only
			// once a matching file shows up inside them.
			w.mu.Lock()
			if w.watcher != nil {
				_ = w.addTreeLocked(path)
			}
			w.mu.Unlock()
			return
		}
		if w.matchExtension(path) {
			w.scheduleStale(path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		if w.matchExtension(path) {
			w.scheduleStale(path)
		}
	}
}

// scheduleStale coalesces a burst of writes into a single stale transition.
func (w *StalenessWatcher) scheduleStale(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stale {
		return
	}
	w.pending = path
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.markStale)
}

func (w *StalenessWatcher) markStale() {
	w.mu.Lock()
	if w.stale {
		w.mu.Unlock()
		return
	}
	w.stale = true
	path := w.pending
	onStale := w.onStale
	logger := w.logger
	w.mu.Unlock()

	if logger != nil {
		logger.Info("recipe sources changed, index is stale", zap.String("path", path))
	}
	if onStale != nil {
		onStale(path)
	}
}

func (w *StalenessWatcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *StalenessWatcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Stale reports whether sources changed since the watcher started. The flag
// latches until the process rebuilds its index on the next start.
func (w *StalenessWatcher) Stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale
}

// Stop stops the watcher and releases resources.
func (w *StalenessWatcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOne.Do(func() { close(w.done) })
}
