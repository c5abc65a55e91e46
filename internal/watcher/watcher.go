// Package watcher turns filesystem events into debounced handler
// invocations. It keeps the vault index callback immediate while giving
// feature handlers a quiet window so editors that write in bursts only
// trigger one processing pass per file.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/metrics"
)

// DefaultDebounce is the quiet window applied when the config gives none.
const DefaultDebounce = 2 * time.Second

// Handler processes a settled file event. CanHandle is consulted before
// dispatch; a handler returning false is never invoked for that path.
type Handler interface {
	Name() string
	CanHandle(path string, op fsnotify.Op) bool
	Handle(ctx context.Context, path string, op fsnotify.Op) error
}

// ChangeFunc receives every accepted event immediately, before debouncing.
// It is meant for cheap bookkeeping such as index upkeep and event streams.
type ChangeFunc func(op fsnotify.Op, path string)

// Config controls event filtering and debounce behavior.
type Config struct {
	// Debounce is the quiet window per path before handlers run.
	Debounce time.Duration

	// IncludePatterns are glob patterns matched against the base name.
	// Empty means "*.md".
	IncludePatterns []string

	// IgnorePatterns are glob patterns matched against the base name and
	// each path component. Hidden files and directories are always ignored.
	IgnorePatterns []string
}

// Watcher owns an fsnotify watcher rooted at a vault directory and
// dispatches settled events to registered handlers.
type Watcher struct {
	root     string
	cfg      Config
	logger   *slog.Logger
	coll     *metrics.Collector
	handlers []Handler
	onChange ChangeFunc

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc

	mu       sync.Mutex
	timers   map[string]*time.Timer
	pending  map[string]fsnotify.Op
	inFlight map[string]bool

	loopDone chan struct{}
	wg       sync.WaitGroup

	healthy atomic.Bool
}

// New creates a watcher for the given vault root. The root must exist.
func New(root string, cfg Config, logger *slog.Logger, coll *metrics.Collector) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("watcher: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watcher: root is not a directory: %s", abs)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if len(cfg.IncludePatterns) == 0 {
		cfg.IncludePatterns = []string{"*.md"}
	}
	return &Watcher{
		root:     abs,
		cfg:      cfg,
		logger:   logger,
		coll:     coll,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string]fsnotify.Op),
		inFlight: make(map[string]bool),
	}, nil
}

// Register adds a handler. Must be called before Start.
func (w *Watcher) Register(h Handler) {
	w.handlers = append(w.handlers, h)
}

// SetOnChange registers the immediate change callback. Must be called
// before Start.
func (w *Watcher) SetOnChange(fn ChangeFunc) {
	w.onChange = fn
}

// Start begins watching. It returns after the watch list is established;
// the event loop runs until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := addDirsRecursive(fsw, w.root); err != nil {
		fsw.Close()
		return fmt.Errorf("watcher: add %s: %w", w.root, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.fsw = fsw
	w.cancel = cancel
	w.loopDone = make(chan struct{})
	w.healthy.Store(true)

	go w.loop(loopCtx)

	w.logger.Info("watcher: started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.cfg.Debounce),
		slog.Int("handlers", len(w.handlers)))
	return nil
}

// Stop cancels the event loop, flushes debounce timers, and waits for
// in-flight handlers up to timeout. It reports whether everything drained.
func (w *Watcher) Stop(timeout time.Duration) bool {
	if w.cancel == nil {
		return true
	}
	w.cancel()
	w.fsw.Close()
	<-w.loopDone

	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	drained := w.wait(timeout)
	w.healthy.Store(false)
	w.logger.Info("watcher: stopped", slog.Bool("drained", drained))
	return drained
}

// Healthy reports whether the event loop is running.
func (w *Watcher) Healthy() bool {
	return w.healthy.Load()
}

func (w *Watcher) wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.loopDone)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.healthy.Store(false)
				return
			}
			w.handleEvent(ctx, ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.healthy.Store(false)
				return
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	abs := ev.Name

	// New directories join the watch list so nested notes keep working.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if ignored(filepath.Base(abs), w.cfg.IgnorePatterns) {
				return
			}
			if err := addDirsRecursive(w.fsw, abs); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", abs), slog.String("error", err.Error()))
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, abs)
	if err != nil || !w.accept(rel) {
		return
	}
	w.coll.WatcherEvents.Inc()

	if w.onChange != nil {
		w.onChange(ev.Op, rel)
	}

	// Deletes and renames need no quiet window; there is nothing left to
	// process at the old path.
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.mu.Lock()
		if t, ok := w.timers[rel]; ok {
			t.Stop()
			delete(w.timers, rel)
			delete(w.pending, rel)
		}
		w.mu.Unlock()
		return
	}

	w.debounce(ctx, rel, ev.Op)
}

// accept applies the include and ignore filters to a vault-relative path.
func (w *Watcher) accept(rel string) bool {
	base := filepath.Base(rel)
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") || ignored(part, w.cfg.IgnorePatterns) {
			return false
		}
	}
	for _, pat := range w.cfg.IncludePatterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

func ignored(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// debounce arms or resets the per-path timer. A burst of writes collapses
// into one dispatch after the quiet window.
func (w *Watcher) debounce(ctx context.Context, rel string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[rel] = w.pending[rel] | op
	if t, ok := w.timers[rel]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[rel] = time.AfterFunc(w.cfg.Debounce, func() {
		w.fire(ctx, rel)
	})
}

// fire runs when a path's quiet window elapses. If a previous dispatch for
// the same path is still running, the timer re-arms so runs never overlap.
func (w *Watcher) fire(ctx context.Context, rel string) {
	w.mu.Lock()
	if w.inFlight[rel] {
		if t, ok := w.timers[rel]; ok {
			t.Reset(w.cfg.Debounce)
		}
		w.mu.Unlock()
		return
	}
	op := w.pending[rel]
	delete(w.pending, rel)
	delete(w.timers, rel)
	w.inFlight[rel] = true
	w.mu.Unlock()

	if ctx.Err() != nil {
		w.mu.Lock()
		delete(w.inFlight, rel)
		w.mu.Unlock()
		return
	}

	w.wg.Add(1)
	w.coll.InFlightJobs.Inc()
	go func() {
		defer w.wg.Done()
		defer w.coll.InFlightJobs.Dec()
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, rel)
			w.mu.Unlock()
		}()
		w.dispatch(ctx, rel, op)
	}()
}

// dispatch runs every matching handler in order. A handler failure or
// panic is logged and counted, never propagated; one bad note must not
// take the daemon down.
func (w *Watcher) dispatch(ctx context.Context, rel string, op fsnotify.Op) {
	for _, h := range w.handlers {
		if !h.CanHandle(rel, op) {
			continue
		}
		w.runHandler(ctx, h, rel, op)
	}
}

func (w *Watcher) runHandler(ctx context.Context, h Handler, rel string, op fsnotify.Op) {
	start := time.Now()
	defer func() {
		w.coll.ProcessingDuration.WithLabelValues(h.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			w.coll.HandlerErrors.WithLabelValues(h.Name()).Inc()
			w.coll.NotesProcessed.WithLabelValues(h.Name(), metrics.OutcomeFailure).Inc()
			w.logger.Error("watcher: handler panic",
				slog.String("handler", h.Name()),
				slog.String("path", rel),
				slog.Any("panic", r))
		}
	}()

	if err := h.Handle(ctx, rel, op); err != nil {
		w.coll.HandlerErrors.WithLabelValues(h.Name()).Inc()
		w.coll.NotesProcessed.WithLabelValues(h.Name(), metrics.OutcomeFailure).Inc()
		w.logger.Warn("watcher: handler failed",
			slog.String("handler", h.Name()),
			slog.String("path", rel),
			slog.String("error", err.Error()))
		return
	}
	w.coll.NotesProcessed.WithLabelValues(h.Name(), metrics.OutcomeSuccess).Inc()
	w.logger.Debug("watcher: handled",
		slog.String("handler", h.Name()), slog.String("path", rel))
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watch list.
func addDirsRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
