package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/metrics"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	panic bool
}

func (h *recordingHandler) Name() string { return "recording" }

func (h *recordingHandler) CanHandle(path string, op fsnotify.Op) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, path string, _ fsnotify.Op) error {
	h.mu.Lock()
	h.calls = append(h.calls, path)
	h.mu.Unlock()
	if h.panic {
		panic("boom")
	}
	if h.fail {
		return os.ErrInvalid
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, cfg Config, hs ...*recordingHandler) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	w, err := New(dir, cfg, logger, metrics.NewCollector())
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hs {
		w.Register(h)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Stop(2 * time.Second) })
	time.Sleep(100 * time.Millisecond)
	return w, dir
}

func TestDebounce_BurstCollapsesToOneDispatch(t *testing.T) {
	h := &recordingHandler{}
	_, dir := startWatcher(t, Config{Debounce: 200 * time.Millisecond}, h)

	path := filepath.Join(dir, "note.md")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("rev"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return h.count() == 1
	}, "burst should collapse to exactly one handler call")

	// No further call arrives once the burst has settled.
	time.Sleep(500 * time.Millisecond)
	if got := h.count(); got != 1 {
		t.Errorf("handler calls = %d, want 1", got)
	}
}

func TestOnChange_FiresImmediately(t *testing.T) {
	var mu sync.Mutex
	var changes []string

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	w, err := New(dir, Config{Debounce: 5 * time.Second}, logger, metrics.NewCollector())
	if err != nil {
		t.Fatal(err)
	}
	w.SetOnChange(func(_ fsnotify.Op, path string) {
		mu.Lock()
		changes = append(changes, path)
		mu.Unlock()
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop(2 * time.Second)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "fast.md"), []byte("x"), 0o644)

	// The change callback must not wait out the long debounce window.
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) > 0 && changes[0] == "fast.md"
	}, "change callback should fire before the debounce window")
}

func TestFiltering_NonMatchingAndHiddenIgnored(t *testing.T) {
	h := &recordingHandler{}
	_, dir := startWatcher(t, Config{
		Debounce:       100 * time.Millisecond,
		IgnorePatterns: []string{"*.tmp.md"},
	}, h)

	_ = os.WriteFile(filepath.Join(dir, "image.png"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".hidden.md"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "draft.tmp.md"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "keep.md"), []byte("x"), 0o644)

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return h.count() == 1
	}, "only keep.md should be dispatched")

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) != 1 || h.calls[0] != "keep.md" {
		t.Errorf("calls = %v", h.calls)
	}
}

func TestNewDirectory_AutoWatched(t *testing.T) {
	h := &recordingHandler{}
	_, dir := startWatcher(t, Config{Debounce: 100 * time.Millisecond}, h)

	sub := filepath.Join(dir, "Projects")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(sub, "deep.md"), []byte("x"), 0o644)

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, c := range h.calls {
			if c == filepath.Join("Projects", "deep.md") {
				return true
			}
		}
		return false
	}, "file in new subdirectory not dispatched")
}

func TestHandlerPanic_Contained(t *testing.T) {
	bad := &recordingHandler{panic: true}
	w, dir := startWatcher(t, Config{Debounce: 100 * time.Millisecond}, bad)

	_ = os.WriteFile(filepath.Join(dir, "a.md"), []byte("x"), 0o644)

	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return bad.count() == 1
	}, "panicking handler should still be invoked")

	if !w.Healthy() {
		t.Error("watcher should survive a handler panic")
	}

	// A later event still gets dispatched.
	_ = os.WriteFile(filepath.Join(dir, "b.md"), []byte("x"), 0o644)
	eventually(t, 3*time.Second, 50*time.Millisecond, func() bool {
		return bad.count() == 2
	}, "watcher stopped dispatching after a panic")
}

func TestStop_HealthyFlips(t *testing.T) {
	w, _ := startWatcher(t, Config{Debounce: 50 * time.Millisecond})
	if !w.Healthy() {
		t.Fatal("running watcher should report healthy")
	}
	if !w.Stop(time.Second) {
		t.Error("stop should drain with no in-flight work")
	}
	if w.Healthy() {
		t.Error("stopped watcher should report unhealthy")
	}
}
