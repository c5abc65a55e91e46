// Package daemon owns the automation runtime: it boots the file watcher
// and the job scheduler, probes feature handlers, and exposes a combined
// status snapshot. The daemon itself follows a small state machine so
// start, stop, and restart are safe to call from the API at any time.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/inneros/inneros/internal/health"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/scheduler"
	"github.com/inneros/inneros/internal/watcher"
)

// State is the daemon's lifecycle state.
type State string

// Daemon states.
const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// DefaultShutdownTimeout bounds the in-flight drain during Stop.
const DefaultShutdownTimeout = 30 * time.Second

// FeatureHandler is a watcher handler whose backend can be probed. An
// unavailable handler is disabled for the daemon's lifetime rather than
// failing startup.
type FeatureHandler interface {
	watcher.Handler
	Available(ctx context.Context) bool
}

// StartupError reports a condition that prevented the daemon from
// starting at all, as opposed to a degraded start.
type StartupError struct {
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("daemon: %s: %v", e.Reason, e.Err)
	}
	return "daemon: " + e.Reason
}

func (e *StartupError) Unwrap() error { return e.Err }

// Status is a point-in-time daemon snapshot for the status surfaces.
type Status struct {
	State            State                 `json:"state"`
	UptimeSeconds    float64               `json:"uptime_seconds"`
	Health           health.Report         `json:"health"`
	Jobs             []scheduler.JobStatus `json:"jobs"`
	DisabledHandlers []string              `json:"disabled_handlers,omitempty"`
}

// Daemon coordinates the watcher, scheduler, and health manager.
type Daemon struct {
	root       string
	watcherCfg watcher.Config
	onChange   watcher.ChangeFunc
	handlers   []FeatureHandler

	sched  *scheduler.Scheduler
	hm     *health.Manager
	coll   *metrics.Collector
	logger *slog.Logger

	shutdownTimeout time.Duration

	mu        sync.Mutex
	state     State
	w         *watcher.Watcher
	startedAt time.Time
	disabled  []string
}

// New creates a stopped daemon. The watcher itself is built per Start so
// a restart always begins from a clean watch list.
func New(root string, watcherCfg watcher.Config, sched *scheduler.Scheduler, hm *health.Manager, coll *metrics.Collector, logger *slog.Logger, shutdownTimeout time.Duration) *Daemon {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Daemon{
		root:            root,
		watcherCfg:      watcherCfg,
		sched:           sched,
		hm:              hm,
		coll:            coll,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
		state:           StateStopped,
	}
}

// AddHandler registers a feature handler. Must be called before Start.
func (d *Daemon) AddHandler(h FeatureHandler) {
	d.handlers = append(d.handlers, h)
}

// SetOnChange registers the immediate change callback passed to the
// watcher. Must be called before Start.
func (d *Daemon) SetOnChange(fn watcher.ChangeFunc) {
	d.onChange = fn
}

// Start brings the daemon to running. Starting a running daemon is a
// no-op. A missing vault root is a StartupError; an unavailable handler
// backend only disables that handler.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateRunning, StateStarting:
		return nil
	case StateStopping:
		return &StartupError{Reason: "daemon is stopping"}
	}
	d.state = StateStarting

	info, err := os.Stat(d.root)
	if err != nil || !info.IsDir() {
		d.state = StateStopped
		return &StartupError{Reason: fmt.Sprintf("vault root %s unavailable", d.root), Err: err}
	}

	w, err := watcher.New(d.root, d.watcherCfg, d.logger, d.coll)
	if err != nil {
		d.state = StateStopped
		return &StartupError{Reason: "create watcher", Err: err}
	}
	if d.onChange != nil {
		w.SetOnChange(d.onChange)
	}

	d.disabled = nil
	for _, h := range d.handlers {
		if !h.Available(ctx) {
			d.disabled = append(d.disabled, h.Name())
			d.logger.Warn("daemon: handler backend unavailable, disabling",
				slog.String("handler", h.Name()))
			continue
		}
		w.Register(h)
	}

	if err := w.Start(ctx); err != nil {
		d.state = StateStopped
		return &StartupError{Reason: "start watcher", Err: err}
	}
	if err := d.sched.Start(); err != nil {
		w.Stop(d.shutdownTimeout)
		d.state = StateStopped
		return &StartupError{Reason: "start scheduler", Err: err}
	}

	d.hm.Register(health.CheckerFunc{CheckName: "watcher", Fn: w.Healthy})
	d.hm.Register(health.CheckerFunc{CheckName: "scheduler", Fn: d.sched.Running})

	d.w = w
	d.startedAt = time.Now()
	d.state = StateRunning
	d.logger.Info("daemon: running",
		slog.String("root", d.root),
		slog.Int("disabled_handlers", len(d.disabled)))
	return nil
}

// Stop brings the daemon to stopped, waiting out in-flight work up to the
// shutdown timeout. Stopping a stopped daemon is a no-op.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return
	}
	d.state = StateStopping
	w := d.w
	d.mu.Unlock()

	d.sched.Stop()
	drained := w.Stop(d.shutdownTimeout)
	if !drained {
		d.logger.Warn("daemon: shutdown timeout elapsed with work in flight")
	}

	d.mu.Lock()
	d.w = nil
	d.state = StateStopped
	d.mu.Unlock()
	d.logger.Info("daemon: stopped")
}

// Restart stops and starts the daemon. Scheduled job definitions survive
// because the scheduler keeps them across Stop.
func (d *Daemon) Restart(ctx context.Context) error {
	d.Stop()
	return d.Start(ctx)
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Status assembles the full snapshot: state, uptime, health report with
// metrics, scheduled jobs, and any disabled handlers.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	state := d.state
	startedAt := d.startedAt
	disabled := append([]string(nil), d.disabled...)
	d.mu.Unlock()

	st := Status{
		State:            state,
		Health:           d.hm.Report(),
		Jobs:             d.sched.Jobs(),
		DisabledHandlers: disabled,
	}
	if state == StateRunning {
		st.UptimeSeconds = time.Since(startedAt).Seconds()
	}
	return st
}
