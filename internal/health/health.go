// Package health aggregates component liveness checks into the report
// served by the daemon's status surfaces.
package health

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/inneros/inneros/internal/metrics"
)

// Checker is one named liveness probe. Healthy must be cheap and safe to
// call from multiple goroutines.
type Checker interface {
	Name() string
	Healthy() bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc struct {
	CheckName string
	Fn        func() bool
}

func (c CheckerFunc) Name() string  { return c.CheckName }
func (c CheckerFunc) Healthy() bool { return c.Fn() }

// Report is a point-in-time health snapshot.
type Report struct {
	IsHealthy   bool               `json:"is_healthy"`
	Checks      map[string]bool    `json:"checks"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Manager owns the registered checkers and produces reports.
type Manager struct {
	logger *slog.Logger
	coll   *metrics.Collector

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates an empty manager. The collector may be nil when no
// metrics should be embedded in reports.
func NewManager(logger *slog.Logger, coll *metrics.Collector) *Manager {
	return &Manager{logger: logger, coll: coll}
}

// Register adds a checker. Registering a name already in use replaces the
// earlier checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.checkers {
		if existing.Name() == c.Name() {
			m.checkers[i] = c
			return
		}
	}
	m.checkers = append(m.checkers, c)
}

// Report runs every checker and returns the aggregate. The report is
// healthy only when all checks pass; an empty manager reports healthy.
func (m *Manager) Report() Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	rep := Report{
		IsHealthy:   true,
		Checks:      make(map[string]bool, len(checkers)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range checkers {
		ok := c.Healthy()
		rep.Checks[c.Name()] = ok
		if !ok {
			rep.IsHealthy = false
			m.logger.Warn("health: check failing", slog.String("check", c.Name()))
		}
	}
	if m.coll != nil {
		rep.Metrics = m.coll.Snapshot()
	}
	return rep
}

// Names returns the registered check names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.checkers))
	for _, c := range m.checkers {
		out = append(out, c.Name())
	}
	sort.Strings(out)
	return out
}
