package health

import (
	"log/slog"
	"os"
	"testing"

	"github.com/inneros/inneros/internal/metrics"
)

func testManager(t *testing.T) (*Manager, *metrics.Collector) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	coll := metrics.NewCollector()
	return NewManager(logger, coll), coll
}

func TestReport_AllHealthy(t *testing.T) {
	m, _ := testManager(t)
	m.Register(CheckerFunc{CheckName: "watcher", Fn: func() bool { return true }})
	m.Register(CheckerFunc{CheckName: "scheduler", Fn: func() bool { return true }})

	rep := m.Report()
	if !rep.IsHealthy {
		t.Error("all checks pass, report should be healthy")
	}
	if len(rep.Checks) != 2 || !rep.Checks["watcher"] || !rep.Checks["scheduler"] {
		t.Errorf("checks = %v", rep.Checks)
	}
}

func TestReport_OneFailingMarksUnhealthy(t *testing.T) {
	m, _ := testManager(t)
	m.Register(CheckerFunc{CheckName: "watcher", Fn: func() bool { return true }})
	m.Register(CheckerFunc{CheckName: "index", Fn: func() bool { return false }})

	rep := m.Report()
	if rep.IsHealthy {
		t.Error("one failing check should mark the report unhealthy")
	}
	if rep.Checks["watcher"] != true || rep.Checks["index"] != false {
		t.Errorf("checks = %v", rep.Checks)
	}
}

func TestReport_EmptyManagerHealthy(t *testing.T) {
	m, _ := testManager(t)
	if rep := m.Report(); !rep.IsHealthy {
		t.Error("empty manager should report healthy")
	}
}

func TestReport_EmbedsMetrics(t *testing.T) {
	m, coll := testManager(t)
	coll.WatcherEvents.Inc()
	coll.WatcherEvents.Inc()

	rep := m.Report()
	if got := rep.Metrics["inneros_watcher_events_total"]; got != 2 {
		t.Errorf("watcher events metric = %v, want 2", got)
	}
}

func TestRegister_ReplacesByName(t *testing.T) {
	m, _ := testManager(t)
	m.Register(CheckerFunc{CheckName: "db", Fn: func() bool { return false }})
	m.Register(CheckerFunc{CheckName: "db", Fn: func() bool { return true }})

	rep := m.Report()
	if !rep.IsHealthy || len(rep.Checks) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if names := m.Names(); len(names) != 1 || names[0] != "db" {
		t.Errorf("names = %v", names)
	}
}
