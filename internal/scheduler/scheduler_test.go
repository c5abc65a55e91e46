package scheduler

import (
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inneros/inneros/internal/metrics"
)

func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New(logger, metrics.NewCollector())
	t.Cleanup(s.Stop)
	return s
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

func TestDefine_ValidatesSchedule(t *testing.T) {
	s := testScheduler(t)
	cases := map[string]bool{
		"@every 15m":   true,
		"@hourly":      true,
		"*/5 * * * *":  true,
		"0 3 * * *":    true,
		"not-a-cron":   false,
		"* * * * * *":  false,
		"@every hello": false,
	}
	for expr, ok := range cases {
		err := s.Define("j-"+expr, expr, true, func() error { return nil })
		if ok && err != nil {
			t.Errorf("Define(%q): unexpected error %v", expr, err)
		}
		if !ok && err == nil {
			t.Errorf("Define(%q): expected error", expr)
		}
	}
}

func TestJobRuns(t *testing.T) {
	s := testScheduler(t)
	var runs atomic.Int32
	if err := s.Define("tick", "@every 100ms", true, func() error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 2
	}, "job never ran")
}

func TestDefinitionsSurviveRestart(t *testing.T) {
	s := testScheduler(t)
	var runs atomic.Int32
	_ = s.Define("persistent", "@every 100ms", true, func() error {
		runs.Add(1)
		return nil
	})

	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "job did not run before restart")
	s.Stop()

	if s.Running() {
		t.Fatal("scheduler should report stopped")
	}
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Name != "persistent" {
		t.Fatalf("definitions lost across stop: %v", jobs)
	}

	before := runs.Load()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return runs.Load() > before
	}, "job did not resume after restart")
}

func TestPauseResume(t *testing.T) {
	s := testScheduler(t)
	var runs atomic.Int32
	_ = s.Define("pausable", "@every 50ms", true, func() error {
		runs.Add(1)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() >= 1
	}, "job never ran")

	if err := s.Pause("pausable"); err != nil {
		t.Fatal(err)
	}
	paused := runs.Load()
	time.Sleep(300 * time.Millisecond)
	if got := runs.Load(); got > paused+1 {
		t.Errorf("paused job kept running: %d -> %d", paused, got)
	}

	if err := s.Resume("pausable"); err != nil {
		t.Fatal(err)
	}
	resumed := runs.Load()
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return runs.Load() > resumed
	}, "resumed job did not run")

	if err := s.Pause("ghost"); err == nil {
		t.Error("pausing an unknown job should fail")
	}
}

func TestJobFailureIsolated(t *testing.T) {
	s := testScheduler(t)
	var good atomic.Int32
	// cron rounds @every delays below a second up to 1s, so the wait
	// windows below budget for 1s spacing between runs.
	_ = s.Define("bad", "@every 1s", true, func() error {
		return errors.New("storage offline")
	})
	_ = s.Define("panicky", "@every 1s", true, func() error {
		panic("boom")
	})
	_ = s.Define("good", "@every 1s", true, func() error {
		good.Add(1)
		return nil
	})
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	eventually(t, 8*time.Second, 50*time.Millisecond, func() bool {
		return good.Load() >= 3
	}, "healthy job starved by failing siblings")

	var badStatus JobStatus
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		for _, j := range s.Jobs() {
			if j.Name == "bad" && j.LastErr != "" {
				badStatus = j
				return true
			}
		}
		return false
	}, "failing job error not recorded")
	if badStatus.LastErr != "storage offline" {
		t.Errorf("last error = %q", badStatus.LastErr)
	}
}

func TestJobs_SortedStatus(t *testing.T) {
	s := testScheduler(t)
	_ = s.Define("zeta", "@hourly", true, func() error { return nil })
	_ = s.Define("alpha", "@daily", false, func() error { return nil })

	jobs := s.Jobs()
	if len(jobs) != 2 || jobs[0].Name != "alpha" || jobs[1].Name != "zeta" {
		t.Fatalf("jobs = %v", jobs)
	}
	if jobs[0].Enabled {
		t.Error("alpha should be disabled")
	}
	if jobs[0].NextRun != nil {
		t.Error("stopped scheduler should not report next run")
	}
}
