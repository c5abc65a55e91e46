// Package scheduler runs recurring automation jobs on cron or interval
// expressions. Job definitions live outside the cron runtime so a daemon
// restart brings every job back in its configured state.
package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inneros/inneros/internal/metrics"
)

// JobFunc is the work a scheduled job performs.
type JobFunc func() error

// JobStatus is a point-in-time view of one job for status reporting.
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Enabled  bool       `json:"enabled"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
}

type jobDef struct {
	name     string
	schedule string
	enabled  bool
	fn       JobFunc

	entry   cron.EntryID
	lastRun *time.Time
	lastErr string
}

// Scheduler wraps a cron runner with restart-safe job definitions.
type Scheduler struct {
	logger *slog.Logger
	coll   *metrics.Collector
	parser cron.Parser

	mu      sync.Mutex
	defs    map[string]*jobDef
	runner  *cron.Cron
	running bool
}

// New creates a stopped scheduler. Schedules accept standard five-field
// cron expressions plus descriptors like "@every 15m" and "@hourly".
func New(logger *slog.Logger, coll *metrics.Collector) *Scheduler {
	return &Scheduler{
		logger: logger,
		coll:   coll,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   make(map[string]*jobDef),
	}
}

// Define registers or replaces a job. Defining a job with a name already
// in use overwrites the earlier definition. The schedule is validated
// immediately; a running scheduler picks the job up right away.
func (s *Scheduler) Define(name, schedule string, enabled bool, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("scheduler: job name required")
	}
	if _, err := s.parser.Parse(schedule); err != nil {
		return fmt.Errorf("scheduler: job %s: bad schedule %q: %w", name, schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.defs[name]; ok && s.running && old.entry != 0 {
		s.runner.Remove(old.entry)
	}
	def := &jobDef{name: name, schedule: schedule, enabled: enabled, fn: fn}
	s.defs[name] = def
	if s.running && enabled {
		return s.scheduleLocked(def)
	}
	return nil
}

// Start boots the cron runner and schedules every enabled job. Calling
// Start on a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.runner = cron.New(cron.WithParser(s.parser))
	for _, def := range s.defs {
		def.entry = 0
		if !def.enabled {
			continue
		}
		if err := s.scheduleLocked(def); err != nil {
			s.runner.Stop()
			s.runner = nil
			return err
		}
	}
	s.runner.Start()
	s.running = true
	s.logger.Info("scheduler: started", slog.Int("jobs", len(s.defs)))
	return nil
}

// Stop halts the runner and waits for any running job to return. Job
// definitions are retained so a later Start restores them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	runner := s.runner
	s.running = false
	s.runner = nil
	s.mu.Unlock()

	<-runner.Stop().Done()
	s.logger.Info("scheduler: stopped")
}

// Running reports whether the cron runner is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pause disables a job without removing its definition.
func (s *Scheduler) Pause(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	if def.enabled && s.running && def.entry != 0 {
		s.runner.Remove(def.entry)
		def.entry = 0
	}
	def.enabled = false
	return nil
}

// Resume re-enables a paused job.
func (s *Scheduler) Resume(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %s", name)
	}
	if def.enabled {
		return nil
	}
	def.enabled = true
	if s.running {
		return s.scheduleLocked(def)
	}
	return nil
}

// Jobs returns the status of every defined job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.defs))
	for _, def := range s.defs {
		st := JobStatus{
			Name:     def.name,
			Schedule: def.schedule,
			Enabled:  def.enabled,
			LastRun:  def.lastRun,
			LastErr:  def.lastErr,
		}
		if s.running && def.entry != 0 {
			next := s.runner.Entry(def.entry).Next
			if !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// scheduleLocked adds def to the running cron runner. Caller holds s.mu.
func (s *Scheduler) scheduleLocked(def *jobDef) error {
	id, err := s.runner.AddFunc(def.schedule, func() { s.run(def) })
	if err != nil {
		return fmt.Errorf("scheduler: schedule %s: %w", def.name, err)
	}
	def.entry = id
	return nil
}

// run executes one job invocation with panic containment. A job failure
// is recorded and counted but never stops the scheduler.
func (s *Scheduler) run(def *jobDef) {
	start := time.Now()
	s.coll.InFlightJobs.Inc()
	defer s.coll.InFlightJobs.Dec()

	defer func() {
		if r := recover(); r != nil {
			s.record(def, start, fmt.Sprintf("panic: %v", r))
			s.coll.ScheduledRuns.WithLabelValues(def.name, metrics.OutcomeFailure).Inc()
			s.logger.Error("scheduler: job panic",
				slog.String("job", def.name), slog.Any("panic", r))
		}
	}()

	err := def.fn()
	if err != nil {
		s.record(def, start, err.Error())
		s.coll.ScheduledRuns.WithLabelValues(def.name, metrics.OutcomeFailure).Inc()
		s.logger.Warn("scheduler: job failed",
			slog.String("job", def.name), slog.String("error", err.Error()))
		return
	}
	s.record(def, start, "")
	s.coll.ScheduledRuns.WithLabelValues(def.name, metrics.OutcomeSuccess).Inc()
	s.logger.Debug("scheduler: job completed",
		slog.String("job", def.name),
		slog.Duration("took", time.Since(start)))
}

func (s *Scheduler) record(def *jobDef, start time.Time, errMsg string) {
	s.mu.Lock()
	def.lastRun = &start
	def.lastErr = errMsg
	s.mu.Unlock()
}
