// Package metrics provides the process-wide Prometheus instrumentation for
// the automation daemon. A Collector is scoped to a registry so tests can
// run isolated instances.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inneros"

// Processing outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Collector holds all daemon metrics. All operations are safe for
// concurrent use from handler goroutines.
type Collector struct {
	registry *prometheus.Registry

	// NotesProcessed counts handler invocations by handler name and outcome.
	NotesProcessed *prometheus.CounterVec

	// ProcessingDuration measures handler run time by handler name.
	ProcessingDuration *prometheus.HistogramVec

	// HandlerErrors counts contained handler failures by handler name.
	HandlerErrors *prometheus.CounterVec

	// RetryAttempts counts individual retry waits by operation.
	RetryAttempts *prometheus.CounterVec

	// RetryOutcomes counts terminal retry results by operation and outcome.
	RetryOutcomes *prometheus.CounterVec

	// Promotions counts promotion decisions by note type and outcome.
	Promotions *prometheus.CounterVec

	// WatcherEvents counts filesystem events that passed filtering.
	WatcherEvents prometheus.Counter

	// InFlightJobs tracks currently running processing jobs.
	InFlightJobs prometheus.Gauge

	// ScheduledRuns counts scheduled job executions by job name and outcome.
	ScheduledRuns *prometheus.CounterVec
}

// NewCollector registers all daemon metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		NotesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notes_processed_total",
			Help:      "Handler invocations by handler and outcome.",
		}, []string{"handler", "outcome"}),
		ProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Handler processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"handler"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Contained handler failures by handler.",
		}, []string{"handler"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Backoff retries by operation.",
		}, []string{"operation"}),
		RetryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_outcomes_total",
			Help:      "Terminal retry results by operation and outcome.",
		}, []string{"operation", "outcome"}),
		Promotions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Promotion decisions by note type and outcome.",
		}, []string{"note_type", "outcome"}),
		WatcherEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_events_total",
			Help:      "Filesystem events accepted by the watcher filter.",
		}),
		InFlightJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_jobs",
			Help:      "Processing jobs currently running.",
		}),
		ScheduledRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Scheduled job executions by job and outcome.",
		}, []string{"job", "outcome"}),
	}
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Snapshot flattens all counter and gauge values into a map for the
// pull-based health report. Histograms are reported as _count totals.
func (c *Collector) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	families, err := c.registry.Gather()
	if err != nil {
		return out
	}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			key := fam.GetName()
			for _, lp := range m.GetLabel() {
				key += fmt.Sprintf("{%s=%s}", lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}
