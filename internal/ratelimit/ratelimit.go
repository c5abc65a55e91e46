// Package ratelimit wraps calls to rate-limited external services with
// bounded exponential-backoff retry.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inneros/inneros/internal/metrics"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"-"`
	MaxDelay   time.Duration `yaml:"-"`
	Multiplier float64       `yaml:"backoff_multiplier"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  5 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
	}
}

// normalize fills zero fields with defaults so a partially specified
// config never produces a zero-delay hot loop.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	return c
}

// ExhaustedError is returned after all retry attempts failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	LastErr   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("ratelimit: %s exhausted after %d attempts: %v", e.Operation, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable (e.g. the resource does not exist).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Limiter executes operations with retry/backoff and records every attempt
// and terminal outcome in the metrics collector.
type Limiter struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter with the given config.
func New(cfg Config, logger *slog.Logger, collector *metrics.Collector) *Limiter {
	return &Limiter{
		cfg:     cfg.normalize(),
		logger:  logger,
		metrics: collector,
		sleep:   sleepCtx,
	}
}

// Do runs fn, retrying classified-as-transient failures with exponential
// backoff up to MaxRetries total attempts. Failures marked Permanent fail
// immediately. After exhaustion it returns an ExhaustedError carrying the
// attempt count and last underlying error.
func (l *Limiter) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			l.metrics.RetryOutcomes.WithLabelValues(operation, metrics.OutcomeSuccess).Inc()
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			l.metrics.RetryOutcomes.WithLabelValues(operation, metrics.OutcomeFailure).Inc()
			return err
		}
		if attempt == l.cfg.MaxRetries {
			break
		}

		delay := l.delayFor(attempt)
		l.metrics.RetryAttempts.WithLabelValues(operation).Inc()
		l.logger.Warn("ratelimit: transient failure, backing off",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		if err := l.sleep(ctx, delay); err != nil {
			l.metrics.RetryOutcomes.WithLabelValues(operation, metrics.OutcomeFailure).Inc()
			return err
		}
	}

	l.metrics.RetryOutcomes.WithLabelValues(operation, metrics.OutcomeFailure).Inc()
	return &ExhaustedError{Operation: operation, Attempts: l.cfg.MaxRetries, LastErr: lastErr}
}

// delayFor computes the capped exponential delay before the retry that
// follows the given attempt number (1-based).
func (l *Limiter) delayFor(attempt int) time.Duration {
	delay := l.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * l.cfg.Multiplier)
		if delay >= l.cfg.MaxDelay {
			return l.cfg.MaxDelay
		}
	}
	if delay > l.cfg.MaxDelay {
		return l.cfg.MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
