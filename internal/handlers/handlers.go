// Package handlers contains the automation feature handlers dispatched by
// the file watcher. Each handler claims one kind of captured note in the
// inbox, runs it through enrichment, and advances its lifecycle status.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/apperr"
	"github.com/inneros/inneros/internal/enrich"
	"github.com/inneros/inneros/internal/lifecycle"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/ratelimit"
)

// Enricher assesses note content. Satisfied by *enrich.Client.
type Enricher interface {
	Available(ctx context.Context) bool
	Enrich(ctx context.Context, content string) (*enrich.Result, error)
}

// base carries the dependencies every feature handler shares.
type base struct {
	name     string
	svc      *noteservice.Service
	enricher Enricher
	limiter  *ratelimit.Limiter
	coll     *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

func newBase(name string, svc *noteservice.Service, enricher Enricher, limiter *ratelimit.Limiter, coll *metrics.Collector, logger *slog.Logger) base {
	return base{
		name:     name,
		svc:      svc,
		enricher: enricher,
		limiter:  limiter,
		coll:     coll,
		logger:   logger,
		now:      time.Now,
	}
}

// Name implements watcher.Handler.
func (b *base) Name() string { return b.name }

// Available reports whether the enrichment backend answers. The daemon
// disables a handler whose probe fails at startup.
func (b *base) Available(ctx context.Context) bool {
	return b.enricher.Available(ctx)
}

// canHandlePath applies the filters common to all feature handlers:
// markdown files in the inbox, create or write events only.
func canHandlePath(path string, op fsnotify.Op) bool {
	if op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	if !strings.HasSuffix(path, ".md") {
		return false
	}
	first := strings.SplitN(filepath.ToSlash(path), "/", 2)[0]
	return first == models.DirInbox
}

// load reads the note and applies the shared processing gates. A nil note
// with a nil error means the note should be skipped quietly.
func (b *base) load(ctx context.Context, path string) (*models.Note, error) {
	note, err := b.svc.GetNote(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted between debounce and dispatch.
			return nil, nil
		}
		return nil, err
	}
	if note.Status != models.StatusInbox {
		return nil, nil
	}
	if note.AIProcessed {
		return nil, nil
	}
	if !note.ReadyForProcessing {
		b.logger.Debug("handler: note not flagged ready",
			slog.String("handler", b.name), slog.String("path", path))
		return nil, nil
	}
	return note, nil
}

// complete applies the enrichment result: the frontmatter gains the score
// and processing marks, and the status advances inbox → promoted through
// the lifecycle check. Unknown frontmatter keys are untouched.
func (b *base) complete(ctx context.Context, note *models.Note, res *enrich.Result) error {
	now := b.now()
	scored := *note
	scored.QualityScore = &res.QualityScore
	advanced, err := lifecycle.Transition(scored, models.StatusPromoted, now)
	if err != nil {
		return fmt.Errorf("%s: advance %s: %w", b.name, note.Path, err)
	}

	set := map[string]any{
		"status":         string(advanced.Status),
		"quality_score":  res.QualityScore,
		"ai_processed":   true,
		"processed_date": now.UTC().Format(time.RFC3339),
	}
	if tags := mergeTags(note.Tags, res.Tags); len(tags) > 0 {
		set["tags"] = tags
	}
	if res.Summary != "" {
		set["summary"] = res.Summary
	}

	if _, err := b.svc.UpdateLifecycle(ctx, note.Path, set); err != nil {
		return fmt.Errorf("%s: update %s: %w", b.name, note.Path, err)
	}
	b.coll.Promotions.WithLabelValues(typeLabel(note.Type), "promoted").Inc()
	b.logger.Info("handler: note enriched",
		slog.String("handler", b.name),
		slog.String("path", note.Path),
		slog.Float64("quality_score", res.QualityScore))
	return nil
}

// enrichContent calls the model through the retry limiter. Model-side
// rejections (non-JSON output) are permanent; transport failures retry.
func (b *base) enrichContent(ctx context.Context, content string) (*enrich.Result, error) {
	var res *enrich.Result
	err := b.limiter.Do(ctx, b.name, func(ctx context.Context) error {
		r, err := b.enricher.Enrich(ctx, content)
		if err != nil {
			if errors.Is(err, apperr.ErrUnavailable) {
				return err
			}
			return ratelimit.Permanent(err)
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func mergeTags(existing, fresh []string) []string {
	seen := make(map[string]bool, len(existing)+len(fresh))
	var out []string
	for _, t := range append(append([]string{}, existing...), fresh...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func typeLabel(t models.NoteType) string {
	if t == "" {
		return "unknown"
	}
	return string(t)
}
