// Package promote implements the quality-gated auto-promotion engine.
package promote

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/inneros/inneros/internal/apperr"
	"github.com/inneros/inneros/internal/frontmatter"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/lifecycle"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/parser"
	"github.com/inneros/inneros/internal/storage"
	"github.com/inneros/inneros/internal/vault"
)

// DefaultQualityThreshold gates promotion when no explicit threshold is given.
const DefaultQualityThreshold = 0.7

// Options control a promotion run.
type Options struct {
	DryRun           bool
	QualityThreshold float64
}

// TypeCounts partitions per-note outcomes by note type.
type TypeCounts struct {
	Promoted int `json:"promoted"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// PlannedMove is one entry in a dry-run preview.
type PlannedMove struct {
	Path string `json:"path"`
	Dest string `json:"dest"`
}

// Result is the structured outcome of a promotion run.
type Result struct {
	DryRun    bool                  `json:"dry_run"`
	Threshold float64               `json:"threshold"`
	Evaluated int                   `json:"evaluated"`
	Promoted  int                   `json:"promoted"`
	Skipped   int                   `json:"skipped"`
	Errored   int                   `json:"errored"`
	ByType    map[string]TypeCounts `json:"by_type"`
	Errors    map[string]string     `json:"errors"`
	Planned   []PlannedMove         `json:"planned,omitempty"`
}

// Engine scans candidate notes and promotes those meeting policy. Status
// changes go through the lifecycle transition check; location changes go
// through the backup-guarded mover.
type Engine struct {
	store     storage.Provider
	db        index.NoteIndex
	mover     *vault.Mover
	logger    *slog.Logger
	collector *metrics.Collector

	// sourceDir is the vault directory scanned for candidates.
	sourceDir string

	// notify, when set, receives lifecycle events for the dashboard stream.
	notify func(kind, path string)

	now func() time.Time
}

// NewEngine creates a promotion engine scanning the inbox directory.
func NewEngine(store storage.Provider, db index.NoteIndex, mover *vault.Mover, logger *slog.Logger, collector *metrics.Collector) *Engine {
	return &Engine{
		store:     store,
		db:        db,
		mover:     mover,
		logger:    logger,
		collector: collector,
		sourceDir: models.DirInbox,
		now:       time.Now,
	}
}

// SetNotify registers a lifecycle event callback (optional).
func (e *Engine) SetNotify(fn func(kind, path string)) {
	e.notify = fn
}

// AutoPromoteReadyNotes evaluates every note in the source directory and
// promotes those with status promoted and a quality score at or above the
// threshold. With DryRun set, the same selection runs but nothing on disk
// changes. A failure on one note is captured per-note and never aborts the
// batch.
func (e *Engine) AutoPromoteReadyNotes(ctx context.Context, opts Options) (*Result, error) {
	if opts.QualityThreshold < 0.0 || opts.QualityThreshold > 1.0 {
		return nil, fmt.Errorf("quality threshold must be between 0.0 and 1.0, got %v: %w",
			opts.QualityThreshold, apperr.ErrInvalidArgument)
	}

	res := &Result{
		DryRun:    opts.DryRun,
		Threshold: opts.QualityThreshold,
		ByType:    make(map[string]TypeCounts),
		Errors:    make(map[string]string),
	}

	metas, err := e.store.List(e.sourceDir)
	if err != nil {
		return nil, fmt.Errorf("promote: scan %s: %w", e.sourceDir, err)
	}

	for _, meta := range metas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Evaluated++
		e.evaluate(meta.Path, opts, res)
	}

	e.logger.Info("promotion run finished",
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("evaluated", res.Evaluated),
		slog.Int("promoted", res.Promoted),
		slog.Int("skipped", res.Skipped),
		slog.Int("errored", res.Errored))
	return res, nil
}

// evaluate applies selection and, outside dry runs, executes the move for a
// single candidate.
func (e *Engine) evaluate(path string, opts Options, res *Result) {
	data, err := e.store.Read(path)
	if err != nil {
		e.fail(res, path, "", fmt.Sprintf("read: %v", err))
		return
	}
	note, err := parser.ParseNote(path, data)
	if err != nil {
		e.fail(res, path, "", fmt.Sprintf("parse: %v", err))
		return
	}
	typeKey := typeLabel(note.Type)

	if note.Status != models.StatusPromoted {
		e.skip(res, typeKey)
		return
	}
	if note.QualityScore == nil || *note.QualityScore < opts.QualityThreshold {
		e.skip(res, typeKey)
		return
	}

	targetDir, err := note.Type.TargetDir()
	if err != nil {
		e.fail(res, path, typeKey, err.Error())
		return
	}
	dest := filepath.Join(targetDir, filepath.Base(path))

	if opts.DryRun {
		res.Planned = append(res.Planned, PlannedMove{Path: path, Dest: dest})
		e.promoteCount(res, typeKey)
		return
	}

	if err := e.execute(*note, data, dest); err != nil {
		e.fail(res, path, typeKey, err.Error())
		return
	}
	e.promoteCount(res, typeKey)
	if e.notify != nil {
		e.notify("promoted", dest)
	}
}

// execute performs the real promotion: legality check, backup-guarded move,
// then the frontmatter rewrite at the new location.
func (e *Engine) execute(note models.Note, data []byte, dest string) error {
	now := e.now()
	updated, err := lifecycle.Transition(note, models.StatusPublished, now)
	if err != nil {
		return err
	}

	rec, err := e.mover.Move(note.Path, dest)
	if err != nil {
		return err
	}

	// From here on the note sits in a published-tier directory with
	// status still promoted. Any failure before the rewrite lands must
	// undo the move, or the note is stranded outside the inbox scan.
	content, err := frontmatter.Update(data, map[string]any{
		"status":        string(updated.Status),
		"promoted_date": now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		e.rollback(rec, dest)
		return fmt.Errorf("rewrite frontmatter: %w", err)
	}
	if err := e.store.Write(dest, content); err != nil {
		e.rollback(rec, dest)
		return fmt.Errorf("write promoted note: %w", err)
	}

	if err := e.db.DeleteNote(note.Path); err != nil {
		e.logger.Warn("promote: index delete failed", slog.String("path", note.Path), slog.String("error", err.Error()))
	}
	if err := index.IndexFile(e.db, dest, content); err != nil {
		e.logger.Warn("promote: reindex failed", slog.String("path", dest), slog.String("error", err.Error()))
	}
	return nil
}

// rollback puts a note back in the inbox after the post-move rewrite failed.
func (e *Engine) rollback(rec *vault.BackupRecord, dest string) {
	if err := e.mover.Restore(rec, dest); err != nil {
		e.logger.Error("promote: rollback failed",
			slog.String("path", rec.OriginalPath),
			slog.String("dest", dest),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) promoteCount(res *Result, typeKey string) {
	res.Promoted++
	c := res.ByType[typeKey]
	c.Promoted++
	res.ByType[typeKey] = c
	e.collector.Promotions.WithLabelValues(typeKey, "promoted").Inc()
}

func (e *Engine) skip(res *Result, typeKey string) {
	res.Skipped++
	c := res.ByType[typeKey]
	c.Skipped++
	res.ByType[typeKey] = c
	e.collector.Promotions.WithLabelValues(typeKey, "skipped").Inc()
}

func (e *Engine) fail(res *Result, path, typeKey, reason string) {
	if typeKey == "" {
		typeKey = "unknown"
	}
	res.Errored++
	res.Errors[path] = reason
	c := res.ByType[typeKey]
	c.Errored++
	res.ByType[typeKey] = c
	e.collector.Promotions.WithLabelValues(typeKey, "error").Inc()
	e.logger.Warn("promote: note failed", slog.String("path", path), slog.String("reason", reason))
}

func typeLabel(t models.NoteType) string {
	if t == "" {
		return "unknown"
	}
	return string(t)
}
