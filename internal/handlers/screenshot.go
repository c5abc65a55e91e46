package handlers

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/fsnotify/fsnotify"

	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/ratelimit"
)

// imageEmbed matches Obsidian-style and standard markdown image embeds.
var imageEmbed = regexp.MustCompile(`(?i)(!\[\[[^\]]+\.(png|jpe?g|webp)\]\]|!\[[^\]]*\]\([^)]+\.(png|jpe?g|webp)\))`)

// Screenshot enriches captured screenshot notes: inbox notes that either
// declare a screenshot source or embed an image.
type Screenshot struct {
	base
}

// NewScreenshot creates the screenshot capture handler.
func NewScreenshot(svc *noteservice.Service, enricher Enricher, limiter *ratelimit.Limiter, coll *metrics.Collector, logger *slog.Logger) *Screenshot {
	return &Screenshot{base: newBase("screenshot", svc, enricher, limiter, coll, logger)}
}

// CanHandle implements watcher.Handler.
func (h *Screenshot) CanHandle(path string, op fsnotify.Op) bool {
	return canHandlePath(path, op)
}

// Handle implements watcher.Handler.
func (h *Screenshot) Handle(ctx context.Context, path string, _ fsnotify.Op) error {
	note, err := h.load(ctx, path)
	if err != nil || note == nil {
		return err
	}
	if !h.claims(note) {
		return nil
	}

	res, err := h.enrichContent(ctx, note.Body)
	if err != nil {
		return err
	}
	return h.complete(ctx, note, res)
}

func (h *Screenshot) claims(note *models.Note) bool {
	if src, _ := note.Frontmatter["source"].(string); src == "screenshot" {
		return true
	}
	return imageEmbed.MatchString(note.Body)
}
