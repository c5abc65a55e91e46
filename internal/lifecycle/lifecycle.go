// Package lifecycle enforces the legal note status transition graph.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/inneros/inneros/internal/models"
)

// ErrMissingQualityScore is returned when a note is moved to promoted
// before enrichment has assigned a quality score.
var ErrMissingQualityScore = errors.New("lifecycle: quality score required before promotion")

// InvalidTransitionError names an illegal (from, to) edge.
type InvalidTransitionError struct {
	From models.Status
	To   models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("lifecycle: invalid transition from %q to %q", e.From, e.To)
}

// edges is the complete set of legal status transitions. archived is
// terminal: un-archiving is deliberately not supported.
var edges = map[models.Status][]models.Status{
	models.StatusInbox:     {models.StatusPromoted, models.StatusDraft},
	models.StatusDraft:     {models.StatusPromoted, models.StatusArchived},
	models.StatusPromoted:  {models.StatusPublished, models.StatusDraft, models.StatusArchived},
	models.StatusPublished: {models.StatusArchived},
	models.StatusArchived:  {},
}

// CanTransition reports whether from → to is a legal edge.
func CanTransition(from, to models.Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the requested status change and returns an updated
// copy of the note with the new status and transition timestamps stamped.
// It performs no file I/O; persisting the change is the caller's job.
func Transition(n models.Note, to models.Status, now time.Time) (models.Note, error) {
	if !CanTransition(n.Status, to) {
		return n, &InvalidTransitionError{From: n.Status, To: to}
	}
	if to == models.StatusPromoted && !n.HasQualityScore() {
		return n, fmt.Errorf("%w (note %s)", ErrMissingQualityScore, n.Path)
	}

	n.Status = to
	switch to {
	case models.StatusPromoted:
		ts := now
		n.ProcessedDate = &ts
	case models.StatusPublished:
		ts := now
		n.PromotedDate = &ts
	}
	return n, nil
}
