package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/inneros/inneros/internal/models"
)

var allStatuses = []models.Status{
	models.StatusInbox,
	models.StatusDraft,
	models.StatusPromoted,
	models.StatusPublished,
	models.StatusArchived,
}

func legalEdges() map[[2]models.Status]bool {
	legal := map[[2]models.Status]bool{
		{models.StatusInbox, models.StatusPromoted}:     true,
		{models.StatusInbox, models.StatusDraft}:        true,
		{models.StatusDraft, models.StatusPromoted}:     true,
		{models.StatusDraft, models.StatusArchived}:     true,
		{models.StatusPromoted, models.StatusPublished}: true,
		{models.StatusPromoted, models.StatusDraft}:     true,
		{models.StatusPromoted, models.StatusArchived}:  true,
		{models.StatusPublished, models.StatusArchived}: true,
	}
	return legal
}

func TestTransition_EdgeMatrix(t *testing.T) {
	legal := legalEdges()
	score := 0.8
	now := time.Now()

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			n := models.Note{Path: "n.md", Status: from, QualityScore: &score}
			got, err := Transition(n, to, now)

			if legal[[2]models.Status{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error: %v", from, to, err)
					continue
				}
				if got.Status != to {
					t.Errorf("%s -> %s: status = %q", from, to, got.Status)
				}
			} else {
				var ite *InvalidTransitionError
				if !errors.As(err, &ite) {
					t.Errorf("%s -> %s: want InvalidTransitionError, got %v", from, to, err)
					continue
				}
				if ite.From != from || ite.To != to {
					t.Errorf("%s -> %s: error names edge %s -> %s", from, to, ite.From, ite.To)
				}
				if got.Status != from {
					t.Errorf("%s -> %s: note mutated on illegal edge", from, to)
				}
			}
		}
	}
}

func TestTransition_ArchivedIsTerminal(t *testing.T) {
	for _, to := range allStatuses {
		if CanTransition(models.StatusArchived, to) {
			t.Errorf("archived must have no outgoing edge, found -> %s", to)
		}
	}
}

func TestTransition_PromotedRequiresQualityScore(t *testing.T) {
	n := models.Note{Path: "raw.md", Status: models.StatusInbox}
	_, err := Transition(n, models.StatusPromoted, time.Now())
	if !errors.Is(err, ErrMissingQualityScore) {
		t.Fatalf("want ErrMissingQualityScore, got %v", err)
	}

	score := 0.5
	n.QualityScore = &score
	got, err := Transition(n, models.StatusPromoted, time.Now())
	if err != nil {
		t.Fatalf("with score: %v", err)
	}
	if got.Status != models.StatusPromoted {
		t.Errorf("status = %q", got.Status)
	}
}

func TestTransition_StampsTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	score := 0.9

	n := models.Note{Path: "a.md", Status: models.StatusInbox, QualityScore: &score}
	promoted, err := Transition(n, models.StatusPromoted, now)
	if err != nil {
		t.Fatal(err)
	}
	if promoted.ProcessedDate == nil || !promoted.ProcessedDate.Equal(now) {
		t.Errorf("processed_date not stamped: %v", promoted.ProcessedDate)
	}
	if promoted.PromotedDate != nil {
		t.Errorf("promoted_date stamped too early")
	}

	published, err := Transition(promoted, models.StatusPublished, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if published.PromotedDate == nil || !published.PromotedDate.Equal(now.Add(time.Hour)) {
		t.Errorf("promoted_date not stamped: %v", published.PromotedDate)
	}
}

func TestTransition_PromotedToDraftIsReversible(t *testing.T) {
	score := 0.6
	n := models.Note{Path: "wip.md", Status: models.StatusPromoted, QualityScore: &score}
	draft, err := Transition(n, models.StatusDraft, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	back, err := Transition(draft, models.StatusPromoted, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if back.Status != models.StatusPromoted {
		t.Errorf("status = %q", back.Status)
	}
}
