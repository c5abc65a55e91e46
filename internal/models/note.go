// Package models defines the domain types for the InnerOS vault.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a note.
type Status string

// Lifecycle states.
const (
	StatusInbox     Status = "inbox"
	StatusDraft     Status = "draft"
	StatusPromoted  Status = "promoted"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// ParseStatus converts a raw frontmatter value into a Status.
// An empty string defaults to StatusInbox (notes start in the inbox).
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusInbox, StatusDraft, StatusPromoted, StatusPublished, StatusArchived:
		return Status(raw), nil
	case "":
		return StatusInbox, nil
	default:
		return "", fmt.Errorf("models: unknown status %q", raw)
	}
}

// NoteType classifies a note. It is set at creation and never changed by
// automation; only status and location move during promotion.
type NoteType string

// Note types.
const (
	TypeFleeting   NoteType = "fleeting"
	TypeLiterature NoteType = "literature"
	TypePermanent  NoteType = "permanent"
)

// Vault directory names.
const (
	DirInbox      = "Inbox"
	DirFleeting   = "Fleeting Notes"
	DirLiterature = "Literature"
	DirPermanent  = "Permanent Notes"
	DirArchive    = "Archive"
)

// TargetDir returns the vault directory a note of this type is promoted into.
func (t NoteType) TargetDir() (string, error) {
	switch t {
	case TypeFleeting:
		return DirFleeting, nil
	case TypeLiterature:
		return DirLiterature, nil
	case TypePermanent:
		return DirPermanent, nil
	default:
		return "", fmt.Errorf("models: no target directory for note type %q", string(t))
	}
}

// NoteMetadata is the lightweight listing record returned by storage walks,
// enough for the index sync to detect changed files without parsing them.
type NoteMetadata struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}

// Note is the typed view of a vault note's lifecycle metadata. Fields that
// may legitimately be absent from the frontmatter are pointers; everything
// else carries an explicit default.
type Note struct {
	Path               string         `json:"path"`
	Title              string         `json:"title,omitempty"`
	Type               NoteType       `json:"type"`
	Status             Status         `json:"status"`
	QualityScore       *float64       `json:"quality_score,omitempty"`
	AIProcessed        bool           `json:"ai_processed"`
	ReadyForProcessing bool           `json:"ready_for_processing"`
	ProcessedDate      *time.Time     `json:"processed_date,omitempty"`
	PromotedDate       *time.Time     `json:"promoted_date,omitempty"`
	Tags               []string       `json:"tags,omitempty"`
	Frontmatter        map[string]any `json:"frontmatter,omitempty"`
	Body               string         `json:"-"`
	Checksum           string         `json:"checksum,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// HasQualityScore reports whether an enrichment pass has assigned a score.
func (n *Note) HasQualityScore() bool {
	return n.QualityScore != nil
}

// FromFrontmatter builds a typed Note from a parsed frontmatter map.
// Missing keys fall back to defaults; malformed values for the lifecycle
// keys are reported as errors rather than silently coerced.
func FromFrontmatter(path string, fm map[string]any, body string) (*Note, error) {
	n := &Note{
		Path:        path,
		Status:      StatusInbox,
		Frontmatter: fm,
		Body:        body,
	}
	if fm == nil {
		return n, nil
	}

	if raw, ok := fm["status"]; ok {
		s, err := ParseStatus(stringValue(raw))
		if err != nil {
			return nil, fmt.Errorf("models: note %s: %w", path, err)
		}
		n.Status = s
	}
	if raw, ok := fm["type"]; ok {
		n.Type = NoteType(stringValue(raw))
	}
	if raw, ok := fm["title"]; ok {
		n.Title = stringValue(raw)
	}
	if raw, ok := fm["quality_score"]; ok {
		score, err := floatValue(raw)
		if err != nil {
			return nil, fmt.Errorf("models: note %s: quality_score: %w", path, err)
		}
		n.QualityScore = &score
	}
	if raw, ok := fm["ai_processed"]; ok {
		n.AIProcessed = boolValue(raw)
	}
	if raw, ok := fm["ready_for_processing"]; ok {
		n.ReadyForProcessing = boolValue(raw)
	}
	if ts := timeValue(fm["processed_date"]); ts != nil {
		n.ProcessedDate = ts
	}
	if ts := timeValue(fm["promoted_date"]); ts != nil {
		n.PromotedDate = ts
	}
	return n, nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func floatValue(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}

func boolValue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(x)
		return err == nil && b
	default:
		// ai_processed is sometimes written as a timestamp; any non-empty
		// value counts as processed.
		return v != nil
	}
}

// timeValue parses a frontmatter timestamp leniently. Returns nil when the
// value is absent or unparseable.
func timeValue(v any) *time.Time {
	switch x := v.(type) {
	case time.Time:
		return &x
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if ts, err := time.Parse(layout, x); err == nil {
				return &ts
			}
		}
	}
	return nil
}
