// Package noteservice coordinates vault storage, the index, and frontmatter
// rewrites for the API, MCP, and automation layers.
package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/inneros/inneros/internal/apperr"
	"github.com/inneros/inneros/internal/checksum"
	"github.com/inneros/inneros/internal/frontmatter"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/models"
	"github.com/inneros/inneros/internal/parser"
	"github.com/inneros/inneros/internal/storage"
)

// Service coordinates storage and index operations.
type Service struct {
	store  storage.Provider
	db     index.NoteIndex
	logger *slog.Logger
}

// NewService creates a new note service.
func NewService(store storage.Provider, db index.NoteIndex, logger *slog.Logger) *Service {
	return &Service{store: store, db: db, logger: logger}
}

// GetNote reads a note from storage and returns its typed lifecycle record.
func (s *Service) GetNote(_ context.Context, path string) (*models.Note, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	n, err := parser.ParseNote(path, data)
	if err != nil {
		return nil, err
	}
	n.Checksum = checksum.Sum(data)
	return n, nil
}

// ListNotes returns indexed rows matching the filter plus the total count.
func (s *Service) ListNotes(_ context.Context, f index.ListFilter) ([]index.NoteRow, int, error) {
	return s.db.ListNotes(f)
}

// CountByStatus returns the vault's lifecycle status distribution.
func (s *Service) CountByStatus(_ context.Context) (map[string]int, error) {
	return s.db.CountByStatus()
}

// UpdateLifecycle rewrites the given frontmatter keys on the note at path,
// preserving every other key, and reindexes the result. Returns the updated
// typed record.
func (s *Service) UpdateLifecycle(_ context.Context, path string, set map[string]any) (*models.Note, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	updated, err := frontmatter.Update(data, set)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, updated); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, updated); err != nil {
		return nil, err
	}
	n, err := parser.ParseNote(path, updated)
	if err != nil {
		return nil, err
	}
	n.Checksum = checksum.Sum(updated)
	return n, nil
}

// IndexFile parses data and upserts it into the index.
// Exported so that sync and watcher callbacks can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	return index.IndexFile(s.db, path, data)
}

// RemoveFromIndex drops the index row for a deleted note.
func (s *Service) RemoveFromIndex(path string) error {
	return s.db.DeleteNote(path)
}
