package index

import (
	"time"

	"github.com/inneros/inneros/internal/checksum"
	"github.com/inneros/inneros/internal/parser"
)

// NoteIndex defines the interface for vault index operations. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow) error
	DeleteNote(path string) error
	GetNote(path string) (*NoteRow, error)
	ListNotes(f ListFilter) ([]NoteRow, int, error)
	CountByStatus() (map[string]int, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)

// IndexFile parses raw note bytes and upserts the lifecycle row for path.
// Exported so the startup sync and the watcher share one code path.
func IndexFile(db NoteIndex, path string, data []byte) error {
	n, err := parser.ParseNote(path, data)
	if err != nil {
		return err
	}
	return db.UpsertNote(NoteRow{
		Path:         path,
		Title:        n.Title,
		Type:         string(n.Type),
		Status:       string(n.Status),
		QualityScore: n.QualityScore,
		Checksum:     checksum.Sum(data),
		Tags:         n.Tags,
		UpdatedAt:    time.Now(),
	})
}
