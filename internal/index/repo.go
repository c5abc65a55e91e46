package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path         string
	Title        string
	Type         string
	Status       string
	QualityScore *float64
	Checksum     string
	Tags         []string
	UpdatedAt    time.Time
}

// ListFilter narrows ListNotes results. Zero values mean "no filter".
type ListFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// UpsertNote inserts or replaces a note row.
func (db *DB) UpsertNote(n NoteRow) error {
	tagsJSON, _ := json.Marshal(n.Tags)

	var score sql.NullFloat64
	if n.QualityScore != nil {
		score = sql.NullFloat64{Float64: *n.QualityScore, Valid: true}
	}

	_, err := db.conn.Exec(`
		INSERT INTO notes (path, title, note_type, status, quality_score, checksum, tags, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title         = excluded.title,
			note_type     = excluded.note_type,
			status        = excluded.status,
			quality_score = excluded.quality_score,
			checksum      = excluded.checksum,
			tags          = excluded.tags,
			updated_at    = excluded.updated_at
	`, n.Path, n.Title, n.Type, n.Status, score, n.Checksum, string(tagsJSON), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}
	return nil
}

// DeleteNote removes a note row.
func (db *DB) DeleteNote(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return nil
}

// GetNote returns a single row, or nil when not indexed.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, title, note_type, status, quality_score, checksum, tags, updated_at
		FROM notes WHERE path = ?
	`, path)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns rows matching the filter plus the unpaginated total.
func (db *DB) ListNotes(f ListFilter) ([]NoteRow, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Type != "" {
		where += " AND note_type = ?"
		args = append(args, f.Type)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT path, title, note_type, status, quality_score, checksum, tags, updated_at
		FROM notes ` + where + `
		ORDER BY path
		LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *n)
	}
	return out, total, rows.Err()
}

// CountByStatus returns the number of notes per lifecycle status.
func (db *DB) CountByStatus() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM notes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("index: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanNote(row scannable) (*NoteRow, error) {
	var n NoteRow
	var score sql.NullFloat64
	var tagsJSON string
	if err := row.Scan(&n.Path, &n.Title, &n.Type, &n.Status, &score, &n.Checksum, &tagsJSON, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if score.Valid {
		n.QualityScore = &score.Float64
	}
	_ = json.Unmarshal([]byte(tagsJSON), &n.Tags)
	return &n, nil
}
