package index

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/inneros/inneros/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "inneros-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func score(v float64) *float64 { return &v }

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	row := NoteRow{
		Path:         "Inbox/hello.md",
		Title:        "Hello World",
		Type:         "fleeting",
		Status:       "promoted",
		QualityScore: score(0.85),
		Checksum:     "abc123",
		Tags:         []string{"go", "test"},
		UpdatedAt:    time.Now(),
	}
	if err := db.UpsertNote(row); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	got, err := db.GetNote("Inbox/hello.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got == nil {
		t.Fatal("note not found")
	}
	if got.Status != "promoted" || got.Type != "fleeting" {
		t.Errorf("status/type = %q/%q", got.Status, got.Type)
	}
	if got.QualityScore == nil || *got.QualityScore != 0.85 {
		t.Errorf("quality_score = %v", got.QualityScore)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "go" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestGetNote_Missing(t *testing.T) {
	db := testDB(t)
	got, err := db.GetNote("nope.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got != nil {
		t.Errorf("got = %v, want nil", got)
	}
}

func TestListNotes_StatusFilter(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "Inbox/a.md", Status: "promoted", Type: "fleeting", UpdatedAt: time.Now()})
	_ = db.UpsertNote(NoteRow{Path: "Inbox/b.md", Status: "inbox", Type: "fleeting", UpdatedAt: time.Now()})
	_ = db.UpsertNote(NoteRow{Path: "Inbox/c.md", Status: "promoted", Type: "literature", UpdatedAt: time.Now()})

	rows, total, err := db.ListNotes(ListFilter{Status: "promoted"})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Errorf("total = %d, rows = %d, want 2/2", total, len(rows))
	}

	rows, _, err = db.ListNotes(ListFilter{Status: "promoted", Type: "literature"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Path != "Inbox/c.md" {
		t.Errorf("rows = %v", rows)
	}
}

func TestCountByStatus(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "a.md", Status: "inbox", UpdatedAt: time.Now()})
	_ = db.UpsertNote(NoteRow{Path: "b.md", Status: "inbox", UpdatedAt: time.Now()})
	_ = db.UpsertNote(NoteRow{Path: "c.md", Status: "published", UpdatedAt: time.Now()})

	counts, err := db.CountByStatus()
	if err != nil {
		t.Fatal(err)
	}
	if counts["inbox"] != 2 || counts["published"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestIndexFile_ParsesLifecycleColumns(t *testing.T) {
	db := testDB(t)
	data := []byte("---\ntitle: T\ntype: literature\nstatus: promoted\nquality_score: 0.7\n---\nbody\n")
	if err := IndexFile(db, "Inbox/t.md", data); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	got, _ := db.GetNote("Inbox/t.md")
	if got == nil || got.Status != "promoted" || got.QualityScore == nil {
		t.Fatalf("row = %+v", got)
	}
}

func TestSync_AddsAndRemoves(t *testing.T) {
	db := testDB(t)
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	_ = store.Write("Inbox/a.md", []byte("---\nstatus: inbox\n---\nA\n"))
	_ = db.UpsertNote(NoteRow{Path: "gone.md", Status: "inbox", Checksum: "stale", UpdatedAt: time.Now()})

	if err := Sync(db, store, logger); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got, _ := db.GetNote("Inbox/a.md"); got == nil {
		t.Error("new file not indexed")
	}
	if got, _ := db.GetNote("gone.md"); got != nil {
		t.Error("stale entry not removed")
	}
}
