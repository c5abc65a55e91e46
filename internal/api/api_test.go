package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/inneros/inneros/internal/daemon"
	"github.com/inneros/inneros/internal/health"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/promote"
	"github.com/inneros/inneros/internal/scheduler"
	"github.com/inneros/inneros/internal/storage"
	"github.com/inneros/inneros/internal/vault"
	"github.com/inneros/inneros/internal/watcher"
)

type testDeps struct {
	svc    *noteservice.Service
	store  storage.Provider
	router http.Handler
}

// testEnv sets up a temp vault, SQLite DB, service, engine, daemon, and
// router. An empty authToken disables auth.
func testEnv(t *testing.T, authToken string) *testDeps {
	t.Helper()

	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "inneros-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })
	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	coll := metrics.NewCollector()
	svc := noteservice.NewService(store, db, logger)

	mover, err := vault.NewMover(vaultDir, ".backups", logger)
	if err != nil {
		t.Fatal(err)
	}
	engine := promote.NewEngine(store, db, mover, logger, coll)

	sched := scheduler.New(logger, coll)
	hm := health.NewManager(logger, coll)
	d := daemon.New(vaultDir, watcher.Config{Debounce: 50 * time.Millisecond}, sched, hm, coll, logger, time.Second)
	t.Cleanup(d.Stop)

	router := NewRouter(svc, engine, d, authToken != "", authToken, nil)
	return &testDeps{svc: svc, store: store, router: router}
}

// seed writes a note to the vault and indexes it.
func (e *testDeps) seed(t *testing.T, path, content string) {
	t.Helper()
	if err := e.store.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.IndexFile(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestListNotes_StatusFilter(t *testing.T) {
	e := testEnv(t, "")
	e.seed(t, "Inbox/a.md", "---\nstatus: promoted\ntype: fleeting\n---\nA\n")
	e.seed(t, "Inbox/b.md", "---\nstatus: inbox\ntype: fleeting\n---\nB\n")

	req := httptest.NewRequest(http.MethodGet, "/notes?status=promoted", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Notes) != 1 || resp.Notes[0].Path != "Inbox/a.md" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetNote(t *testing.T) {
	e := testEnv(t, "")
	e.seed(t, "Inbox/n.md", "---\nstatus: draft\ntype: permanent\nquality_score: 0.6\n---\nBody\n")

	req := httptest.NewRequest(http.MethodGet, "/notes/Inbox/n.md", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var note struct {
		Status       string   `json:"status"`
		QualityScore *float64 `json:"quality_score"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	if note.Status != "draft" || note.QualityScore == nil || *note.QualityScore != 0.6 {
		t.Errorf("note = %+v", note)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	e := testEnv(t, "")
	req := httptest.NewRequest(http.MethodGet, "/notes/nope.md", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestPromote_DryRun(t *testing.T) {
	e := testEnv(t, "")
	e.seed(t, "Inbox/ready.md",
		"---\ntype: fleeting\nstatus: promoted\nquality_score: 0.9\n---\nx\n")

	body := bytes.NewBufferString(`{"dry_run": true, "quality_threshold": 0.7}`)
	req := httptest.NewRequest(http.MethodPost, "/promote", body)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var res promote.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.DryRun || res.Promoted != 1 || len(res.Planned) != 1 {
		t.Errorf("result = %+v", res)
	}
	// Dry run must leave the file where it was.
	if ok, _ := e.store.Exists("Inbox/ready.md"); !ok {
		t.Error("dry run moved the note")
	}
}

func TestPromote_InvalidThreshold(t *testing.T) {
	e := testEnv(t, "")
	body := bytes.NewBufferString(`{"quality_threshold": 2.5}`)
	req := httptest.NewRequest(http.MethodPost, "/promote", body)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body = %s", w.Code, w.Body)
	}
}

func TestStatus(t *testing.T) {
	e := testEnv(t, "")
	e.seed(t, "Inbox/a.md", "---\nstatus: inbox\n---\nA\n")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Daemon.State != daemon.StateStopped {
		t.Errorf("daemon state = %q", resp.Daemon.State)
	}
	if resp.NotesByStatus["inbox"] != 1 {
		t.Errorf("counts = %v", resp.NotesByStatus)
	}
}

func TestAuth_TokenRequired(t *testing.T) {
	e := testEnv(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token: status = %d", w.Code)
	}
}
