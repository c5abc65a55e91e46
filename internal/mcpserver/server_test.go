package mcpserver

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/metrics"
	"github.com/inneros/inneros/internal/promote"
	"github.com/inneros/inneros/internal/storage"
	"github.com/inneros/inneros/internal/vault"
)

func testServer(t *testing.T) (*Server, storage.Provider, *index.DB) {
	t.Helper()

	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "inneros-mcp-test-*.db")
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
	mover, err := vault.NewMover(vaultDir, ".backups", logger)
	if err != nil {
		t.Fatal(err)
	}
	engine := promote.NewEngine(store, db, mover, logger, metrics.NewCollector())

	srv := New(store, db, engine)
	return srv, store, db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "vault_status":
		result, err = srv.vaultStatus(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "promote_notes":
		result, err = srv.promoteNotes(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func seed(t *testing.T, store storage.Provider, db *index.DB, path, content string) {
	t.Helper()
	if err := store.Write(path, []byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := index.IndexFile(db, path, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func TestVaultStatus(t *testing.T) {
	srv, store, db := testServer(t)
	seed(t, store, db, "Inbox/a.md", "---\nstatus: inbox\n---\nA\n")
	seed(t, store, db, "Inbox/b.md", "---\nstatus: promoted\n---\nB\n")

	r := callTool(t, srv, "vault_status", nil)
	text := resultText(r)
	if !strings.Contains(text, `"total": 2`) {
		t.Errorf("status = %q", text)
	}
	if !strings.Contains(text, `"inbox": 1`) || !strings.Contains(text, `"promoted": 1`) {
		t.Errorf("status missing counts: %q", text)
	}
}

func TestListNotes_Filtered(t *testing.T) {
	srv, store, db := testServer(t)
	seed(t, store, db, "Inbox/a.md", "---\nstatus: promoted\ntype: fleeting\n---\nA\n")
	seed(t, store, db, "Inbox/b.md", "---\nstatus: inbox\ntype: fleeting\n---\nB\n")

	r := callTool(t, srv, "list_notes", map[string]interface{}{"status": "promoted"})
	text := resultText(r)
	if !strings.Contains(text, "Inbox/a.md") || strings.Contains(text, "Inbox/b.md") {
		t.Errorf("list = %q", text)
	}
	if !strings.Contains(text, "total: 1") {
		t.Errorf("missing total in %q", text)
	}
}

func TestReadNote(t *testing.T) {
	srv, store, db := testServer(t)
	seed(t, store, db, "Inbox/n.md", "# Hello\nBody\n")

	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "Inbox/n.md"})
	if got := resultText(r); got != "# Hello\nBody\n" {
		t.Errorf("read = %q", got)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestPromoteNotes_DefaultsToDryRun(t *testing.T) {
	srv, store, db := testServer(t)
	seed(t, store, db, "Inbox/ready.md",
		"---\ntype: fleeting\nstatus: promoted\nquality_score: 0.9\n---\nx\n")

	r := callTool(t, srv, "promote_notes", nil)
	text := resultText(r)
	if !strings.Contains(text, `"dry_run": true`) {
		t.Errorf("promote should default to dry run: %q", text)
	}
	if !strings.Contains(text, `"promoted": 1`) {
		t.Errorf("promote result = %q", text)
	}
	if ok, _ := store.Exists("Inbox/ready.md"); !ok {
		t.Error("dry run moved the note")
	}
}

func TestPromoteNotes_RealRun(t *testing.T) {
	srv, store, db := testServer(t)
	seed(t, store, db, "Inbox/ready.md",
		"---\ntype: fleeting\nstatus: promoted\nquality_score: 0.9\n---\nx\n")

	r := callTool(t, srv, "promote_notes", map[string]interface{}{"dry_run": false})
	if r.IsError {
		t.Fatalf("promote failed: %s", resultText(r))
	}
	if ok, _ := store.Exists("Fleeting Notes/ready.md"); !ok {
		t.Error("real run did not move the note")
	}
}

func TestGetNoteContract(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", nil)
	text := resultText(r)
	if !strings.Contains(text, "ready_for_processing") {
		t.Errorf("contract missing processing flag: %q", text[:80])
	}
}
