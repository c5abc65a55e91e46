// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes InnerOS vault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/promote"
	"github.com/inneros/inneros/internal/storage"
)

// Server wraps the MCP server with InnerOS tools.
type Server struct {
	mcp    *server.MCPServer
	store  storage.Provider
	db     index.NoteIndex
	engine *promote.Engine
}

// New creates a new MCP server with all InnerOS tools registered.
func New(store storage.Provider, db index.NoteIndex, engine *promote.Engine) *Server {
	s := &Server{store: store, db: db, engine: engine}

	s.mcp = server.NewMCPServer(
		"InnerOS",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("vault_status",
		mcp.WithDescription("Report the vault's note counts per lifecycle status."),
	), s.vaultStatus)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed notes, optionally filtered by lifecycle status and note type."),
		mcp.WithString("status", mcp.Description("Filter by status (inbox, draft, promoted, published, archived)")),
		mcp.WithString("type", mcp.Description("Filter by note type (fleeting, literature, permanent)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note. "+
			"Notes follow the lifecycle frontmatter format; read the contract first via "+
			"the get_note_contract tool or the inneros://note-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. Inbox/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("promote_notes",
		mcp.WithDescription("Run the quality-gated promotion engine over the inbox. "+
			"With dry_run=true the selection is previewed without touching any files."),
		mcp.WithBoolean("dry_run", mcp.Description("Preview only; defaults to true")),
		mcp.WithNumber("quality_threshold", mcp.Description("Minimum quality score in [0,1]; defaults to 0.7")),
	), s.promoteNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical InnerOS note format contract. "+
			"Call this before creating notes so automation can pick them up."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("inneros://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format with lifecycle frontmatter."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) vaultStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.db.CountByStatus()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	out, _ := json.MarshalIndent(map[string]any{
		"total":     total,
		"by_status": counts,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := index.ListFilter{}
	if v, err := req.RequireString("status"); err == nil {
		filter.Status = v
	}
	if v, err := req.RequireString("type"); err == nil {
		filter.Type = v
	}

	rows, total, err := s.db.ListNotes(filter)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lines := make([]string, 0, len(rows)+1)
	for _, row := range rows {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", row.Path, row.Status, row.Type))
	}
	lines = append(lines, fmt.Sprintf("total: %d", total))
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) promoteNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := promote.Options{
		DryRun:           true,
		QualityThreshold: promote.DefaultQualityThreshold,
	}
	if args, ok := req.Params.Arguments.(map[string]interface{}); ok {
		if v, ok := args["dry_run"].(bool); ok {
			opts.DryRun = v
		}
		if v, ok := args["quality_threshold"].(float64); ok {
			opts.QualityThreshold = v
		}
	}

	res, err := s.engine.AutoPromoteReadyNotes(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "inneros://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
