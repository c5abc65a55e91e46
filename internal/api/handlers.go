package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inneros/inneros/internal/apperr"
	"github.com/inneros/inneros/internal/daemon"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/promote"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *noteservice.Service
	engine *promote.Engine
	d      *daemon.Daemon
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, engine *promote.Engine, d *daemon.Daemon) *Handler {
	return &Handler{svc: svc, engine: engine, d: d}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from API clients (e.g. Inbox%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /api/notes with optional status and type filters.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	rows, total, err := h.svc.ListNotes(r.Context(), index.ListFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: rows, Total: total})
}

// GetNote handles GET /api/notes/*.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Promote handles POST /api/promote. The request body is optional; an
// empty body runs with the default threshold and a real (non-dry) run.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	req := PromoteRequest{QualityThreshold: promote.DefaultQualityThreshold}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}

	res, err := h.engine.AutoPromoteReadyNotes(r.Context(), promote.Options{
		DryRun:           req.DryRun,
		QualityThreshold: req.QualityThreshold,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		slog.Error("promotion run failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Status handles GET /api/status: daemon snapshot plus the vault's status
// distribution.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.CountByStatus(r.Context())
	if err != nil {
		slog.Error("status counts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Daemon:        h.d.Status(),
		NotesByStatus: counts,
	})
}

// RestartDaemon handles POST /api/daemon/restart.
func (h *Handler) RestartDaemon(w http.ResponseWriter, r *http.Request) {
	if err := h.d.Restart(r.Context()); err != nil {
		slog.Error("daemon restart failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(h.d.State())})
}
