package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inneros/inneros/internal/daemon"
	"github.com/inneros/inneros/internal/noteservice"
	"github.com/inneros/inneros/internal/promote"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, engine *promote.Engine, d *daemon.Daemon, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, engine, d)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/*", h.GetNote)

	// Promotion runs.
	r.Post("/promote", h.Promote)

	// Daemon status and control.
	r.Get("/status", h.Status)
	r.Post("/daemon/restart", h.RestartDaemon)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
