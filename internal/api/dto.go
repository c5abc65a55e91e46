package api

import (
	"github.com/inneros/inneros/internal/daemon"
	"github.com/inneros/inneros/internal/index"
	"github.com/inneros/inneros/internal/promote"
)

// NoteListResponse wraps filtered note listings.
type NoteListResponse struct {
	Notes []index.NoteRow `json:"notes"`
	Total int             `json:"total"`
}

// PromoteRequest is the request body for POST /api/promote.
type PromoteRequest struct {
	DryRun           bool    `json:"dry_run"`
	QualityThreshold float64 `json:"quality_threshold"`
}

// PromoteResponse is the outcome of a promotion run.
type PromoteResponse = promote.Result

// StatusResponse combines the daemon snapshot with vault counts.
type StatusResponse struct {
	Daemon        daemon.Status  `json:"daemon"`
	NotesByStatus map[string]int `json:"notes_by_status"`
}
