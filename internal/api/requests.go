// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package api

import "github.com/tomtom215/pressimport/internal/models"

// StartRequest is the body of POST /api/v1/imports. Omitted options take
// the defaults (force ids and handle attachments on).
type StartRequest struct {
	SourceID string          `json:"source_id" validate:"required,max=255"`
	Options  *models.Options `json:"options,omitempty"`
}

// PreviewRequest is the body of POST /api/v1/imports/preview.
type PreviewRequest struct {
	SourceID string `json:"source_id" validate:"required,max=255"`
	Items    int    `json:"items" validate:"min=0,max=100"`
}

// StopRequest is the body of POST /api/v1/imports/stop. An empty run id
// stops every run.
type StopRequest struct {
	RunID string `json:"run_id" validate:"omitempty,max=64"`
}

// CleanupRequest is the body of POST /api/v1/maintenance/cleanup. An empty
// threshold uses the configured payload TTL.
type CleanupRequest struct {
	OlderThan string `json:"older_than" validate:"omitempty,duration"`
}

// UploadResponse identifies a stored upload.
type UploadResponse struct {
	SourceID string `json:"source_id"`
	Size     int64  `json:"size"`
}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	RunID   string `json:"run_id,omitempty"`
	Stopped bool   `json:"stopped"`
}

// LogResponse is the tail of the run log.
type LogResponse struct {
	Lines []string `json:"lines"`
}

// HealthResponse reports whether the destination store is reachable.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version,omitempty"`
}
