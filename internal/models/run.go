// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package models

import "time"

// Phase is the state of an ImportRun.
type Phase string

const (
	PhaseQueued              Phase = "queued"
	PhaseImportingPosts      Phase = "importing_posts"
	PhaseImportingMedia      Phase = "importing_media"
	PhaseUpdatingContent     Phase = "updating_content"
	PhaseCompleted           Phase = "completed"
	PhaseCompletedWithErrors Phase = "completed_with_errors"
	PhaseFailed              Phase = "failed"
	PhaseStopped             Phase = "stopped"

	// PhaseNotFound is returned when reading progress for an unknown run.
	// It is never stored.
	PhaseNotFound Phase = "not_found"
)

// IsTerminal reports whether no further phase transition can happen.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseCompleted, PhaseCompletedWithErrors, PhaseFailed, PhaseStopped:
		return true
	default:
		return false
	}
}

// Options are the per-run import flags.
type Options struct {
	ForceIDs           bool `json:"force_ids"`
	ForceAuthor        bool `json:"force_author"`
	HandleAttachments  bool `json:"handle_attachments"`
	GenerateThumbnails bool `json:"generate_thumbnails"`
	ImportOnlyMissing  bool `json:"import_only_missing"`
}

// DefaultOptions returns the options used when a caller specifies none.
func DefaultOptions() Options {
	return Options{
		ForceIDs:          true,
		HandleAttachments: true,
	}
}

// Totals counts outcomes for one phase.
type Totals struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add accumulates other into t.
func (t *Totals) Add(other Totals) {
	t.Total += other.Total
	t.New += other.New
	t.Updated += other.Updated
	t.Skipped += other.Skipped
	t.Failed += other.Failed
}

// ImportRun is one execution of an import, stable across all of its batches.
type ImportRun struct {
	ID            string     `json:"run_id"`
	SourceID      string     `json:"source_id"`
	Options       Options    `json:"options"`
	Phase         Phase      `json:"phase"`
	Total         int        `json:"total"`
	Processed     int        `json:"processed"`
	PayloadHandle string     `json:"payload_handle,omitempty"`
	TermsImported bool       `json:"terms_imported"`
	Posts         Totals     `json:"posts"`
	Terms         Totals     `json:"terms"`
	Media         Totals     `json:"media"`
	Comments      Totals     `json:"comments"`
	Message       string     `json:"message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// RunHandle is returned to callers that start an import.
type RunHandle struct {
	RunID    string `json:"run_id"`
	SourceID string `json:"source_id"`
	Total    int    `json:"total"`
	Phase    Phase  `json:"phase"`
}
