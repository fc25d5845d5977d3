// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package mediaqueue drains the durable per-run media queue through the
// media handler.
package mediaqueue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/importer"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/media"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
)

// DefaultMaxAttempts bounds retries of a queue row.
const DefaultMaxAttempts = 3

// statusDeferred is the internal result of a row put back without an attempt.
const statusDeferred models.MediaStatus = "deferred"

// Store is the queue surface of the destination store.
type Store interface {
	FetchPendingMedia(ctx context.Context, runID string, limit, offset int) ([]models.MediaQueueItem, error)
	UpdateMediaStatus(ctx context.Context, id int64, status models.MediaStatus, attachmentID int64, newURL, message string) error
	IncrementMediaAttempts(ctx context.Context, id int64) (int, error)
	ResetProcessingMedia(ctx context.Context, runID string) (int64, error)
	MediaCounts(ctx context.Context, runID string) (models.MediaCounts, error)
	PurgeMediaQueue(ctx context.Context, runID string) (int64, error)
	SetItemMeta(ctx context.Context, itemID int64, key, value string) error
}

var _ Store = (*database.DB)(nil)

// Resolver turns a source URL into a destination attachment.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string, ownerID int64, alt string) (media.Resolved, error)
}

// Outcome summarizes one ProcessBatch call.
type Outcome struct {
	Processed int
	Completed int
	Failed    int
	Retried   int

	// Deferred counts retried rows that were returned to pending without
	// using an attempt because the download circuit breaker was open.
	Deferred int

	// Interrupted is set when the batch stopped early on the stop callback.
	Interrupted bool

	// Counts is the queue state after the batch.
	Counts models.MediaCounts
}

// Done reports whether the run has no pending work left.
func (o *Outcome) Done() bool {
	return o.Counts.Pending == 0 && o.Counts.Processing == 0
}

// Manager processes media queue rows of one run at a time.
type Manager struct {
	store       Store
	resolver    Resolver
	maxAttempts int
}

// NewManager creates a queue manager. maxAttempts <= 0 uses
// DefaultMaxAttempts.
func NewManager(store Store, resolver Resolver, maxAttempts int) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Manager{store: store, resolver: resolver, maxAttempts: maxAttempts}
}

// Begin prepares a run for its media phase. Rows stranded in processing by
// an interrupted invocation go back to pending.
func (m *Manager) Begin(ctx context.Context, runID string) (models.MediaCounts, error) {
	n, err := m.store.ResetProcessingMedia(ctx, runID)
	if err != nil {
		return models.MediaCounts{}, err
	}
	if n > 0 {
		logging.Ctx(ctx).Info().Str("run_id", runID).Int64("rows", n).Msg("Reset interrupted media rows")
	}
	return m.store.MediaCounts(ctx, runID)
}

// ProcessBatch resolves up to limit pending rows in insertion order. stop is
// consulted before each row; a nil stop never interrupts.
func (m *Manager) ProcessBatch(ctx context.Context, runID string, opts models.Options, limit int, stop func() bool) (*Outcome, error) {
	items, err := m.store.FetchPendingMedia(ctx, runID, limit, 0)
	if err != nil {
		return nil, err
	}

	out := &Outcome{}
	for i := range items {
		if stop != nil && stop() {
			out.Interrupted = true
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, err := m.processItem(ctx, &items[i], opts)
		if err != nil {
			return nil, err
		}
		out.Processed++
		switch status {
		case models.MediaCompleted:
			out.Completed++
		case models.MediaFailed:
			out.Failed++
		case models.MediaPending:
			out.Retried++
		case statusDeferred:
			out.Retried++
			out.Deferred++
			status = models.MediaPending
		}
		metrics.RecordMediaResult(string(status))
	}

	out.Counts, err = m.store.MediaCounts(ctx, runID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// processItem moves one row to its next status. Only store failures are
// returned as errors; media failures are recorded on the row.
func (m *Manager) processItem(ctx context.Context, item *models.MediaQueueItem, opts models.Options) (models.MediaStatus, error) {
	logger := logging.Ctx(ctx).With().
		Int64("queue_id", item.ID).
		Int64("post_id", item.PostID).
		Str("media_type", string(item.MediaType)).
		Str("url", item.OriginalURL).
		Logger()

	if err := m.store.UpdateMediaStatus(ctx, item.ID, models.MediaProcessing, 0, "", ""); err != nil {
		return "", err
	}

	r, rerr := m.resolver.Resolve(ctx, item.OriginalURL, item.PostID, item.AltText)
	if rerr != nil && media.IsBreakerOpen(rerr) {
		msg := fmt.Sprintf("deferred after %d attempts: %v", item.Attempts, rerr)
		if err := m.store.UpdateMediaStatus(ctx, item.ID, models.MediaPending, 0, "", msg); err != nil {
			return "", err
		}
		logger.Debug().Err(rerr).Msg("Media deferred while downloads are paused")
		return statusDeferred, nil
	}

	attempts, err := m.store.IncrementMediaAttempts(ctx, item.ID)
	if err != nil {
		return "", err
	}
	if rerr != nil {
		status := models.MediaPending
		if !retryable(rerr) || attempts >= m.maxAttempts {
			status = models.MediaFailed
		}
		msg := fmt.Sprintf("attempt %d: %v", attempts, rerr)
		if err := m.store.UpdateMediaStatus(ctx, item.ID, status, 0, "", msg); err != nil {
			return "", err
		}
		logger.Warn().Err(rerr).Int("attempts", attempts).Str("status", string(status)).Msg("Media not resolved")
		return status, nil
	}

	if item.MediaType == models.MediaFeatured {
		if err := m.store.SetItemMeta(ctx, item.PostID, importer.MetaThumbnailID, strconv.FormatInt(r.AttachmentID, 10)); err != nil {
			logger.Warn().Err(err).Msg("Failed to set featured image")
		}
	}
	if opts.GenerateThumbnails {
		if err := m.store.SetItemMeta(ctx, r.AttachmentID, importer.MetaGenerateThumbs, "1"); err != nil {
			logger.Warn().Err(err).Msg("Failed to flag attachment for thumbnails")
		}
	}

	if err := m.store.UpdateMediaStatus(ctx, item.ID, models.MediaCompleted, r.AttachmentID, r.URL, ""); err != nil {
		return "", err
	}
	logger.Debug().Int64("attachment_id", r.AttachmentID).Msg("Media resolved")
	return models.MediaCompleted, nil
}

// retryable reports whether another attempt could succeed. Memory pressure
// latches for the process lifetime, so it is not retried.
func retryable(err error) bool {
	switch media.KindOf(err) {
	case media.KindInvalidURL, media.KindLocalNotFound, media.KindHighMemory, media.KindUnsupportedMedia:
		return false
	}
	var se *media.StatusError
	if errors.As(err, &se) && se.Code < 500 && se.Code != http.StatusTooManyRequests {
		return false
	}
	return !errors.Is(err, media.ErrTooLarge)
}

// Purge removes every row of a run.
func (m *Manager) Purge(ctx context.Context, runID string) (int64, error) {
	return m.store.PurgeMediaQueue(ctx, runID)
}

// Counts returns the queue state of a run.
func (m *Manager) Counts(ctx context.Context, runID string) (models.MediaCounts, error) {
	return m.store.MediaCounts(ctx, runID)
}
