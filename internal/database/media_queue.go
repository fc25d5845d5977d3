// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/pressimport/internal/models"
)

const mediaQueueColumns = `id, run_id, post_id, source_post_id, media_type, original_url, alt_text, status,
	new_attachment_id, new_media_url, attempts, last_message, created_at, updated_at`

// EnqueueMedia inserts a pending queue row and returns its id.
func (db *DB) EnqueueMedia(ctx context.Context, item *models.MediaQueueItem) (int64, error) {
	now := db.now()
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO media_queue (run_id, post_id, source_post_id, media_type, original_url, alt_text, status,
			new_attachment_id, new_media_url, attempts, last_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', 0, '', ?, ?)
		RETURNING id`,
		item.RunID, item.PostID, item.SourcePostID, string(item.MediaType), item.OriginalURL, item.AltText,
		string(models.MediaPending), now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue media for post %d: %w", item.PostID, err)
	}
	return id, nil
}

// HasQueuedMedia reports whether the run already has a row for this post,
// media type and URL. Redelivered batches use it to avoid duplicate rows.
func (db *DB) HasQueuedMedia(ctx context.Context, runID string, postID int64, mediaType models.MediaType, url string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM media_queue
		WHERE run_id = ? AND post_id = ? AND media_type = ? AND original_url = ?`,
		runID, postID, string(mediaType), url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check queued media: %w", err)
	}
	return n > 0, nil
}

// FetchPendingMedia returns pending rows of a run in insertion order.
func (db *DB) FetchPendingMedia(ctx context.Context, runID string, limit, offset int) ([]models.MediaQueueItem, error) {
	return db.queryMedia(ctx, `
		SELECT `+mediaQueueColumns+` FROM media_queue
		WHERE run_id = ? AND status = ?
		ORDER BY id
		LIMIT ? OFFSET ?`, runID, string(models.MediaPending), limit, offset)
}

// CompletedMediaForPost returns completed rows of a run for one post.
func (db *DB) CompletedMediaForPost(ctx context.Context, runID string, postID int64) ([]models.MediaQueueItem, error) {
	return db.queryMedia(ctx, `
		SELECT `+mediaQueueColumns+` FROM media_queue
		WHERE run_id = ? AND post_id = ? AND status = ?
		ORDER BY id`, runID, postID, string(models.MediaCompleted))
}

// GetMedia returns one queue row.
func (db *DB) GetMedia(ctx context.Context, id int64) (*models.MediaQueueItem, error) {
	items, err := db.queryMedia(ctx, `SELECT `+mediaQueueColumns+` FROM media_queue WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (db *DB) queryMedia(ctx context.Context, query string, args ...any) ([]models.MediaQueueItem, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media queue: %w", err)
	}
	defer closeQuietly(rows)

	var items []models.MediaQueueItem
	for rows.Next() {
		var (
			it                models.MediaQueueItem
			mediaType, status string
		)
		if err := rows.Scan(&it.ID, &it.RunID, &it.PostID, &it.SourcePostID, &mediaType, &it.OriginalURL,
			&it.AltText, &status, &it.NewAttachmentID, &it.NewMediaURL, &it.Attempts, &it.LastMessage,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan media queue row: %w", err)
		}
		it.MediaType = models.MediaType(mediaType)
		it.Status = models.MediaStatus(status)
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpdateMediaStatus sets the status of a row. attachmentID, newURL and
// message are written as given.
func (db *DB) UpdateMediaStatus(ctx context.Context, id int64, status models.MediaStatus, attachmentID int64, newURL, message string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE media_queue
		SET status = ?, new_attachment_id = ?, new_media_url = ?, last_message = ?, updated_at = ?
		WHERE id = ?`, string(status), attachmentID, newURL, message, db.now(), id)
	if err != nil {
		return fmt.Errorf("update media %d: %w", id, err)
	}
	return expectRow(res, id)
}

// IncrementMediaAttempts bumps the attempt counter and returns the new value.
func (db *DB) IncrementMediaAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := db.conn.QueryRowContext(ctx, `
		UPDATE media_queue SET attempts = attempts + 1, updated_at = ?
		WHERE id = ?
		RETURNING attempts`, db.now(), id).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts of media %d: %w", id, err)
	}
	return attempts, nil
}

// ResetProcessingMedia returns rows left in processing by an interrupted
// batch to pending.
func (db *DB) ResetProcessingMedia(ctx context.Context, runID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE media_queue SET status = ?, updated_at = ?
		WHERE run_id = ? AND status = ?`,
		string(models.MediaPending), db.now(), runID, string(models.MediaProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset processing media: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // informational
	return n, nil
}

// MediaCounts summarizes a run's queue by status.
func (db *DB) MediaCounts(ctx context.Context, runID string) (models.MediaCounts, error) {
	var counts models.MediaCounts
	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM media_queue WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return counts, fmt.Errorf("count media: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		counts.Total += n
		switch models.MediaStatus(status) {
		case models.MediaPending:
			counts.Pending = n
		case models.MediaProcessing:
			counts.Processing = n
		case models.MediaCompleted:
			counts.Completed = n
		case models.MediaFailed:
			counts.Failed = n
		case models.MediaSkipped:
			counts.Skipped = n
		}
	}
	return counts, rows.Err()
}

// PurgeMediaQueue deletes every row of a run.
func (db *DB) PurgeMediaQueue(ctx context.Context, runID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM media_queue WHERE run_id = ?`, runID)
	if err != nil {
		return 0, fmt.Errorf("purge media queue for run %s: %w", runID, err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // informational
	return n, nil
}

// PurgeMediaQueueOlderThan deletes rows last updated before cutoff.
func (db *DB) PurgeMediaQueueOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM media_queue WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge stale media queue rows: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // informational
	return n, nil
}
