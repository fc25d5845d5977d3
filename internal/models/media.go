// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package models

import "time"

// MediaType distinguishes featured images from images embedded in a body.
type MediaType string

const (
	MediaFeatured MediaType = "featured"
	MediaContent  MediaType = "content"
)

// MediaStatus is the lifecycle state of a queue row.
type MediaStatus string

const (
	MediaPending    MediaStatus = "pending"
	MediaProcessing MediaStatus = "processing"
	MediaCompleted  MediaStatus = "completed"
	MediaFailed     MediaStatus = "failed"
	MediaSkipped    MediaStatus = "skipped"
)

// MediaQueueItem is one durable unit of media work scoped to a run.
type MediaQueueItem struct {
	ID              int64       `json:"id"`
	RunID           string      `json:"run_id"`
	PostID          int64       `json:"post_id"`
	SourcePostID    int64       `json:"source_post_id"`
	MediaType       MediaType   `json:"media_type"`
	OriginalURL     string      `json:"original_url"`
	AltText         string      `json:"alt_text,omitempty"`
	Status          MediaStatus `json:"status"`
	NewAttachmentID int64       `json:"new_attachment_id,omitempty"`
	NewMediaURL     string      `json:"new_media_url,omitempty"`
	Attempts        int         `json:"attempts"`
	LastMessage     string      `json:"last_message,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// MediaCounts summarizes a run's queue.
type MediaCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}
