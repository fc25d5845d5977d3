// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package importer

import (
	"context"
	"time"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/models"
)

// TermStore is the destination store surface used for terms.
type TermStore interface {
	GetTerm(ctx context.Context, id int64) (*database.Term, error)
	ForceInsertTerm(ctx context.Context, t *database.Term) (int64, error)
	CreateTerm(ctx context.Context, t *database.Term) (int64, error)
	UpdateTerm(ctx context.Context, t *database.Term) error
	SetTermMeta(ctx context.Context, termID int64, key, value string) error
}

// CommentStore is the destination store surface used for comments.
type CommentStore interface {
	InsertComment(ctx context.Context, c *database.CommentRow) (int64, error)
	FindDuplicateComment(ctx context.Context, itemID int64, normalized, email string, at time.Time, window time.Duration) (int64, bool, error)
}

// ContentStore is the destination store surface used for content items.
type ContentStore interface {
	CommentStore
	GetItem(ctx context.Context, id int64) (*database.Item, error)
	ForceInsertItem(ctx context.Context, it *database.Item) (int64, error)
	InsertItem(ctx context.Context, it *database.Item) (int64, error)
	UpdateItem(ctx context.Context, it *database.Item) error
	SetItemMeta(ctx context.Context, itemID int64, key, value string) error
	SetItemTerms(ctx context.Context, itemID int64, taxonomy string, termIDs []int64) error
	EnqueueMedia(ctx context.Context, item *models.MediaQueueItem) (int64, error)
	HasQueuedMedia(ctx context.Context, runID string, postID int64, mediaType models.MediaType, url string) (bool, error)
}

var (
	_ TermStore    = (*database.DB)(nil)
	_ ContentStore = (*database.DB)(nil)
)
