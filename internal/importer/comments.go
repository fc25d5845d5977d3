// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
)

// Policy selects how comments are de-duplicated.
type Policy string

const (
	// PolicyDedup skips near-identical comments by the same author.
	PolicyDedup Policy = "dedup"
	// PolicyAlways inserts every comment.
	PolicyAlways Policy = "always"
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyDedup, "":
		return PolicyDedup, nil
	case PolicyAlways:
		return PolicyAlways, nil
	default:
		return "", fmt.Errorf("unknown comment policy %q", s)
	}
}

// CommentImporter inserts source comments under a destination item.
type CommentImporter struct {
	store  CommentStore
	policy Policy
	window time.Duration
	now    func() time.Time
}

// NewCommentImporter creates a comment importer.
func NewCommentImporter(store CommentStore, policy Policy, window time.Duration) *CommentImporter {
	if window <= 0 {
		window = time.Minute
	}
	return &CommentImporter{store: store, policy: policy, window: window, now: time.Now}
}

// ImportComments imports comments for itemID. Parents are remapped within
// the item; a comment whose parent is unknown becomes top-level.
func (ci *CommentImporter) ImportComments(ctx context.Context, itemID int64, comments []models.Comment) models.Totals {
	var totals models.Totals
	ids := make(map[int64]int64, len(comments))
	logger := logging.Ctx(ctx).With().Int64("item_id", itemID).Logger()

	for i := range comments {
		c := &comments[i]
		totals.Total++

		normalized := NormalizeComment(c.Content)
		if normalized == "" {
			totals.Skipped++
			continue
		}

		at := ci.now().UTC()
		if t := ParseDate(c.Date); t != nil {
			at = *t
		}

		if ci.policy == PolicyDedup {
			dup, found, err := ci.store.FindDuplicateComment(ctx, itemID, normalized, c.AuthorEmail, at, ci.window)
			if err != nil {
				logger.Warn().Err(err).Int64("comment_id", c.ID).Msg("Duplicate check failed")
				totals.Failed++
				continue
			}
			if found {
				if c.ID > 0 {
					ids[c.ID] = dup
				}
				totals.Skipped++
				continue
			}
		}

		row := &database.CommentRow{
			ItemID:            itemID,
			ParentID:          ids[c.ParentID],
			SourceID:          c.ID,
			Author:            c.Author,
			AuthorEmail:       c.AuthorEmail,
			AuthorURL:         c.AuthorURL,
			Content:           c.Content,
			ContentNormalized: normalized,
			Approved:          c.Approved,
			CommentedAt:       at,
		}
		id, err := ci.store.InsertComment(ctx, row)
		if err != nil {
			logger.Warn().Err(err).Int64("comment_id", c.ID).Msg("Comment not imported")
			totals.Failed++
			continue
		}
		if c.ID > 0 {
			ids[c.ID] = id
		}
		totals.New++
	}

	metrics.RecordItems("comment", "new", totals.New)
	metrics.RecordItems("comment", "skipped", totals.Skipped)
	metrics.RecordItems("comment", "failed", totals.Failed)
	return totals
}

// NormalizeComment lowercases text and collapses whitespace.
func NormalizeComment(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
