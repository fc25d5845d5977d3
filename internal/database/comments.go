// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CommentRow is a destination comment.
type CommentRow struct {
	ID                int64
	ItemID            int64
	ParentID          int64
	SourceID          int64
	Author            string
	AuthorEmail       string
	AuthorURL         string
	Content           string
	ContentNormalized string
	Approved          bool
	CommentedAt       time.Time
}

// InsertComment stores c and returns its new id.
func (db *DB) InsertComment(ctx context.Context, c *CommentRow) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO comments (item_id, parent_id, source_id, author, author_email, author_url,
			content, content_normalized, approved, commented_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		c.ItemID, c.ParentID, c.SourceID, c.Author, c.AuthorEmail, c.AuthorURL,
		c.Content, c.ContentNormalized, c.Approved, c.CommentedAt.UTC(), db.now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert comment on item %d: %w", c.ItemID, err)
	}
	return id, nil
}

// FindDuplicateComment looks for a comment on itemID with the same normalized
// content and author email dated within window of at.
func (db *DB) FindDuplicateComment(ctx context.Context, itemID int64, normalized, email string, at time.Time, window time.Duration) (int64, bool, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT id FROM comments
		WHERE item_id = ? AND content_normalized = ? AND author_email = ?
			AND commented_at BETWEEN ? AND ?
		ORDER BY id LIMIT 1`,
		itemID, normalized, email, at.Add(-window).UTC(), at.Add(window).UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find duplicate comment: %w", err)
	}
	return id, true, nil
}

// CountComments returns the number of comments on an item.
func (db *DB) CountComments(ctx context.Context, itemID int64) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE item_id = ?`, itemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}

// GetComment returns one comment.
func (db *DB) GetComment(ctx context.Context, id int64) (*CommentRow, error) {
	var c CommentRow
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, item_id, parent_id, source_id, author, author_email, author_url,
			content, content_normalized, approved, commented_at
		FROM comments WHERE id = ?`, id).Scan(
		&c.ID, &c.ItemID, &c.ParentID, &c.SourceID, &c.Author, &c.AuthorEmail, &c.AuthorURL,
		&c.Content, &c.ContentNormalized, &c.Approved, &c.CommentedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment %d: %w", id, err)
	}
	return &c, nil
}
