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
)

// Attachment metadata keys.
const (
	MetaSourceURL    = "_source_url"
	MetaAttachedFile = "_attached_file"
	MetaMimeType     = "_mime_type"
	MetaAltText      = "_alt_text"
)

// Attachment describes stored media to be recorded as an attachment item.
type Attachment struct {
	ParentID  int64
	Title     string
	URL       string
	File      string
	MimeType  string
	AltText   string
	SourceURL string
}

// InsertAttachment creates the attachment item and its metadata in one
// transaction and returns the new id.
func (db *DB) InsertAttachment(ctx context.Context, a *Attachment) (int64, error) {
	db.idMu.Lock()
	defer db.idMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attachment insert: %w", err)
	}
	defer rollback(tx)

	next, err := db.nextID(ctx, tx, tableItems)
	if err != nil {
		return 0, err
	}
	id, err := db.insertItem(ctx, tx, &Item{
		Type:     ItemTypeAttachment,
		Title:    a.Title,
		Slug:     a.Title,
		Status:   "inherit",
		ParentID: a.ParentID,
		GUID:     a.URL,
	}, next)
	if err != nil {
		return 0, fmt.Errorf("insert attachment: %w", err)
	}

	meta := map[string]string{
		MetaAttachedFile: a.File,
		MetaMimeType:     a.MimeType,
	}
	if a.SourceURL != "" {
		meta[MetaSourceURL] = a.SourceURL
	}
	if a.AltText != "" {
		meta[MetaAltText] = a.AltText
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO content_meta (item_id, meta_key, meta_value) VALUES (?, ?, ?)`, id, k, v); err != nil {
			return 0, fmt.Errorf("attachment meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attachment: %w", err)
	}
	return id, nil
}

// FindItemBySourceURL returns the item carrying the source-url marker for
// url, whatever its current type. Callers check for stale markers.
func (db *DB) FindItemBySourceURL(ctx context.Context, url string) (int64, bool, error) {
	return db.findOne(ctx, `
		SELECT item_id FROM content_meta
		WHERE meta_key = ? AND meta_value = ?
		ORDER BY item_id LIMIT 1`, MetaSourceURL, url)
}

// FindAttachmentByURL resolves a destination media URL to its attachment id.
func (db *DB) FindAttachmentByURL(ctx context.Context, url string) (int64, bool, error) {
	return db.findOne(ctx, `
		SELECT id FROM content_items
		WHERE type = ? AND guid = ?
		ORDER BY id LIMIT 1`, ItemTypeAttachment, url)
}

// FindAttachmentByFilename returns the first attachment whose source URL
// contains filename.
func (db *DB) FindAttachmentByFilename(ctx context.Context, filename string) (int64, bool, error) {
	return db.findOne(ctx, `
		SELECT m.item_id FROM content_meta m
		JOIN content_items i ON i.id = m.item_id
		WHERE m.meta_key = ? AND i.type = ? AND contains(m.meta_value, ?)
		ORDER BY m.item_id LIMIT 1`, MetaSourceURL, ItemTypeAttachment, filename)
}

// FindAttachmentByTitle returns the first attachment titled title.
func (db *DB) FindAttachmentByTitle(ctx context.Context, title string) (int64, bool, error) {
	return db.findOne(ctx, `
		SELECT id FROM content_items
		WHERE type = ? AND title = ?
		ORDER BY id LIMIT 1`, ItemTypeAttachment, title)
}

// AttachmentURL returns the public URL of an attachment.
func (db *DB) AttachmentURL(ctx context.Context, id int64) (string, error) {
	var url string
	err := db.conn.QueryRowContext(ctx,
		`SELECT guid FROM content_items WHERE id = ? AND type = ?`, id, ItemTypeAttachment).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("attachment %d url: %w", id, err)
	}
	return url, nil
}

func (db *DB) findOne(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup: %w", err)
	}
	return id, true, nil
}
