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

// Item is a destination content item. Attachments are items of type
// ItemTypeAttachment.
type Item struct {
	ID          int64
	Type        string
	Title       string
	Slug        string
	Body        string
	Excerpt     string
	Status      string
	Author      string
	ParentID    int64
	MenuOrder   int
	GUID        string
	PublishedAt *time.Time
	ModifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ItemTypeAttachment is the item type used for imported media.
const ItemTypeAttachment = "attachment"

const itemColumns = `id, type, title, slug, body, excerpt, status, author, parent_id, menu_order, guid,
	published_at, modified_at, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var (
		it                  Item
		published, modified sql.NullTime
	)
	err := row.Scan(&it.ID, &it.Type, &it.Title, &it.Slug, &it.Body, &it.Excerpt, &it.Status, &it.Author,
		&it.ParentID, &it.MenuOrder, &it.GUID, &published, &modified, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.PublishedAt = timePtr(published)
	it.ModifiedAt = timePtr(modified)
	return &it, nil
}

// GetItem returns the item with id, or ErrNotFound.
func (db *DB) GetItem(ctx context.Context, id int64) (*Item, error) {
	stmt, err := db.prepared(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	it, err := scanItem(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, nil
}

// ForceInsertItem inserts it with it.ID. It returns ErrIDTaken when the id is
// occupied and ErrIDMismatch if the stored id differs from the requested one.
func (db *DB) ForceInsertItem(ctx context.Context, it *Item) (int64, error) {
	if it.ID <= 0 {
		return 0, fmt.Errorf("force insert requires a positive id, got %d", it.ID)
	}
	id, err := db.insertItem(ctx, db.conn, it, it.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, fmt.Errorf("item %d: %w", it.ID, ErrIDTaken)
		}
		return 0, fmt.Errorf("force insert item %d: %w", it.ID, err)
	}
	if id != it.ID {
		return id, fmt.Errorf("item %d stored as %d: %w", it.ID, id, ErrIDMismatch)
	}
	return id, nil
}

// InsertItem inserts it with the next free id and returns that id.
func (db *DB) InsertItem(ctx context.Context, it *Item) (int64, error) {
	db.idMu.Lock()
	defer db.idMu.Unlock()

	next, err := db.nextID(ctx, db.conn, tableItems)
	if err != nil {
		return 0, err
	}
	id, err := db.insertItem(ctx, db.conn, it, next)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	return id, nil
}

func (db *DB) insertItem(ctx context.Context, q querier, it *Item, id int64) (int64, error) {
	now := db.now()
	var stored int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO content_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		id, it.Type, it.Title, it.Slug, it.Body, it.Excerpt, it.Status, it.Author,
		it.ParentID, it.MenuOrder, it.GUID, nullTime(it.PublishedAt), nullTime(it.ModifiedAt), now, now,
	).Scan(&stored)
	return stored, err
}

// UpdateItem overwrites the mutable columns of item it.ID.
func (db *DB) UpdateItem(ctx context.Context, it *Item) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE content_items
		SET type = ?, title = ?, slug = ?, body = ?, excerpt = ?, status = ?, author = ?,
			parent_id = ?, menu_order = ?, published_at = ?, modified_at = ?, updated_at = ?
		WHERE id = ?`,
		it.Type, it.Title, it.Slug, it.Body, it.Excerpt, it.Status, it.Author,
		it.ParentID, it.MenuOrder, nullTime(it.PublishedAt), nullTime(it.ModifiedAt), db.now(), it.ID)
	if err != nil {
		return fmt.Errorf("update item %d: %w", it.ID, err)
	}
	return expectRow(res, it.ID)
}

// UpdateItemBody replaces the body of item id.
func (db *DB) UpdateItemBody(ctx context.Context, id int64, body string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE content_items SET body = ?, updated_at = ? WHERE id = ?`, body, db.now(), id)
	if err != nil {
		return fmt.Errorf("update body of item %d: %w", id, err)
	}
	return expectRow(res, id)
}

// ItemExistsByTitleType reports whether an item with exactly this title and
// type exists.
func (db *DB) ItemExistsByTitleType(ctx context.Context, title, itemType string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE title = ? AND type = ?`, title, itemType).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check item existence: %w", err)
	}
	return n > 0, nil
}

// CountItems returns the number of items of itemType, or of all types when empty.
func (db *DB) CountItems(ctx context.Context, itemType string) (int, error) {
	var n int
	var err error
	if itemType == "" {
		err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items`).Scan(&n)
	} else {
		err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_items WHERE type = ?`, itemType).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// SetItemMeta upserts one metadata value.
func (db *DB) SetItemMeta(ctx context.Context, itemID int64, key, value string) error {
	stmt, err := db.prepared(ctx, `
		INSERT INTO content_meta (item_id, meta_key, meta_value) VALUES (?, ?, ?)
		ON CONFLICT (item_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, itemID, key, value); err != nil {
		return fmt.Errorf("set meta %s on item %d: %w", key, itemID, err)
	}
	return nil
}

// GetItemMeta returns one metadata value.
func (db *DB) GetItemMeta(ctx context.Context, itemID int64, key string) (string, bool, error) {
	var v sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT meta_value FROM content_meta WHERE item_id = ? AND meta_key = ?`, itemID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s on item %d: %w", key, itemID, err)
	}
	return v.String, true, nil
}

// DeleteItemMeta removes one metadata value.
func (db *DB) DeleteItemMeta(ctx context.Context, itemID int64, key string) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM content_meta WHERE item_id = ? AND meta_key = ?`, itemID, key); err != nil {
		return fmt.Errorf("delete meta %s on item %d: %w", key, itemID, err)
	}
	return nil
}

// SetItemTerms replaces the item's term set for one taxonomy.
func (db *DB) SetItemTerms(ctx context.Context, itemID int64, taxonomy string, termIDs []int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM term_relationships WHERE item_id = ? AND taxonomy = ?`, itemID, taxonomy); err != nil {
		return fmt.Errorf("clear %s terms of item %d: %w", taxonomy, itemID, err)
	}
	for _, termID := range termIDs {
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO term_relationships (item_id, term_id, taxonomy) VALUES (?, ?, ?)`,
			itemID, termID, taxonomy); err != nil {
			return fmt.Errorf("assign term %d to item %d: %w", termID, itemID, err)
		}
	}
	return nil
}

// ItemTerms lists the term ids assigned to an item in a taxonomy.
func (db *DB) ItemTerms(ctx context.Context, itemID int64, taxonomy string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT term_id FROM term_relationships WHERE item_id = ? AND taxonomy = ? ORDER BY term_id`, itemID, taxonomy)
	if err != nil {
		return nil, fmt.Errorf("list terms of item %d: %w", itemID, err)
	}
	defer closeQuietly(rows)

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil //nolint:nilerr // driver does not report affected rows
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}
