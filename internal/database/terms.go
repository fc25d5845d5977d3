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

// Term is a destination taxonomy term.
type Term struct {
	ID          int64
	Name        string
	Slug        string
	Taxonomy    string
	Description string
	Parent      int64
}

// GetTerm returns the term with id and its taxonomy, or ErrNotFound.
func (db *DB) GetTerm(ctx context.Context, id int64) (*Term, error) {
	var t Term
	err := db.conn.QueryRowContext(ctx, `
		SELECT t.id, t.name, t.slug, COALESCE(tt.taxonomy, ''), COALESCE(tt.description, ''), COALESCE(tt.parent, 0)
		FROM terms t
		LEFT JOIN term_taxonomy tt ON tt.term_id = t.id
		WHERE t.id = ?`, id).Scan(&t.ID, &t.Name, &t.Slug, &t.Taxonomy, &t.Description, &t.Parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get term %d: %w", id, err)
	}
	return &t, nil
}

// ForceInsertTerm is the privileged insert that creates the term row with
// t.ID followed by its taxonomy row, in one transaction. Any partial failure
// rolls back both rows. The stored id is read back and must equal t.ID.
func (db *DB) ForceInsertTerm(ctx context.Context, t *Term) (int64, error) {
	if t.ID <= 0 {
		return 0, fmt.Errorf("force insert requires a positive id, got %d", t.ID)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin term insert: %w", err)
	}
	defer rollback(tx)

	if err := db.insertTermRows(ctx, tx, t, t.ID); err != nil {
		if isDuplicateKey(err) {
			return 0, fmt.Errorf("term %d: %w", t.ID, ErrIDTaken)
		}
		return 0, fmt.Errorf("force insert term %d: %w", t.ID, err)
	}

	var stored int64
	if err := tx.QueryRowContext(ctx,
		`SELECT term_id FROM term_taxonomy WHERE term_id = ? AND taxonomy = ?`, t.ID, t.Taxonomy).Scan(&stored); err != nil {
		return 0, fmt.Errorf("verify term %d: %w", t.ID, err)
	}
	if stored != t.ID {
		return 0, fmt.Errorf("term %d stored as %d: %w", t.ID, stored, ErrIDMismatch)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit term %d: %w", t.ID, err)
	}
	return stored, nil
}

// CreateTerm creates a term with the next free id. When a term with the same
// slug already exists in the taxonomy it returns *SlugExistsError carrying the
// existing id.
func (db *DB) CreateTerm(ctx context.Context, t *Term) (int64, error) {
	if existing, err := db.FindTermBySlug(ctx, t.Taxonomy, t.Slug); err == nil {
		return 0, &SlugExistsError{Taxonomy: t.Taxonomy, Slug: t.Slug, ID: existing}
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	db.idMu.Lock()
	defer db.idMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin term create: %w", err)
	}
	defer rollback(tx)

	next, err := db.nextID(ctx, tx, tableTerms)
	if err != nil {
		return 0, err
	}
	if err := db.insertTermRows(ctx, tx, t, next); err != nil {
		return 0, fmt.Errorf("create term %q: %w", t.Slug, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit term %q: %w", t.Slug, err)
	}
	return next, nil
}

func (db *DB) insertTermRows(ctx context.Context, q querier, t *Term, id int64) error {
	now := db.now()
	if _, err := q.ExecContext(ctx,
		`INSERT INTO terms (id, name, slug, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, t.Name, t.Slug, now, now); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO term_taxonomy (term_id, taxonomy, description, parent) VALUES (?, ?, ?, ?)`,
		id, t.Taxonomy, t.Description, t.Parent)
	return err
}

// FindTermBySlug returns the id of the term with slug in taxonomy.
func (db *DB) FindTermBySlug(ctx context.Context, taxonomy, slug string) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT t.id FROM terms t
		JOIN term_taxonomy tt ON tt.term_id = t.id
		WHERE tt.taxonomy = ? AND t.slug = ?
		ORDER BY t.id LIMIT 1`, taxonomy, slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find term %s/%s: %w", taxonomy, slug, err)
	}
	return id, nil
}

// UpdateTerm overwrites name, slug and description of term t.ID.
func (db *DB) UpdateTerm(ctx context.Context, t *Term) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE terms SET name = ?, slug = ?, updated_at = ? WHERE id = ?`, t.Name, t.Slug, db.now(), t.ID)
	if err != nil {
		return fmt.Errorf("update term %d: %w", t.ID, err)
	}
	if err := expectRow(res, t.ID); err != nil {
		return err
	}
	if _, err := db.conn.ExecContext(ctx,
		`UPDATE term_taxonomy SET description = ? WHERE term_id = ?`, t.Description, t.ID); err != nil {
		return fmt.Errorf("update term %d taxonomy row: %w", t.ID, err)
	}
	return nil
}

// SetTermMeta upserts one term metadata value.
func (db *DB) SetTermMeta(ctx context.Context, termID int64, key, value string) error {
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO term_meta (term_id, meta_key, meta_value) VALUES (?, ?, ?)
		ON CONFLICT (term_id, meta_key) DO UPDATE SET meta_value = excluded.meta_value`,
		termID, key, value); err != nil {
		return fmt.Errorf("set meta %s on term %d: %w", key, termID, err)
	}
	return nil
}

// GetTermMeta returns one term metadata value.
func (db *DB) GetTermMeta(ctx context.Context, termID int64, key string) (string, bool, error) {
	var v sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT meta_value FROM term_meta WHERE term_id = ? AND meta_key = ?`, termID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s on term %d: %w", key, termID, err)
	}
	return v.String, true, nil
}

// CountTerms returns the number of terms in taxonomy.
func (db *DB) CountTerms(ctx context.Context, taxonomy string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM term_taxonomy WHERE taxonomy = ?`, taxonomy).Scan(&n); err != nil {
		return 0, fmt.Errorf("count terms: %w", err)
	}
	return n, nil
}
