// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// Table names.
const (
	tableItems         = "content_items"
	tableItemMeta      = "content_meta"
	tableTerms         = "terms"
	tableTermTaxonomy  = "term_taxonomy"
	tableTermMeta      = "term_meta"
	tableRelationships = "term_relationships"
	tableComments      = "comments"
	tableMediaQueue    = "media_queue"
)

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// tableCreationQueries returns the schema. Timestamps are always written by
// the application; no column relies on CURRENT_TIMESTAMP defaults.
func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS comments_id_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS media_queue_id_seq START 1`,

		`CREATE TABLE IF NOT EXISTS content_items (
			id BIGINT PRIMARY KEY,
			type TEXT NOT NULL,
			title TEXT NOT NULL,
			slug TEXT NOT NULL,
			body TEXT NOT NULL,
			excerpt TEXT NOT NULL,
			status TEXT NOT NULL,
			author TEXT NOT NULL,
			parent_id BIGINT NOT NULL,
			menu_order INTEGER NOT NULL,
			guid TEXT NOT NULL,
			published_at TIMESTAMP,
			modified_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS content_meta (
			item_id BIGINT NOT NULL,
			meta_key TEXT NOT NULL,
			meta_value TEXT,
			PRIMARY KEY (item_id, meta_key)
		)`,

		`CREATE TABLE IF NOT EXISTS terms (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		// One taxonomy per term id.
		`CREATE TABLE IF NOT EXISTS term_taxonomy (
			term_id BIGINT PRIMARY KEY,
			taxonomy TEXT NOT NULL,
			description TEXT NOT NULL,
			parent BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS term_meta (
			term_id BIGINT NOT NULL,
			meta_key TEXT NOT NULL,
			meta_value TEXT,
			PRIMARY KEY (term_id, meta_key)
		)`,

		`CREATE TABLE IF NOT EXISTS term_relationships (
			item_id BIGINT NOT NULL,
			term_id BIGINT NOT NULL,
			taxonomy TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id BIGINT PRIMARY KEY DEFAULT nextval('comments_id_seq'),
			item_id BIGINT NOT NULL,
			parent_id BIGINT NOT NULL,
			source_id BIGINT NOT NULL,
			author TEXT NOT NULL,
			author_email TEXT NOT NULL,
			author_url TEXT NOT NULL,
			content TEXT NOT NULL,
			content_normalized TEXT NOT NULL,
			approved BOOLEAN NOT NULL,
			commented_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS media_queue (
			id BIGINT PRIMARY KEY DEFAULT nextval('media_queue_id_seq'),
			run_id TEXT NOT NULL,
			post_id BIGINT NOT NULL,
			source_post_id BIGINT NOT NULL,
			media_type TEXT NOT NULL,
			original_url TEXT NOT NULL,
			alt_text TEXT NOT NULL,
			status TEXT NOT NULL,
			new_attachment_id BIGINT NOT NULL,
			new_media_url TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_message TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
}

func (db *DB) createIndexes() error {
	// Tests skip index creation for fast setup.
	if db.cfg != nil && db.cfg.SkipIndexes {
		return nil
	}

	ctx, cancel := schemaContext()
	defer cancel()
	for _, query := range indexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", query, err)
		}
	}
	return nil
}

func indexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_media_queue_run ON media_queue(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_media_queue_status ON media_queue(status)`,
		`CREATE INDEX IF NOT EXISTS idx_media_queue_post ON media_queue(post_id)`,
		`CREATE INDEX IF NOT EXISTS idx_media_queue_url ON media_queue(original_url)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_item ON term_relationships(item_id, taxonomy)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_item ON comments(item_id)`,
	}
}
