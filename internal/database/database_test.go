// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/models"
)

// testDBSemaphore serializes DuckDB tests; concurrent CGO connections from
// parallel tests can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

// setupTestDB creates an in-memory database held for the whole test.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2, SkipIndexes: true})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	return db
}

func TestForceInsertItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := db.ForceInsertItem(ctx, &Item{ID: 42, Type: "post", Title: "Hello", Slug: "hello", Body: "<p>x</p>", Status: "publish", PublishedAt: &published})
	if err != nil {
		t.Fatalf("ForceInsertItem: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}

	got, err := db.GetItem(ctx, 42)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Title != "Hello" || got.Type != "post" {
		t.Errorf("unexpected item: %+v", got)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("published_at = %v, want %v", got.PublishedAt, published)
	}

	_, err = db.ForceInsertItem(ctx, &Item{ID: 42, Type: "page", Title: "Other", Slug: "other"})
	if !errors.Is(err, ErrIDTaken) {
		t.Errorf("expected ErrIDTaken for occupied id, got %v", err)
	}

	if _, err := db.GetItem(ctx, 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertItemAllocatesAboveForcedIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ForceInsertItem(ctx, &Item{ID: 100, Type: "post", Title: "A", Slug: "a"}); err != nil {
		t.Fatalf("ForceInsertItem: %v", err)
	}
	id, err := db.InsertItem(ctx, &Item{Type: "post", Title: "B", Slug: "b"})
	if err != nil {
		t.Fatalf("InsertItem: %v", err)
	}
	if id != 101 {
		t.Errorf("expected next id 101, got %d", id)
	}
}

func TestUpdateItemAndMeta(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ForceInsertItem(ctx, &Item{ID: 5, Type: "post", Title: "Old", Slug: "old"}); err != nil {
		t.Fatalf("ForceInsertItem: %v", err)
	}
	if err := db.UpdateItem(ctx, &Item{ID: 5, Type: "post", Title: "New", Slug: "new"}); err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if err := db.UpdateItem(ctx, &Item{ID: 6, Type: "post", Title: "Missing", Slug: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing item, got %v", err)
	}

	exists, err := db.ItemExistsByTitleType(ctx, "New", "post")
	if err != nil || !exists {
		t.Errorf("ItemExistsByTitleType(New, post) = %v, %v", exists, err)
	}
	exists, err = db.ItemExistsByTitleType(ctx, "New", "page")
	if err != nil || exists {
		t.Errorf("ItemExistsByTitleType(New, page) = %v, %v", exists, err)
	}

	for _, v := range []string{"first", "second"} {
		if err := db.SetItemMeta(ctx, 5, "_original_post_id", v); err != nil {
			t.Fatalf("SetItemMeta: %v", err)
		}
	}
	v, ok, err := db.GetItemMeta(ctx, 5, "_original_post_id")
	if err != nil || !ok || v != "second" {
		t.Errorf("GetItemMeta = (%q, %v, %v), want second", v, ok, err)
	}
	if err := db.DeleteItemMeta(ctx, 5, "_original_post_id"); err != nil {
		t.Fatalf("DeleteItemMeta: %v", err)
	}
	if _, ok, _ := db.GetItemMeta(ctx, 5, "_original_post_id"); ok {
		t.Error("meta should be gone after delete")
	}

	if err := db.SetItemTerms(ctx, 5, models.TaxonomyCategory, []int64{3, 1}); err != nil {
		t.Fatalf("SetItemTerms: %v", err)
	}
	if err := db.SetItemTerms(ctx, 5, models.TaxonomyCategory, []int64{2}); err != nil {
		t.Fatalf("SetItemTerms replace: %v", err)
	}
	terms, err := db.ItemTerms(ctx, 5, models.TaxonomyCategory)
	if err != nil {
		t.Fatalf("ItemTerms: %v", err)
	}
	if len(terms) != 1 || terms[0] != 2 {
		t.Errorf("expected replaced term set [2], got %v", terms)
	}

	db.FlushStatementCache()
	if _, err := db.GetItem(ctx, 5); err != nil {
		t.Errorf("GetItem after cache flush: %v", err)
	}
}

func TestForceInsertTerm(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.ForceInsertTerm(ctx, &Term{ID: 12, Name: "News", Slug: "news", Taxonomy: models.TaxonomyCategory})
	if err != nil {
		t.Fatalf("ForceInsertTerm: %v", err)
	}
	if id != 12 {
		t.Fatalf("expected term id 12, got %d", id)
	}

	got, err := db.GetTerm(ctx, 12)
	if err != nil {
		t.Fatalf("GetTerm: %v", err)
	}
	if got.Taxonomy != models.TaxonomyCategory || got.Slug != "news" {
		t.Errorf("unexpected term: %+v", got)
	}

	// The second insert fails on the terms row and must leave no taxonomy row behind.
	_, err = db.ForceInsertTerm(ctx, &Term{ID: 12, Name: "Go", Slug: "go", Taxonomy: models.TaxonomyTag})
	if !errors.Is(err, ErrIDTaken) {
		t.Fatalf("expected ErrIDTaken, got %v", err)
	}
	n, err := db.CountTerms(ctx, models.TaxonomyTag)
	if err != nil {
		t.Fatalf("CountTerms: %v", err)
	}
	if n != 0 {
		t.Errorf("rolled back insert left %d tag rows", n)
	}
}

func TestCreateTermSlugCollision(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.ForceInsertTerm(ctx, &Term{ID: 3, Name: "Go", Slug: "go", Taxonomy: models.TaxonomyTag}); err != nil {
		t.Fatalf("ForceInsertTerm: %v", err)
	}

	_, err := db.CreateTerm(ctx, &Term{Name: "Go", Slug: "go", Taxonomy: models.TaxonomyTag})
	var slugErr *SlugExistsError
	if !errors.As(err, &slugErr) {
		t.Fatalf("expected SlugExistsError, got %v", err)
	}
	if slugErr.ID != 3 {
		t.Errorf("SlugExistsError.ID = %d, want 3", slugErr.ID)
	}

	id, err := db.CreateTerm(ctx, &Term{Name: "Go", Slug: "go", Taxonomy: models.TaxonomyCategory})
	if err != nil {
		t.Fatalf("CreateTerm in another taxonomy: %v", err)
	}
	if id != 4 {
		t.Errorf("expected allocated id 4, got %d", id)
	}

	if err := db.UpdateTerm(ctx, &Term{ID: 4, Name: "Golang", Slug: "golang", Description: "lang"}); err != nil {
		t.Fatalf("UpdateTerm: %v", err)
	}
	got, _ := db.GetTerm(ctx, 4)
	if got == nil || got.Name != "Golang" || got.Description != "lang" {
		t.Errorf("unexpected updated term: %+v", got)
	}

	if err := db.SetTermMeta(ctx, 4, "rank_math_title", "T"); err != nil {
		t.Fatalf("SetTermMeta: %v", err)
	}
	if v, ok, _ := db.GetTermMeta(ctx, 4, "rank_math_title"); !ok || v != "T" {
		t.Errorf("GetTermMeta = %q, %v", v, ok)
	}
}

func TestComments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := db.InsertComment(ctx, &CommentRow{ItemID: 1, Author: "Ann", AuthorEmail: "ann@example.com",
		Content: "Nice!", ContentNormalized: "nice!", Approved: true, CommentedAt: at})
	if err != nil {
		t.Fatalf("InsertComment: %v", err)
	}

	tests := []struct {
		name   string
		email  string
		at     time.Time
		wantOK bool
	}{
		{"same author inside window", "ann@example.com", at.Add(30 * time.Second), true},
		{"same author outside window", "ann@example.com", at.Add(5 * time.Minute), false},
		{"different author", "bob@example.com", at, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dup, ok, err := db.FindDuplicateComment(ctx, 1, "nice!", tt.email, tt.at, time.Minute)
			if err != nil {
				t.Fatalf("FindDuplicateComment: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("found = %v, want %v", ok, tt.wantOK)
			}
			if ok && dup != id {
				t.Errorf("duplicate id = %d, want %d", dup, id)
			}
		})
	}
}

func TestAttachmentsLookup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id, err := db.InsertAttachment(ctx, &Attachment{
		ParentID:  9,
		Title:     "photo",
		URL:       "https://dest.example/media/2024/photo.jpg",
		File:      "2024/photo.jpg",
		MimeType:  "image/jpeg",
		AltText:   "A photo",
		SourceURL: "https://src.example/wp-content/uploads/photo.jpg",
	})
	if err != nil {
		t.Fatalf("InsertAttachment: %v", err)
	}

	lookups := []struct {
		name string
		fn   func() (int64, bool, error)
	}{
		{"by source url", func() (int64, bool, error) {
			return db.FindItemBySourceURL(ctx, "https://src.example/wp-content/uploads/photo.jpg")
		}},
		{"by destination url", func() (int64, bool, error) {
			return db.FindAttachmentByURL(ctx, "https://dest.example/media/2024/photo.jpg")
		}},
		{"by filename", func() (int64, bool, error) { return db.FindAttachmentByFilename(ctx, "photo.jpg") }},
		{"by title", func() (int64, bool, error) { return db.FindAttachmentByTitle(ctx, "photo") }},
	}
	for _, l := range lookups {
		t.Run(l.name, func(t *testing.T) {
			got, ok, err := l.fn()
			if err != nil || !ok || got != id {
				t.Errorf("lookup = (%d, %v, %v), want %d", got, ok, err, id)
			}
		})
	}

	url, err := db.AttachmentURL(ctx, id)
	if err != nil || url != "https://dest.example/media/2024/photo.jpg" {
		t.Errorf("AttachmentURL = %q, %v", url, err)
	}
	if alt, ok, _ := db.GetItemMeta(ctx, id, MetaAltText); !ok || alt != "A photo" {
		t.Errorf("alt text meta = %q, %v", alt, ok)
	}
	if _, ok, _ := db.FindAttachmentByFilename(ctx, "missing.png"); ok {
		t.Error("unexpected match for missing filename")
	}
}

func TestMediaQueueLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []int64
	for i, url := range []string{"http://src/a.png", "http://src/b.png", "http://src/c.png"} {
		id, err := db.EnqueueMedia(ctx, &models.MediaQueueItem{
			RunID: "run-1", PostID: 10, SourcePostID: 10, MediaType: models.MediaContent, OriginalURL: url,
		})
		if err != nil {
			t.Fatalf("EnqueueMedia %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	if _, err := db.EnqueueMedia(ctx, &models.MediaQueueItem{RunID: "run-2", PostID: 1, MediaType: models.MediaFeatured, OriginalURL: "http://src/z.png"}); err != nil {
		t.Fatalf("EnqueueMedia other run: %v", err)
	}

	queued, err := db.HasQueuedMedia(ctx, "run-1", 10, models.MediaContent, "http://src/b.png")
	if err != nil || !queued {
		t.Errorf("HasQueuedMedia = %v, %v", queued, err)
	}

	batch, err := db.FetchPendingMedia(ctx, "run-1", 2, 0)
	if err != nil {
		t.Fatalf("FetchPendingMedia: %v", err)
	}
	if len(batch) != 2 || batch[0].ID != ids[0] || batch[1].ID != ids[1] {
		t.Fatalf("expected first two rows in insertion order, got %+v", batch)
	}

	attempts, err := db.IncrementMediaAttempts(ctx, ids[0])
	if err != nil || attempts != 1 {
		t.Errorf("IncrementMediaAttempts = %d, %v", attempts, err)
	}
	if err := db.UpdateMediaStatus(ctx, ids[0], models.MediaCompleted, 77, "https://dest/a.png", "ok"); err != nil {
		t.Fatalf("UpdateMediaStatus: %v", err)
	}
	if err := db.UpdateMediaStatus(ctx, ids[1], models.MediaFailed, 0, "", "download failed"); err != nil {
		t.Fatalf("UpdateMediaStatus: %v", err)
	}
	if err := db.UpdateMediaStatus(ctx, ids[2], models.MediaProcessing, 0, "", ""); err != nil {
		t.Fatalf("UpdateMediaStatus: %v", err)
	}

	counts, err := db.MediaCounts(ctx, "run-1")
	if err != nil {
		t.Fatalf("MediaCounts: %v", err)
	}
	want := models.MediaCounts{Total: 3, Completed: 1, Failed: 1, Processing: 1}
	if counts != want {
		t.Errorf("MediaCounts = %+v, want %+v", counts, want)
	}

	if n, err := db.ResetProcessingMedia(ctx, "run-1"); err != nil || n != 1 {
		t.Errorf("ResetProcessingMedia = %d, %v", n, err)
	}

	done, err := db.CompletedMediaForPost(ctx, "run-1", 10)
	if err != nil || len(done) != 1 || done[0].NewMediaURL != "https://dest/a.png" || done[0].NewAttachmentID != 77 {
		t.Errorf("CompletedMediaForPost = %+v, %v", done, err)
	}

	if n, err := db.PurgeMediaQueue(ctx, "run-1"); err != nil || n != 3 {
		t.Errorf("PurgeMediaQueue = %d, %v", n, err)
	}
	other, _ := db.MediaCounts(ctx, "run-2")
	if other.Total != 1 {
		t.Errorf("purge must not touch other runs, run-2 total = %d", other.Total)
	}

	if n, err := db.PurgeMediaQueueOlderThan(ctx, time.Now().Add(time.Hour)); err != nil || n != 1 {
		t.Errorf("PurgeMediaQueueOlderThan = %d, %v", n, err)
	}
}
