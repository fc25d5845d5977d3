// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package contentupdate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/mediaqueue"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/progress"
	"github.com/tomtom215/pressimport/internal/statestore"
)

var testDBSemaphore = make(chan struct{}, 1)

type fixture struct {
	db      *database.DB
	tracker *progress.Tracker
	queue   *mediaqueue.Manager
	updater *Updater
}

func setup(t *testing.T) *fixture {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2, SkipIndexes: true})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := statestore.OpenInMemory()
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tracker := progress.NewTracker(store)
	queue := mediaqueue.NewManager(db, nil, 0)
	return &fixture{db: db, tracker: tracker, queue: queue, updater: NewUpdater(db, tracker, queue)}
}

func (f *fixture) attachment(t *testing.T, a *database.Attachment) {
	t.Helper()
	if _, err := f.db.InsertAttachment(context.Background(), a); err != nil {
		t.Fatalf("InsertAttachment: %v", err)
	}
}

func TestLookupOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.attachment(t, &database.Attachment{Title: "a", URL: "https://new.example.com/a.jpg", SourceURL: "https://old.example.com/a.jpg"})
	f.attachment(t, &database.Attachment{Title: "b-original", URL: "https://new.example.com/b.png", SourceURL: "https://cdn.old.example.com/2020/b.png"})
	f.attachment(t, &database.Attachment{Title: "c-photo", URL: "https://new.example.com/c.jpg"})

	tests := []struct {
		name  string
		src   string
		want  string
		found bool
	}{
		{"source url marker", "https://old.example.com/a.jpg", "https://new.example.com/a.jpg", true},
		{"filename in marker", "https://old.example.com/uploads/b.png", "https://new.example.com/b.png", true},
		{"title matches stem", "https://old.example.com/c-photo.jpg", "https://new.example.com/c.jpg", true},
		{"unknown", "https://old.example.com/missing.gif", "", false},
		{"no filename", "https://old.example.com/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found, err := f.updater.Lookup(ctx, tt.src)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got != tt.want || found != tt.found {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.src, got, found, tt.want, tt.found)
			}
		})
	}
}

func TestProcessBatchRewritesAndDrains(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.attachment(t, &database.Attachment{Title: "a", URL: "https://new.example.com/a.jpg", SourceURL: "https://old.example.com/a.jpg"})
	f.attachment(t, &database.Attachment{Title: "a-large", URL: "https://new.example.com/a-large.jpg", SourceURL: "https://old.example.com/a.jpg-large.jpg"})

	body := `<img src="https://old.example.com/a.jpg"><img src="https://old.example.com/a.jpg-large.jpg"><img src="https://old.example.com/none.gif">`
	ids := make([]int64, 0, 25)
	for i := int64(1); i <= 25; i++ {
		id := 100 + i
		if _, err := f.db.ForceInsertItem(ctx, &database.Item{ID: id, Type: "post", Title: fmt.Sprint(id), Slug: fmt.Sprint(id), Body: body}); err != nil {
			t.Fatalf("seed item: %v", err)
		}
		ids = append(ids, id)
	}
	// 999 does not exist; it must still leave the list.
	ids = append(ids, 999)
	if err := f.tracker.AddPending(ctx, "run", ids...); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	res, err := f.updater.ProcessBatch(ctx, "run", 0)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if res.Processed != BatchSize || res.Rewritten != BatchSize || res.Remaining != 6 {
		t.Fatalf("unexpected first result %+v", res)
	}

	res, err = f.updater.ProcessBatch(ctx, "run", 0)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if res.Processed != 6 || res.Rewritten != 5 || res.Failed != 1 || res.Remaining != 0 {
		t.Fatalf("unexpected second result %+v", res)
	}

	got, err := f.db.GetItem(ctx, 101)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	want := `<img src="https://new.example.com/a.jpg"><img src="https://new.example.com/a-large.jpg"><img src="https://old.example.com/none.gif">`
	if got.Body != want {
		t.Errorf("unexpected body:\n got %s\nwant %s", got.Body, want)
	}

	// Rewritten bodies are stable.
	if err := f.tracker.AddPending(ctx, "run", 101); err != nil {
		t.Fatalf("AddPending: %v", err)
	}
	res, err = f.updater.ProcessBatch(ctx, "run", 0)
	if err != nil {
		t.Fatalf("third batch: %v", err)
	}
	if res.Rewritten != 0 || res.Processed != 1 {
		t.Errorf("expected no change on a rewritten body, got %+v", res)
	}
}

func TestProcessBatchEscapedQueryURL(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.attachment(t, &database.Attachment{Title: "a", URL: "https://new.example.com/a.jpg", SourceURL: "https://i0.wp.com/old.example.com/a.jpg?resize=300%2C200&ssl=1"})
	body := `<p><img src="https://i0.wp.com/old.example.com/a.jpg?resize=300%2C200&amp;ssl=1"></p>`
	if _, err := f.db.ForceInsertItem(ctx, &database.Item{ID: 7, Type: "post", Title: "p", Slug: "p", Body: body}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := f.tracker.AddPending(ctx, "run", 7); err != nil {
		t.Fatalf("AddPending: %v", err)
	}

	res, err := f.updater.ProcessBatch(ctx, "run", 0)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Rewritten != 1 {
		t.Fatalf("expected the escaped reference rewritten, got %+v", res)
	}
	got, err := f.db.GetItem(ctx, 7)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if want := `<p><img src="https://new.example.com/a.jpg"></p>`; got.Body != want {
		t.Errorf("unexpected body:\n got %s\nwant %s", got.Body, want)
	}
}

func TestProcessBatchOffsetOutOfRange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	if err := f.tracker.AddPending(ctx, "run", 1, 2); err != nil {
		t.Fatalf("AddPending: %v", err)
	}
	res, err := f.updater.ProcessBatch(ctx, "run", 40)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
	if res.Processed != 2 || res.Remaining != 0 {
		t.Errorf("expected restart from the head, got %+v", res)
	}
}

func TestFinalize(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.MediaStatus
		pending  []int64
		want     models.Phase
	}{
		{"clean run", []models.MediaStatus{models.MediaCompleted, models.MediaCompleted}, nil, models.PhaseCompleted},
		{"failed media", []models.MediaStatus{models.MediaCompleted, models.MediaFailed}, nil, models.PhaseCompletedWithErrors},
		{"posts left pending", []models.MediaStatus{models.MediaCompleted}, []int64{7}, models.PhaseCompletedWithErrors},
		{"no media", nil, nil, models.PhaseCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			ctx := context.Background()

			for i, st := range tt.statuses {
				id, err := f.db.EnqueueMedia(ctx, &models.MediaQueueItem{
					RunID: "run", PostID: 1, MediaType: models.MediaContent,
					OriginalURL: fmt.Sprintf("https://old.example.com/%d.jpg", i), Status: models.MediaPending,
				})
				if err != nil {
					t.Fatalf("EnqueueMedia: %v", err)
				}
				if err := f.db.UpdateMediaStatus(ctx, id, st, 0, "", ""); err != nil {
					t.Fatalf("UpdateMediaStatus: %v", err)
				}
			}
			if len(tt.pending) > 0 {
				if err := f.tracker.AddPending(ctx, "run", tt.pending...); err != nil {
					t.Fatalf("AddPending: %v", err)
				}
			}

			s, err := f.updater.Finalize(ctx, "run")
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if s.Phase != tt.want {
				t.Errorf("expected %s, got %s", tt.want, s.Phase)
			}
			if s.Media.Total != len(tt.statuses) {
				t.Errorf("expected media total %d, got %d", len(tt.statuses), s.Media.Total)
			}

			counts, _ := f.queue.Counts(ctx, "run")
			left, _ := f.tracker.ListPending(ctx, "run")
			if counts.Total != 0 || len(left) != 0 {
				t.Errorf("expected queue and pending list cleared, got %+v and %v", counts, left)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"https://x.example.com/a/b/photo.jpg?w=300": "photo.jpg",
		"https://x.example.com/":                    "",
		"https://x.example.com":                     "",
		"::bad":                                     "",
	} {
		if got := filename(in); got != want {
			t.Errorf("filename(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(filename("https://x/a%20b.png"), "%") {
		t.Error("expected decoded filename")
	}
}
