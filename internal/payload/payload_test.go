// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package payload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/statestore"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	st, err := statestore.OpenInMemory()
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewStore(st, ttl)
}

func TestPutGetDelete(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	p := &models.Payload{
		SiteInfo: &models.SiteInfo{URL: "https://src.example", Name: "Source"},
		Posts:    []models.ContentItem{{ID: 1, Type: "post", Title: "One"}, {ID: 2, Type: "page", Title: "Two"}},
	}
	handle, err := s.Put(ctx, p)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if handle == "" {
		t.Fatal("empty handle")
	}

	got, err := s.Get(ctx, handle)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Posts) != 2 || got.Posts[1].Title != "Two" || got.SiteInfo.Name != "Source" {
		t.Errorf("unexpected payload %+v", got)
	}

	if err := s.Delete(ctx, handle); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, handle); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-48 * time.Hour) }
	old, _ := s.Put(ctx, &models.Payload{})
	s.now = func() time.Time { return now }
	fresh, _ := s.Put(ctx, &models.Payload{})

	n, err := s.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("Cleanup removed %d, want 1", n)
	}
	if _, err := s.Get(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Errorf("old payload should be gone, got %v", err)
	}
	if _, err := s.Get(ctx, fresh); err != nil {
		t.Errorf("fresh payload should remain: %v", err)
	}
}
