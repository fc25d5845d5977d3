// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package payload parks run-scoped import payloads between batch invocations.
package payload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/statestore"
)

// ErrNotFound is returned when a handle has no stored payload, either because
// it was deleted or because its TTL expired.
var ErrNotFound = errors.New("payload not found")

const prefixPayload = "payload:"

type envelope struct {
	Handle    string          `json:"handle"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   *models.Payload `json:"payload"`
}

// Store keeps payloads in Badger under opaque handles.
type Store struct {
	store *statestore.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewStore creates a payload store. A non-positive ttl keeps entries until
// they are deleted.
func NewStore(store *statestore.Store, ttl time.Duration) *Store {
	return &Store{store: store, ttl: ttl, now: time.Now}
}

// Put stores p and returns its handle.
func (s *Store) Put(ctx context.Context, p *models.Payload) (string, error) {
	handle := uuid.NewString()
	env := envelope{Handle: handle, CreatedAt: s.now().UTC(), Payload: p}
	if err := s.store.PutJSON(ctx, prefixPayload+handle, env, s.ttl); err != nil {
		return "", fmt.Errorf("store payload: %w", err)
	}
	return handle, nil
}

// Get loads the payload behind handle.
func (s *Store) Get(ctx context.Context, handle string) (*models.Payload, error) {
	var env envelope
	found, err := s.store.GetJSON(ctx, prefixPayload+handle, &env)
	if err != nil {
		return nil, err
	}
	if !found || env.Payload == nil {
		return nil, fmt.Errorf("%s: %w", handle, ErrNotFound)
	}
	return env.Payload, nil
}

// Delete discards a payload.
func (s *Store) Delete(ctx context.Context, handle string) error {
	return s.store.Delete(ctx, prefixPayload+handle)
}

// Cleanup removes payloads created before now minus olderThan.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	var stale []string
	err := s.store.Iterate(ctx, prefixPayload, func(key string, val []byte) error {
		var env struct {
			CreatedAt time.Time `json:"created_at"`
		}
		if err := json.Unmarshal(val, &env); err != nil || env.CreatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan payloads: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.store.Delete(ctx, stale...); err != nil {
		return 0, fmt.Errorf("delete stale payloads: %w", err)
	}
	return len(stale), nil
}
