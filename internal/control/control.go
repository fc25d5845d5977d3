// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package control holds cooperative stop signals: one global flag and
// run-scoped markers that expire after a bounded lifetime.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/pressimport/internal/statestore"
)

const (
	keyGlobalStop = "stop:global"
	prefixRunStop = "stop:run:"
)

type marker struct {
	RequestedAt time.Time `json:"requested_at"`
}

// Signals reads and writes stop requests.
type Signals struct {
	store *statestore.Store
	ttl   time.Duration
}

// NewSignals creates a signal set. Run markers live for ttl; a non-positive
// ttl keeps them until cleared.
func NewSignals(store *statestore.Store, ttl time.Duration) *Signals {
	return &Signals{store: store, ttl: ttl}
}

func stopKey(runID string) string {
	if runID == "" {
		return keyGlobalStop
	}
	return prefixRunStop + runID
}

// RequestStop raises the stop marker for runID, or the global flag when runID
// is empty. Only run markers expire.
func (s *Signals) RequestStop(ctx context.Context, runID string) error {
	ttl := s.ttl
	if runID == "" {
		ttl = 0
	}
	if err := s.store.PutJSON(ctx, stopKey(runID), marker{RequestedAt: time.Now().UTC()}, ttl); err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	return nil
}

// ClearStop lowers the flag for runID, or the global flag when runID is empty.
func (s *Signals) ClearStop(ctx context.Context, runID string) error {
	return s.store.Delete(ctx, stopKey(runID))
}

// IsStopped reports whether runID must halt: either the global flag or its
// own marker is set.
func (s *Signals) IsStopped(ctx context.Context, runID string) (bool, error) {
	global, err := s.store.Exists(ctx, keyGlobalStop)
	if err != nil {
		return false, fmt.Errorf("check global stop: %w", err)
	}
	if global || runID == "" {
		return global, nil
	}
	run, err := s.store.Exists(ctx, stopKey(runID))
	if err != nil {
		return false, fmt.Errorf("check stop for %s: %w", runID, err)
	}
	return run, nil
}
