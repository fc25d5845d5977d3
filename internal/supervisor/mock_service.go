// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// MockService is a suture.Service for tests. It fails a configured number of
// times and then runs until canceled.
type MockService struct {
	name     string
	starts   atomic.Int32
	failures atomic.Int32
	failFor  atomic.Int32
}

// NewMockService creates a mock service.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// Serve implements suture.Service.
func (m *MockService) Serve(ctx context.Context) error {
	m.starts.Add(1)
	if m.failures.Add(1) <= m.failFor.Load() {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

// FailFor makes the next n calls to Serve fail immediately.
func (m *MockService) FailFor(n int32) {
	m.failures.Store(0)
	m.failFor.Store(n)
}

// Starts returns how many times Serve was called.
func (m *MockService) Starts() int32 {
	return m.starts.Load()
}

func (m *MockService) String() string {
	return m.name
}
