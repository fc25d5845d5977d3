// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package memguard reports process memory usage against a configured ceiling
// and asks the runtime to hand memory back between batches.
package memguard

import (
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/docker/go-units"
)

// Monitor reports memory usage in bytes. A Limit of 0 means no ceiling is known.
type Monitor interface {
	Usage() uint64
	Limit() uint64
}

// Ratio returns usage as a fraction of the ceiling, or 0 without a ceiling.
func Ratio(m Monitor) float64 {
	limit := m.Limit()
	if limit == 0 {
		return 0
	}
	return float64(m.Usage()) / float64(limit)
}

// Above reports whether usage exceeds fraction of the ceiling.
func Above(m Monitor, fraction float64) bool {
	return m.Limit() > 0 && Ratio(m) > fraction
}

// Runtime reads the Go runtime's memory statistics.
type Runtime struct {
	limit uint64
}

// NewRuntime creates a monitor with an explicit ceiling in bytes. When limit
// is 0 the soft limit set through GOMEMLIMIT is used, if any.
func NewRuntime(limit int64) *Runtime {
	if limit > 0 {
		return &Runtime{limit: uint64(limit)}
	}
	return &Runtime{limit: envLimit()}
}

func envLimit() uint64 {
	if v := os.Getenv("GOMEMLIMIT"); v != "" {
		if n, err := units.RAMInBytes(v); err == nil && n > 0 {
			return uint64(n)
		}
	}
	// debug.SetMemoryLimit(-1) reads without changing; MaxInt64 means unset.
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		return uint64(l)
	}
	return 0
}

// Usage returns memory obtained from the OS minus what has been released.
func (r *Runtime) Usage() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapReleased
}

// Limit returns the configured ceiling.
func (r *Runtime) Limit() uint64 {
	return r.limit
}

// Reclaim forces a collection and returns freed pages to the OS.
func Reclaim() {
	runtime.GC()
	debug.FreeOSMemory()
}

// Fixed is a monitor with settable values for tests and dry runs.
type Fixed struct {
	mu    sync.Mutex
	usage uint64
	limit uint64
}

// NewFixed creates a monitor reporting usage against limit.
func NewFixed(usage, limit uint64) *Fixed {
	return &Fixed{usage: usage, limit: limit}
}

// Set changes the reported usage.
func (f *Fixed) Set(usage uint64) {
	f.mu.Lock()
	f.usage = usage
	f.mu.Unlock()
}

// Usage implements Monitor.
func (f *Fixed) Usage() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage
}

// Limit implements Monitor.
func (f *Fixed) Limit() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}
