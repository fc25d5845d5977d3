// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package progress persists per-run progress records, run records, id-map
// snapshots and the pending content-update list in BadgerDB so that batches
// running as independent scheduled invocations share one view of a run.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/remap"
	"github.com/tomtom215/pressimport/internal/statestore"
)

// ErrRunNotFound is returned when a run record does not exist.
var ErrRunNotFound = errors.New("run not found")

const (
	prefixProgress = "progress:"
	prefixSource   = "source:"
	prefixRun      = "run:"
	prefixPending  = "pending:"
	prefixIDMap    = "idmap:"
)

// Tracker stores progress state for import runs.
type Tracker struct {
	store *statestore.Store
	now   func() time.Time

	// mu serializes read-modify-write cycles; Badger would otherwise
	// report conflicts between concurrent updates of the same key.
	mu sync.Mutex
}

// NewTracker creates a tracker on top of store.
func NewTracker(store *statestore.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Initialize creates the progress record for a run, replacing any previous one.
func (t *Tracker) Initialize(ctx context.Context, runID, sourceID string, total int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := models.ProgressRecord{
		RunID:     runID,
		SourceID:  sourceID,
		Status:    models.PhaseQueued,
		Total:     total,
		Message:   message,
		UpdatedAt: t.now().UTC(),
	}
	if err := t.store.PutJSON(ctx, prefixProgress+runID, rec, 0); err != nil {
		return fmt.Errorf("initialize progress for %s: %w", runID, err)
	}
	if sourceID != "" {
		if err := t.store.PutJSON(ctx, prefixSource+sourceID, runID, 0); err != nil {
			return fmt.Errorf("index source %s: %w", sourceID, err)
		}
	}
	return nil
}

// UpdateStatus sets the phase and message of a run. Extra values are merged
// into the record; a nil map leaves existing extras untouched.
func (t *Tracker) UpdateStatus(ctx context.Context, runID string, phase models.Phase, message string, extra map[string]any) error {
	return t.modify(ctx, runID, func(rec *models.ProgressRecord) {
		rec.Status = phase
		rec.Message = message
		if len(extra) > 0 {
			if rec.Extra == nil {
				rec.Extra = make(map[string]any, len(extra))
			}
			for k, v := range extra {
				rec.Extra[k] = v
			}
		}
	})
}

// SetCurrent records how far a phase has advanced.
func (t *Tracker) SetCurrent(ctx context.Context, runID string, current, total int, item string) error {
	return t.modify(ctx, runID, func(rec *models.ProgressRecord) {
		rec.Current = current
		if total > 0 {
			rec.Total = total
		}
		rec.CurrentItem = item
	})
}

func (t *Tracker) modify(ctx context.Context, runID string, fn func(*models.ProgressRecord)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec models.ProgressRecord
	found, err := t.store.GetJSON(ctx, prefixProgress+runID, &rec)
	if err != nil {
		return err
	}
	if !found {
		rec = models.ProgressRecord{RunID: runID}
	}
	fn(&rec)
	rec.Percent = models.Percent(rec.Current, rec.Total)
	rec.UpdatedAt = t.now().UTC()
	if err := t.store.PutJSON(ctx, prefixProgress+runID, rec, 0); err != nil {
		return fmt.Errorf("update progress for %s: %w", runID, err)
	}
	return nil
}

// Get returns the progress record of a run. An unknown run yields a record
// with status not_found rather than an error.
func (t *Tracker) Get(ctx context.Context, runID string) (*models.ProgressRecord, error) {
	var rec models.ProgressRecord
	found, err := t.store.GetJSON(ctx, prefixProgress+runID, &rec)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.ProgressRecord{RunID: runID, Status: models.PhaseNotFound}, nil
	}
	return &rec, nil
}

// GetBySource returns the progress of the latest run started from sourceID.
func (t *Tracker) GetBySource(ctx context.Context, sourceID string) (*models.ProgressRecord, error) {
	var runID string
	found, err := t.store.GetJSON(ctx, prefixSource+sourceID, &runID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.ProgressRecord{SourceID: sourceID, Status: models.PhaseNotFound}, nil
	}
	return t.Get(ctx, runID)
}

// SaveRun persists a run record.
func (t *Tracker) SaveRun(ctx context.Context, run *models.ImportRun) error {
	run.UpdatedAt = t.now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = run.UpdatedAt
	}
	if err := t.store.PutJSON(ctx, prefixRun+run.ID, run, 0); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run record.
func (t *Tracker) GetRun(ctx context.Context, runID string) (*models.ImportRun, error) {
	var run models.ImportRun
	found, err := t.store.GetJSON(ctx, prefixRun+runID, &run)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return &run, nil
}

// ListRuns returns all run records, newest first.
func (t *Tracker) ListRuns(ctx context.Context) ([]*models.ImportRun, error) {
	var runs []*models.ImportRun
	err := t.store.Iterate(ctx, prefixRun, func(_ string, val []byte) error {
		var run models.ImportRun
		if err := json.Unmarshal(val, &run); err != nil {
			return err
		}
		runs = append(runs, &run)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs, nil
}

// SaveIDMap stores the remapper snapshot of a run.
func (t *Tracker) SaveIDMap(ctx context.Context, runID string, snap remap.Snapshot) error {
	return t.store.PutJSON(ctx, prefixIDMap+runID, snap, 0)
}

// LoadIDMap returns the remapper snapshot of a run, or an empty one.
func (t *Tracker) LoadIDMap(ctx context.Context, runID string) (remap.Snapshot, error) {
	var snap remap.Snapshot
	if _, err := t.store.GetJSON(ctx, prefixIDMap+runID, &snap); err != nil {
		return remap.Snapshot{}, fmt.Errorf("load id map for %s: %w", runID, err)
	}
	return snap, nil
}

// DeleteIDMap drops the remapper snapshot of a run.
func (t *Tracker) DeleteIDMap(ctx context.Context, runID string) error {
	return t.store.Delete(ctx, prefixIDMap+runID)
}

// AddPending appends post ids to the pending content-update list of a run.
// Ids already present are not duplicated.
func (t *Tracker) AddPending(ctx context.Context, runID string, postIDs ...int64) error {
	if len(postIDs) == 0 {
		return nil
	}
	return t.modifyPending(runID, func(list []int64) []int64 {
		seen := make(map[int64]struct{}, len(list))
		for _, id := range list {
			seen[id] = struct{}{}
		}
		for _, id := range postIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			list = append(list, id)
		}
		return list
	})
}

// RemovePost drops one post id from the pending list.
func (t *Tracker) RemovePost(ctx context.Context, runID string, postID int64) error {
	return t.modifyPending(runID, func(list []int64) []int64 {
		out := list[:0]
		for _, id := range list {
			if id != postID {
				out = append(out, id)
			}
		}
		return out
	})
}

// ListPending returns the pending content-update list of a run in insertion order.
func (t *Tracker) ListPending(ctx context.Context, runID string) ([]int64, error) {
	var list []int64
	if _, err := t.store.GetJSON(ctx, prefixPending+runID, &list); err != nil {
		return nil, fmt.Errorf("list pending for %s: %w", runID, err)
	}
	return list, nil
}

// ClearPending deletes the pending list of a run.
func (t *Tracker) ClearPending(ctx context.Context, runID string) error {
	return t.store.Delete(ctx, prefixPending+runID)
}

func (t *Tracker) modifyPending(runID string, fn func([]int64) []int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := []byte(prefixPending + runID)
	err := t.store.Update(func(txn *badger.Txn) error {
		var list []int64
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &list)
			}); err != nil {
				return err
			}
		}

		list = fn(list)
		if len(list) == 0 {
			return txn.Delete(key)
		}
		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("update pending list for %s: %w", runID, err)
	}
	return nil
}
