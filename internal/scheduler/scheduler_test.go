// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/statestore"
)

type batchArgs struct {
	RunID  string `json:"run_id"`
	Offset int    `json:"offset"`
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, *fakeClock) {
	t.Helper()
	st, err := statestore.OpenInMemory()
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	s := New(st, cfg)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.SetClock(clock.Now)
	return s, clock
}

func TestScheduleAndRunDue(t *testing.T) {
	s, clock := newTestScheduler(t, config.SchedulerConfig{})
	ctx := context.Background()

	var got []int
	s.Register("batch", func(_ context.Context, payload json.RawMessage) error {
		var args batchArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return err
		}
		got = append(got, args.Offset)
		return nil
	})

	if _, err := s.Schedule(ctx, "batch", "run-1", batchArgs{RunID: "run-1", Offset: 10}, 5*time.Second); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.Schedule(ctx, "batch", "run-1", batchArgs{RunID: "run-1", Offset: 0}, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	n, err := s.RunDue(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RunDue = %d, %v; want 1", n, err)
	}
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("first dispatch = %v", got)
	}

	clock.Advance(5 * time.Second)
	if n, _ := s.RunDue(ctx); n != 1 {
		t.Fatalf("second RunDue ran %d jobs", n)
	}
	if len(got) != 2 || got[1] != 10 {
		t.Errorf("dispatch order = %v", got)
	}

	pending, _ := s.Pending(ctx)
	if len(pending) != 0 {
		t.Errorf("expected empty queue, got %d jobs", len(pending))
	}
}

func TestScheduleUnknownAction(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{})
	if _, err := s.Schedule(context.Background(), "missing", "", nil, 0); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestRetryWithBackoffThenDrop(t *testing.T) {
	s, clock := newTestScheduler(t, config.SchedulerConfig{MaxAttempts: 3, RetryBackoff: time.Second})
	ctx := context.Background()

	calls := 0
	s.Register("flaky", func(context.Context, json.RawMessage) error {
		calls++
		return errors.New("boom")
	})
	if _, err := s.Schedule(ctx, "flaky", "g", struct{}{}, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// attempt 1 at t0, retry after 1s, retry after 2s, then dropped.
	steps := []struct {
		advance     time.Duration
		wantCalls   int
		wantPending int
	}{
		{0, 1, 1},
		{500 * time.Millisecond, 1, 1},
		{500 * time.Millisecond, 2, 1},
		{2 * time.Second, 3, 0},
	}
	for i, step := range steps {
		clock.Advance(step.advance)
		if _, err := s.RunDue(ctx); err != nil {
			t.Fatalf("step %d RunDue: %v", i, err)
		}
		pending, _ := s.Pending(ctx)
		if calls != step.wantCalls || len(pending) != step.wantPending {
			t.Errorf("step %d: calls=%d pending=%d, want %d/%d", i, calls, len(pending), step.wantCalls, step.wantPending)
		}
		if len(pending) == 1 && pending[0].LastError != "boom" {
			t.Errorf("step %d: last error = %q", i, pending[0].LastError)
		}
	}
}

func TestHandlerPanicIsRetried(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{MaxAttempts: 2})
	ctx := context.Background()

	s.Register("panicky", func(context.Context, json.RawMessage) error {
		panic("unexpected")
	})
	if _, err := s.Schedule(ctx, "panicky", "", nil, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if _, err := s.RunDue(ctx); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	pending, _ := s.Pending(ctx)
	if len(pending) != 1 || pending[0].Attempts != 1 {
		t.Fatalf("panicking job should be rescheduled once, got %+v", pending)
	}
}

func TestCancelByGroup(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{})
	ctx := context.Background()

	noop := func(context.Context, json.RawMessage) error { return nil }
	s.Register("batch", noop)
	s.Register("media", noop)

	for _, g := range []string{"run-1", "run-1", "run-2"} {
		if _, err := s.Schedule(ctx, "batch", g, nil, time.Minute); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}
	if _, err := s.Schedule(ctx, "media", "run-1", nil, time.Minute); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	n, err := s.Cancel(ctx, "batch", "run-1")
	if err != nil || n != 2 {
		t.Fatalf("Cancel = %d, %v; want 2", n, err)
	}
	pending, _ := s.Pending(ctx)
	if len(pending) != 2 {
		t.Fatalf("expected 2 remaining jobs, got %d", len(pending))
	}
	for _, j := range pending {
		if j.Action == "batch" && j.Group == "run-1" {
			t.Error("cancelled job still pending")
		}
	}

	if n, _ := s.Cancel(ctx, "batch", ""); n != 1 {
		t.Errorf("Cancel with empty group removed %d, want 1", n)
	}
}

func TestDrainFollowsChainedJobs(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{})
	s.SetClock(time.Now)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var offsets []int
	s.Register("batch", func(ctx context.Context, payload json.RawMessage) error {
		var args batchArgs
		if err := json.Unmarshal(payload, &args); err != nil {
			return err
		}
		offsets = append(offsets, args.Offset)
		if args.Offset < 20 {
			_, err := s.Schedule(ctx, "batch", args.RunID, batchArgs{RunID: args.RunID, Offset: args.Offset + 10}, 10*time.Millisecond)
			return err
		}
		return nil
	})
	if _, err := s.Schedule(ctx, "batch", "run-1", batchArgs{RunID: "run-1"}, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := s.Drain(ctx, nil); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(offsets) != 3 || offsets[2] != 20 {
		t.Errorf("offsets = %v, want [0 10 20]", offsets)
	}
}

func TestDrainStopsOnUntil(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{})
	ctx := context.Background()

	s.Register("batch", func(context.Context, json.RawMessage) error { return nil })
	if _, err := s.Schedule(ctx, "batch", "", nil, time.Hour); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Drain(ctx, func() bool { return true }); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, _ := newTestScheduler(t, config.SchedulerConfig{PollInterval: 10 * time.Millisecond})
	s.SetClock(time.Now)
	ctx := context.Background()

	done := make(chan struct{})
	var once sync.Once
	s.Register("ping", func(context.Context, json.RawMessage) error {
		once.Do(func() { close(done) })
		return nil
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
	if _, err := s.Schedule(ctx, "ping", "", nil, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not dispatched by the poll loop")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
