// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package scheduler is a durable delayed-job dispatcher backed by BadgerDB.
//
// Jobs are named actions with a JSON payload and a due time. Delivery is
// at-least-once: a job is removed only after its handler returns nil. A
// failing handler is retried with exponential backoff until MaxAttempts,
// then dropped. Jobs belong to a group so that all future work for one run
// can be cancelled at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/statestore"
)

const prefixJob = "job:"

// ErrUnknownAction is returned when scheduling an action with no handler.
var ErrUnknownAction = errors.New("unknown action")

// Handler executes one job. The payload is the raw JSON given to Schedule.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Job is one persisted unit of scheduled work.
type Job struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Group     string          `json:"group"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"run_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (j *Job) key() []byte {
	return jobKey(j.RunAt, j.ID)
}

// jobKey sorts lexically by due time.
func jobKey(runAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixJob, runAt.UnixNano(), id))
}

// Scheduler dispatches due jobs to registered handlers.
type Scheduler struct {
	store  *statestore.Store
	cfg    config.SchedulerConfig
	logger zerolog.Logger
	now    func() time.Time

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	// dispatchMu keeps the poll loop and Drain from running jobs concurrently.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	wakeCh  chan struct{}
}

// New creates a scheduler over store.
func New(store *statestore.Store, cfg config.SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	return &Scheduler{
		store:    store,
		cfg:      cfg,
		logger:   logging.WithComponent("scheduler"),
		now:      time.Now,
		handlers: make(map[string]Handler),
		wakeCh:   make(chan struct{}, 1),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Register binds handler to action, replacing any previous binding.
func (s *Scheduler) Register(action string, handler Handler) {
	s.handlersMu.Lock()
	s.handlers[action] = handler
	s.handlersMu.Unlock()
}

func (s *Scheduler) handler(action string) (Handler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[action]
	return h, ok
}

// Schedule persists a job that becomes due after delay and returns its id.
func (s *Scheduler) Schedule(ctx context.Context, action, group string, payload any, delay time.Duration) (string, error) {
	if _, ok := s.handler(action); !ok {
		return "", fmt.Errorf("%s: %w", action, ErrUnknownAction)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", action, err)
	}
	if delay < 0 {
		delay = 0
	}

	now := s.now()
	job := &Job{
		ID:        uuid.NewString(),
		Action:    action,
		Group:     group,
		Payload:   raw,
		RunAt:     now.Add(delay),
		CreatedAt: now,
	}
	if err := s.put(job); err != nil {
		return "", err
	}

	logging.Ctx(ctx).Debug().
		Str("job_id", job.ID).
		Str("action", action).
		Str("group", group).
		Dur("delay", delay).
		Msg("Job scheduled")

	s.wake()
	return job.ID, nil
}

func (s *Scheduler) put(job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.store.Update(func(txn *badger.Txn) error {
		return txn.Set(job.key(), data)
	})
}

func (s *Scheduler) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Cancel removes every pending job of action in group. An empty group
// matches all groups. It returns the number of jobs removed.
func (s *Scheduler) Cancel(ctx context.Context, action, group string) (int, error) {
	jobs, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}
	var keys [][]byte
	for i := range jobs {
		if jobs[i].Action == action && (group == "" || jobs[i].Group == group) {
			keys = append(keys, jobs[i].key())
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.store.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return 0, fmt.Errorf("cancel %s jobs: %w", action, err)
	}
	for range keys {
		metrics.RecordSchedulerJob(action, "cancelled")
	}
	logging.Ctx(ctx).Info().Str("action", action).Str("group", group).Int("count", len(keys)).Msg("Cancelled scheduled jobs")
	return len(keys), nil
}

// Pending returns all persisted jobs ordered by due time.
func (s *Scheduler) Pending(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := s.store.Iterate(ctx, prefixJob, func(key string, val []byte) error {
		var job Job
		if err := json.Unmarshal(val, &job); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable job")
			return nil
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	metrics.SetSchedulerPending(len(jobs))
	return jobs, nil
}

// RunDue executes every job that is due now, in due order, and returns how
// many ran. Jobs scheduled by handlers during this call wait for the next one.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	jobs, err := s.Pending(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	ran := 0
	for i := range jobs {
		if jobs[i].RunAt.After(now) {
			break
		}
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		s.execute(ctx, &jobs[i])
		ran++
	}
	return ran, nil
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	logger := s.logger.With().Str("job_id", job.ID).Str("action", job.Action).Str("group", job.Group).Logger()

	h, ok := s.handler(job.Action)
	if !ok {
		logger.Error().Msg("No handler registered, dropping job")
		s.remove(job, &logger)
		metrics.RecordSchedulerJob(job.Action, "dropped")
		return
	}

	err := s.invoke(ctx, h, job)
	if err == nil {
		s.remove(job, &logger)
		metrics.RecordSchedulerJob(job.Action, "success")
		return
	}

	job.Attempts++
	if job.Attempts >= s.cfg.MaxAttempts {
		logger.Error().Err(err).Int("attempts", job.Attempts).Msg("Job failed permanently, dropping")
		s.remove(job, &logger)
		metrics.RecordSchedulerJob(job.Action, "dropped")
		return
	}

	backoff := s.cfg.RetryBackoff << (job.Attempts - 1)
	oldKey := job.key()
	job.RunAt = s.now().Add(backoff)
	job.LastError = err.Error()
	data, merr := json.Marshal(job)
	if merr != nil {
		logger.Error().Err(merr).Msg("Failed to marshal job for retry")
		return
	}
	if uerr := s.store.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(oldKey); err != nil {
			return err
		}
		return txn.Set(job.key(), data)
	}); uerr != nil {
		logger.Error().Err(uerr).Msg("Failed to reschedule job")
		return
	}
	logger.Warn().Err(err).Int("attempt", job.Attempts).Dur("backoff", backoff).Msg("Job failed, retrying")
	metrics.RecordSchedulerJob(job.Action, "retry")
}

// invoke runs the handler, converting a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job.Payload)
}

func (s *Scheduler) remove(job *Job, logger *zerolog.Logger) {
	if err := s.store.Update(func(txn *badger.Txn) error {
		return txn.Delete(job.key())
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to remove job")
	}
}

// Drain runs jobs as they become due until none remain, until returns true,
// or ctx ends. It sleeps until the next due time when nothing is ready.
func (s *Scheduler) Drain(ctx context.Context, until func() bool) error {
	for {
		if until != nil && until() {
			return nil
		}
		if _, err := s.RunDue(ctx); err != nil {
			return err
		}
		jobs, err := s.Pending(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return nil
		}
		if until != nil && until() {
			return nil
		}

		sort.Slice(jobs, func(i, j int) bool { return jobs[i].RunAt.Before(jobs[j].RunAt) })
		wait := jobs[0].RunAt.Sub(s.now())
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Start begins the poll loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("Starting scheduler")
	go s.run(ctx)
	return nil
}

// Stop halts the poll loop and waits for the in-flight job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ticker.C:
			s.poll(ctx)
		case <-s.wakeCh:
			s.poll(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) poll(ctx context.Context) {
	if _, err := s.RunDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("Failed to run due jobs")
	}
}
