// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package services

import (
	"context"
	"fmt"
)

// Scheduler is the lifecycle surface of *scheduler.Scheduler.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService runs the batch scheduler's poll loop.
type SchedulerService struct {
	sched Scheduler
}

// NewSchedulerService wraps sched.
func NewSchedulerService(sched Scheduler) *SchedulerService {
	return &SchedulerService{sched: sched}
}

// Serve implements suture.Service. It blocks until ctx is canceled and waits
// for the in-flight batch before returning.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	if err := s.sched.Stop(); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string {
	return "batch-scheduler"
}
