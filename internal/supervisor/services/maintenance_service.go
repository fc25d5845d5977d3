// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package services

import (
	"context"
	"time"

	"github.com/tomtom215/pressimport/internal/logging"
)

// Task is one periodic maintenance step.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// MaintenanceService runs its tasks on a fixed interval. A failing task is
// logged and the others still run.
type MaintenanceService struct {
	interval time.Duration
	tasks    []Task
}

// NewMaintenanceService creates a service running tasks every interval.
func NewMaintenanceService(interval time.Duration, tasks ...Task) *MaintenanceService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MaintenanceService{interval: interval, tasks: tasks}
}

// Serve implements suture.Service.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce runs every task once.
func (m *MaintenanceService) RunOnce(ctx context.Context) {
	logger := logging.Ctx(ctx)
	for _, task := range m.tasks {
		start := time.Now()
		if err := task.Run(ctx); err != nil {
			logger.Warn().Err(err).Str("task", task.Name).Msg("Maintenance task failed")
			continue
		}
		logger.Debug().Str("task", task.Name).Dur("elapsed", time.Since(start)).Msg("Maintenance task complete")
	}
}

func (m *MaintenanceService) String() string {
	return "maintenance"
}
