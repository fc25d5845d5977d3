// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/contentupdate"
	"github.com/tomtom215/pressimport/internal/control"
	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/importer"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/media"
	"github.com/tomtom215/pressimport/internal/mediaqueue"
	"github.com/tomtom215/pressimport/internal/memguard"
	"github.com/tomtom215/pressimport/internal/orchestrator"
	"github.com/tomtom215/pressimport/internal/payload"
	"github.com/tomtom215/pressimport/internal/progress"
	"github.com/tomtom215/pressimport/internal/scheduler"
	"github.com/tomtom215/pressimport/internal/statestore"
)

// memoCapacity bounds the per-process URL resolution memo.
const memoCapacity = 10000

// app holds the wired pipeline shared by every command.
type app struct {
	cfg    *config.Config
	db     *database.DB
	state  *statestore.Store
	runLog *logging.RunLog
	sched  *scheduler.Scheduler
	orch   *orchestrator.Orchestrator
}

// newApp opens the stores and wires the import pipeline. Logging is
// initialized here so the run log captures startup.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var runLog io.Writer
	if cfg.Logging.RunLogPath != "" {
		if a.runLog, err = logging.OpenRunLog(cfg.Logging.RunLogPath); err != nil {
			return nil, fmt.Errorf("open run log: %w", err)
		}
		runLog = a.runLog
	}
	initLogging(cfg, runLog)

	if a.db, err = database.New(&cfg.Database); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if a.state, err = statestore.Open(&cfg.State); err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	blobs, err := media.NewBlobStore(ctx, &cfg.Media)
	if err != nil {
		return nil, fmt.Errorf("media storage: %w", err)
	}
	fetcher, err := media.NewHTTPFetcher(&cfg.Media, nil)
	if err != nil {
		return nil, fmt.Errorf("media fetcher: %w", err)
	}
	memLimit, err := cfg.Import.MemoryLimitBytes()
	if err != nil {
		return nil, err
	}
	policy, err := importer.ParsePolicy(cfg.Import.CommentPolicy)
	if err != nil {
		return nil, err
	}

	mem := memguard.NewRuntime(memLimit)
	tracker := progress.NewTracker(a.state)
	a.sched = scheduler.New(a.state, cfg.Scheduler)

	handler := media.NewHandler(a.db, fetcher, blobs, mem, media.Options{
		SiteURL:      cfg.Import.SiteURL,
		MediaBaseURL: cfg.Media.BaseURL,
		MemoCapacity: memoCapacity,
	})
	comments := importer.NewCommentImporter(a.db, policy, cfg.Import.CommentDedupWindow)
	queue := mediaqueue.NewManager(a.db, handler, cfg.Media.MaxAttempts)

	a.orch = orchestrator.New(cfg, orchestrator.Deps{
		Store:     a.db,
		Tracker:   tracker,
		Payloads:  payload.NewStore(a.state, cfg.Import.PayloadTTL),
		Signals:   control.NewSignals(a.state, cfg.Import.StopSignalTTL),
		Scheduler: a.sched,
		Terms:     importer.NewTermImporter(a.db),
		Content:   importer.NewContentImporter(a.db, comments, cfg.Import.ContentTypes, cfg.Import.DefaultAuthor),
		Media:     handler,
		Queue:     queue,
		Updater:   contentupdate.NewUpdater(a.db, tracker, queue),
		Memory:    mem,
	})

	logging.Info().
		Str("database", cfg.Database.Path).
		Str("state", cfg.State.Path).
		Str("media_backend", cfg.Media.Backend).
		Int("batch_size", cfg.Import.BatchSize).
		Msg("Import pipeline ready")
	return a, nil
}

// Close releases the stores in reverse order of opening.
func (a *app) Close() {
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing state store")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}
	if a.runLog != nil {
		if err := a.runLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing run log")
		}
	}
}
