// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/contentupdate"
	"github.com/tomtom215/pressimport/internal/control"
	"github.com/tomtom215/pressimport/internal/importer"
	"github.com/tomtom215/pressimport/internal/ingest"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/mediaqueue"
	"github.com/tomtom215/pressimport/internal/memguard"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/payload"
	"github.com/tomtom215/pressimport/internal/progress"
	"github.com/tomtom215/pressimport/internal/scheduler"
)

// Scheduled actions, one per resumable phase.
const (
	ActionPosts   = "import_posts"
	ActionMedia   = "import_media"
	ActionContent = "update_content"
)

var actions = []string{ActionPosts, ActionMedia, ActionContent}

const (
	// budgetFraction leaves headroom below the execution ceiling.
	budgetFraction = 0.7
	minBudget      = 15 * time.Second

	// halveAbove is the memory ratio above which a batch is halved.
	halveAbove = 0.8
)

// Store is the destination surface the orchestrator uses directly.
type Store interface {
	ItemExistsByTitleType(ctx context.Context, title, itemType string) (bool, error)
	PurgeMediaQueueOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TermImporter imports one taxonomy's terms.
type TermImporter interface {
	ImportTerms(ctx context.Context, terms []models.TermItem, taxonomy string) (map[int64]int64, models.Totals)
}

// ContentImporter imports content items.
type ContentImporter interface {
	ImportItems(ctx context.Context, rc *importer.RunContext, items []models.ContentItem) *importer.BatchResult
}

// MediaCache is the object-level cache owned by the media handler.
type MediaCache interface {
	ResetRun()
	Flush()
}

// Deps wires the orchestrator to its collaborators.
type Deps struct {
	Store     Store
	Tracker   *progress.Tracker
	Payloads  *payload.Store
	Signals   *control.Signals
	Scheduler *scheduler.Scheduler
	Terms     TermImporter
	Content   ContentImporter
	Media     MediaCache
	Queue     *mediaqueue.Manager
	Updater   *contentupdate.Updater

	// Memory may be nil, which disables batch halving.
	Memory memguard.Monitor
}

// Orchestrator drives import runs through their phases. Each phase runs as
// a sequence of scheduled batches that carry everything needed to resume.
type Orchestrator struct {
	d          Deps
	cfg        config.ImportConfig
	mediaBatch int
	retryDelay time.Duration
	now        func() time.Time
	reclaim    func()
}

// New creates an orchestrator and registers its phase handlers with the
// scheduler.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	o := &Orchestrator{
		d:          deps,
		cfg:        cfg.Import,
		mediaBatch: cfg.Media.QueueBatchSize,
		retryDelay: cfg.Media.BreakerTimeout,
		now:        time.Now,
		reclaim:    memguard.Reclaim,
	}
	if o.cfg.BatchSize <= 0 {
		o.cfg.BatchSize = 10
	}
	if o.mediaBatch <= 0 {
		o.mediaBatch = 10
	}

	deps.Scheduler.Register(ActionPosts, o.handlePosts)
	deps.Scheduler.Register(ActionMedia, o.handleMedia)
	deps.Scheduler.Register(ActionContent, o.handleContent)
	return o
}

// SetClock replaces the time source used for batch budgets. Intended for
// tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Start reads the import source at path and queues one run per payload.
func (o *Orchestrator) Start(ctx context.Context, path string, opts models.Options) ([]models.RunHandle, error) {
	payloads, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// A new import supersedes an earlier global stop.
	if err := o.d.Signals.ClearStop(ctx, ""); err != nil {
		return nil, err
	}

	sourceID := filepath.Base(path)
	handles := make([]models.RunHandle, 0, len(payloads))
	for i := range payloads {
		id := sourceID
		if len(payloads) > 1 {
			id = fmt.Sprintf("%s#%d", sourceID, i+1)
		}
		h, err := o.StartPayload(ctx, id, &payloads[i], opts)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// StartPayload queues a run for one payload.
func (o *Orchestrator) StartPayload(ctx context.Context, sourceID string, p *models.Payload, opts models.Options) (models.RunHandle, error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	logger := logging.Ctx(ctx)

	if opts.ImportOnlyMissing {
		if err := o.dropExisting(ctx, p); err != nil {
			return models.RunHandle{}, err
		}
	}

	total := len(p.Posts)
	run := &models.ImportRun{
		ID:       runID,
		SourceID: sourceID,
		Options:  opts,
		Phase:    models.PhaseQueued,
		Total:    total,
	}
	handle := models.RunHandle{RunID: runID, SourceID: sourceID, Total: total, Phase: models.PhaseQueued}

	if total == 0 {
		msg := "Nothing to import"
		if err := o.d.Tracker.Initialize(ctx, runID, sourceID, 0, msg); err != nil {
			return handle, err
		}
		if err := o.finishRun(ctx, run, models.PhaseCompleted, msg); err != nil {
			return handle, err
		}
		handle.Phase = models.PhaseCompleted
		logger.Info().Str("source_id", sourceID).Msg("Import has no items, completed immediately")
		return handle, nil
	}

	ph, err := o.d.Payloads.Put(ctx, p)
	if err != nil {
		return handle, err
	}
	run.PayloadHandle = ph

	if err := o.d.Tracker.Initialize(ctx, runID, sourceID, total, "Queued"); err != nil {
		return handle, err
	}
	if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
		return handle, err
	}
	job := postsJob{
		RunID:     runID,
		SourceID:  sourceID,
		Options:   opts,
		Handle:    ph,
		Offset:    0,
		ChunkSize: o.cfg.BatchSize,
		Total:     total,
	}
	if _, err := o.d.Scheduler.Schedule(ctx, ActionPosts, runID, job, 0); err != nil {
		return handle, err
	}

	logger.Info().
		Str("source_id", sourceID).
		Int("total", total).
		Bool("force_ids", opts.ForceIDs).
		Bool("handle_attachments", opts.HandleAttachments).
		Msg("Import queued")
	return handle, nil
}

// dropExisting removes items whose title and type already exist in the
// destination.
func (o *Orchestrator) dropExisting(ctx context.Context, p *models.Payload) error {
	kept := p.Posts[:0]
	for i := range p.Posts {
		exists, err := o.d.Store.ItemExistsByTitleType(ctx, p.Posts[i].Title, p.Posts[i].Type)
		if err != nil {
			return err
		}
		if !exists {
			kept = append(kept, p.Posts[i])
		}
	}
	if dropped := len(p.Posts) - len(kept); dropped > 0 {
		logging.Ctx(ctx).Info().Int("dropped", dropped).Msg("Skipping items that already exist")
	}
	p.Posts = kept
	return nil
}

// Stop requests a stop of runID, or of every run when runID is empty. Queued
// batches are cancelled; a batch in flight halts at its next check.
func (o *Orchestrator) Stop(ctx context.Context, runID string) error {
	if err := o.d.Signals.RequestStop(ctx, runID); err != nil {
		return err
	}

	var runs []*models.ImportRun
	if runID != "" {
		run, err := o.d.Tracker.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		runs = append(runs, run)
	} else {
		all, err := o.d.Tracker.ListRuns(ctx)
		if err != nil {
			return err
		}
		runs = all
	}

	for _, run := range runs {
		if run.Phase.IsTerminal() {
			continue
		}
		rctx := logging.ContextWithRunID(ctx, run.ID)
		if err := o.halt(rctx, run, fmt.Sprintf("Stop requested at %d of %d items", run.Processed, run.Total)); err != nil {
			return err
		}
	}
	return nil
}

// Progress returns the progress record of a run. Unknown runs yield a record
// with status not_found.
func (o *Orchestrator) Progress(ctx context.Context, runID string) (*models.ProgressRecord, error) {
	return o.d.Tracker.Get(ctx, runID)
}

// Runs lists every known run, newest first.
func (o *Orchestrator) Runs(ctx context.Context) ([]*models.ImportRun, error) {
	return o.d.Tracker.ListRuns(ctx)
}

// Finished reports whether every listed run has reached a terminal phase.
func (o *Orchestrator) Finished(ctx context.Context, runIDs ...string) (bool, error) {
	for _, id := range runIDs {
		run, err := o.d.Tracker.GetRun(ctx, id)
		if err != nil {
			return false, err
		}
		if !run.Phase.IsTerminal() {
			return false, nil
		}
	}
	return true, nil
}

// guard loads the run behind a scheduled job and runs phase for it. Errors
// and panics fail the run; they are not returned to the scheduler.
func (o *Orchestrator) guard(ctx context.Context, runID, name string, phase func(context.Context, *models.ImportRun) error) (err error) {
	ctx = logging.ContextWithRunID(ctx, runID)
	run, err := o.d.Tracker.GetRun(ctx, runID)
	if errors.Is(err, progress.ErrRunNotFound) {
		logging.Ctx(ctx).Warn().Str("phase", name).Msg("Dropping batch for unknown run")
		return nil
	}
	if err != nil {
		return err
	}
	if run.Phase.IsTerminal() {
		logging.Ctx(ctx).Debug().Str("phase", name).Str("status", string(run.Phase)).Msg("Run already finished, ignoring batch")
		return nil
	}

	start := o.now()
	o.release()
	defer func() {
		o.release()
		if r := recover(); r != nil {
			o.fail(ctx, run, fmt.Errorf("panic in %s batch: %v", name, r), string(debug.Stack()))
			metrics.RecordBatch(name, "panic", o.now().Sub(start))
			err = nil
		}
	}()

	if perr := phase(ctx, run); perr != nil {
		o.fail(ctx, run, perr, "")
		metrics.RecordBatch(name, "failed", o.now().Sub(start))
		return nil
	}
	metrics.RecordBatch(name, "ok", o.now().Sub(start))
	return nil
}

// release returns memory held across batches. The media memo lives for the
// whole run and is flushed by finishRun.
func (o *Orchestrator) release() {
	if o.reclaim != nil {
		o.reclaim()
	}
}

// stopped reports whether a stop applies to runID.
func (o *Orchestrator) stopped(ctx context.Context, runID string) (bool, error) {
	return o.d.Signals.IsStopped(ctx, runID)
}

// halt marks run stopped and cancels its queued batches.
func (o *Orchestrator) halt(ctx context.Context, run *models.ImportRun, msg string) error {
	o.cancelJobs(ctx, run.ID)
	logging.Ctx(ctx).Info().Str("message", msg).Msg("Import stopped")
	return o.finishRun(ctx, run, models.PhaseStopped, msg)
}

// fail marks run failed. The temporary payload is kept for inspection.
func (o *Orchestrator) fail(ctx context.Context, run *models.ImportRun, cause error, stack string) {
	event := logging.Ctx(ctx).Error().Err(cause).
		Str("phase", string(run.Phase)).
		Int("processed", run.Processed).
		Int("total", run.Total).
		Str("payload_handle", run.PayloadHandle)
	if stack != "" {
		event = event.Str("stack", stack)
	} else {
		event = event.Caller(2)
	}
	event.Msg("Import failed")

	o.cancelJobs(ctx, run.ID)
	msg := fmt.Sprintf("%v (after %d of %d items)", cause, run.Processed, run.Total)
	if err := o.finishRun(ctx, run, models.PhaseFailed, msg); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record failed run")
	}
}

func (o *Orchestrator) cancelJobs(ctx context.Context, runID string) {
	for _, action := range actions {
		if _, err := o.d.Scheduler.Cancel(ctx, action, runID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("action", action).Msg("Failed to cancel queued batches")
		}
	}
}

// finishRun moves run to a terminal phase and persists it.
func (o *Orchestrator) finishRun(ctx context.Context, run *models.ImportRun, phase models.Phase, msg string) error {
	now := o.now().UTC()
	run.Phase = phase
	run.Message = msg
	run.FinishedAt = &now
	if o.d.Media != nil {
		o.d.Media.Flush()
	}

	if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
		return err
	}
	extra := map[string]any{
		"posts":    run.Posts,
		"terms":    run.Terms,
		"media":    run.Media,
		"comments": run.Comments,
	}
	if err := o.d.Tracker.UpdateStatus(ctx, run.ID, phase, msg, extra); err != nil {
		return err
	}
	metrics.RecordRunFinished(string(phase))
	return nil
}

// timeBudget is the wall time one batch may use.
func (o *Orchestrator) timeBudget() time.Duration {
	base := o.cfg.BatchTimeCap
	if m := o.cfg.MaxExecutionTime; m > 0 && (base <= 0 || m < base) {
		base = m
	}
	return max(time.Duration(float64(base)*budgetFraction), minBudget)
}

// underPressure reports whether memory is above the halving threshold.
func (o *Orchestrator) underPressure() bool {
	return o.d.Memory != nil && memguard.Above(o.d.Memory, halveAbove)
}

// halve returns size reduced for memory pressure.
func (o *Orchestrator) halve(ctx context.Context, size int) int {
	if size <= 1 {
		return size
	}
	metrics.RecordMemoryPressure("halve_batch")
	logging.Ctx(ctx).Warn().
		Float64("memory_ratio", memguard.Ratio(o.d.Memory)).
		Int("batch_size", size/2).
		Msg("Memory above 80% of ceiling, halving batch")
	return size / 2
}
