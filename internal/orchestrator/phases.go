// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/importer"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/mediaqueue"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/remap"
)

// postsJob resumes the posts phase at Offset. It carries everything a fresh
// process needs to continue the run.
type postsJob struct {
	RunID     string         `json:"run_id"`
	SourceID  string         `json:"source_id"`
	Options   models.Options `json:"options"`
	Handle    string         `json:"payload_handle"`
	Offset    int            `json:"offset"`
	ChunkSize int            `json:"chunk_size"`
	Total     int            `json:"total"`
}

// phaseJob resumes the media or content phase.
type phaseJob struct {
	RunID    string         `json:"run_id"`
	SourceID string         `json:"source_id"`
	Options  models.Options `json:"options"`
	Offset   int            `json:"offset"`
}

func (o *Orchestrator) handlePosts(ctx context.Context, raw json.RawMessage) error {
	var job postsJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("decode posts job: %w", err)
	}
	return o.guard(ctx, job.RunID, "posts", func(ctx context.Context, run *models.ImportRun) error {
		return o.runPosts(ctx, run, &job)
	})
}

func (o *Orchestrator) handleMedia(ctx context.Context, raw json.RawMessage) error {
	var job phaseJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("decode media job: %w", err)
	}
	return o.guard(ctx, job.RunID, "media", func(ctx context.Context, run *models.ImportRun) error {
		return o.runMedia(ctx, run, &job)
	})
}

func (o *Orchestrator) handleContent(ctx context.Context, raw json.RawMessage) error {
	var job phaseJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("decode content job: %w", err)
	}
	return o.guard(ctx, job.RunID, "content", func(ctx context.Context, run *models.ImportRun) error {
		return o.runContent(ctx, run, &job)
	})
}

// runPosts imports one chunk of content items. When the time budget runs out
// mid-chunk, the unprocessed remainder is scheduled as its own chunk.
func (o *Orchestrator) runPosts(ctx context.Context, run *models.ImportRun, job *postsJob) error {
	logger := logging.Ctx(ctx)

	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped at offset %d of %d", job.Offset, job.Total))
	}

	start := o.now()
	budget := o.timeBudget()
	size := job.ChunkSize
	if size <= 0 {
		size = o.cfg.BatchSize
	}
	pressured := o.underPressure()
	if pressured {
		size = o.halve(ctx, size)
	}

	p, err := o.d.Payloads.Get(ctx, job.Handle)
	if err != nil {
		return fmt.Errorf("load payload: %w", err)
	}
	snap, err := o.d.Tracker.LoadIDMap(ctx, run.ID)
	if err != nil {
		return err
	}
	rm := remap.Restore(snap)

	if run.Phase == models.PhaseQueued {
		run.Phase = models.PhaseImportingPosts
		o.importTerms(ctx, run, p, rm)
	}

	rc := &importer.RunContext{RunID: run.ID, Options: job.Options, Remap: rm}
	if p.SiteInfo != nil {
		rc.SourceSite = p.SiteInfo.URL
	}

	total := len(p.Posts)
	end := min(job.Offset+size, total)
	batch := &importer.BatchResult{}
	next := job.Offset
	for next < end {
		if next > job.Offset && o.now().Sub(start) >= budget {
			break
		}
		item := p.Posts[next : next+1]
		batch.Add(o.d.Content.ImportItems(ctx, rc, item))
		next++
		run.Processed = next
		if err := o.d.Tracker.SetCurrent(ctx, run.ID, next, total, item[0].Title); err != nil {
			logger.Warn().Err(err).Msg("Failed to update progress")
		}
	}

	if err := o.d.Tracker.AddPending(ctx, run.ID, batch.Rewrite...); err != nil {
		return err
	}
	if err := o.d.Tracker.SaveIDMap(ctx, run.ID, rm.Snapshot()); err != nil {
		return err
	}
	run.Posts.Add(batch.Totals())
	run.Comments.Add(batch.Comments)

	logger.Info().
		Int("offset", job.Offset).
		Int("processed", next-job.Offset).
		Int("new", batch.New).
		Int("updated", batch.Updated).
		Int("skipped", batch.Skipped).
		Int("media_queued", batch.MediaQueued).
		Dur("elapsed", o.now().Sub(start)).
		Msg("Posts batch complete")

	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped at offset %d of %d", next, total))
	}

	var cont *postsJob
	var delay time.Duration
	switch {
	case next < end:
		// Out of time: continue with exactly the rest of this chunk.
		delay = o.cfg.ContinuationDelay
		if pressured {
			delay *= 2
		}
		cont = &postsJob{ChunkSize: end - next}
	case next < total:
		cont = &postsJob{ChunkSize: o.cfg.BatchSize}
	default:
		return o.beginMedia(ctx, run, job)
	}

	cont.RunID, cont.SourceID, cont.Options, cont.Handle = run.ID, run.SourceID, job.Options, job.Handle
	cont.Offset, cont.Total = next, total

	if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
		return err
	}
	msg := fmt.Sprintf("Imported %d of %d items (%s)", next, total, batch.Message())
	if err := o.d.Tracker.UpdateStatus(ctx, run.ID, models.PhaseImportingPosts, msg, map[string]any{"posts": run.Posts}); err != nil {
		return err
	}
	_, err = o.d.Scheduler.Schedule(ctx, ActionPosts, run.ID, cont, delay)
	return err
}

// importTerms imports the payload's taxonomies once, before the first chunk.
func (o *Orchestrator) importTerms(ctx context.Context, run *models.ImportRun, p *models.Payload, rm *remap.Remapper) {
	groups := make(map[string][]models.TermItem)
	var order []string
	add := func(terms []models.TermItem, fallback string) {
		for _, t := range terms {
			tax := t.Taxonomy
			if tax == "" {
				tax = fallback
			}
			if _, ok := groups[tax]; !ok {
				order = append(order, tax)
			}
			groups[tax] = append(groups[tax], t)
		}
	}
	add(p.Categories, models.TaxonomyCategory)
	add(p.Tags, models.TaxonomyTag)

	for _, tax := range order {
		mapping, totals := o.d.Terms.ImportTerms(ctx, groups[tax], tax)
		rm.RememberTerms(tax, mapping)
		run.Terms.Add(totals)
		logging.Ctx(ctx).Info().
			Str("taxonomy", tax).
			Int("new", totals.New).
			Int("updated", totals.Updated).
			Int("skipped", totals.Skipped+totals.Failed).
			Msg("Terms imported")
	}
}

// beginMedia closes the posts phase and queues the first media batch.
func (o *Orchestrator) beginMedia(ctx context.Context, run *models.ImportRun, job *postsJob) error {
	if err := o.d.Payloads.Delete(ctx, job.Handle); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to delete temporary payload")
	}
	run.PayloadHandle = ""
	run.Phase = models.PhaseImportingMedia

	counts, err := o.d.Queue.Begin(ctx, run.ID)
	if err != nil {
		return err
	}
	run.Media = mediaTotals(counts)
	if o.d.Media != nil {
		o.d.Media.ResetRun()
	}

	if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
		return err
	}
	msg := fmt.Sprintf("Posts done (%d new, %d updated, %d skipped); %d media queued",
		run.Posts.New, run.Posts.Updated, run.Posts.Skipped, counts.Total)
	if err := o.d.Tracker.UpdateStatus(ctx, run.ID, models.PhaseImportingMedia, msg, map[string]any{"posts": run.Posts}); err != nil {
		return err
	}
	if err := o.d.Tracker.SetCurrent(ctx, run.ID, 0, counts.Total, ""); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Int("media", counts.Total).Msg("Posts phase complete")

	_, err = o.d.Scheduler.Schedule(ctx, ActionMedia, run.ID, phaseJob{
		RunID: run.ID, SourceID: run.SourceID, Options: job.Options,
	}, 0)
	return err
}

// runMedia drains one batch of the run's media queue.
func (o *Orchestrator) runMedia(ctx context.Context, run *models.ImportRun, job *phaseJob) error {
	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped during media import (%d of %d done)", run.Media.New+run.Media.Failed, run.Media.Total))
	}

	start := o.now()
	budget := o.timeBudget()
	limit := o.mediaBatch
	pressured := o.underPressure()
	if pressured {
		limit = o.halve(ctx, limit)
	}

	out, err := o.d.Queue.ProcessBatch(ctx, run.ID, job.Options, limit, func() bool {
		return o.now().Sub(start) >= budget
	})
	if err != nil {
		return err
	}
	run.Media = mediaTotals(out.Counts)
	done := out.Counts.Total - out.Counts.Pending - out.Counts.Processing

	logging.Ctx(ctx).Info().
		Int("processed", out.Processed).
		Int("completed", out.Completed).
		Int("failed", out.Failed).
		Int("retried", out.Retried).
		Int("deferred", out.Deferred).
		Int("remaining", out.Counts.Pending).
		Msg("Media batch complete")

	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped during media import (%d of %d done)", done, out.Counts.Total))
	}

	if err := o.d.Tracker.SetCurrent(ctx, run.ID, done, out.Counts.Total, ""); err != nil {
		return err
	}

	if !out.Done() {
		if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
			return err
		}
		msg := fmt.Sprintf("Imported %d of %d media (%d failed)", out.Counts.Completed, out.Counts.Total, out.Counts.Failed)
		if err := o.d.Tracker.UpdateStatus(ctx, run.ID, models.PhaseImportingMedia, msg, map[string]any{"media": run.Media}); err != nil {
			return err
		}
		_, err := o.d.Scheduler.Schedule(ctx, ActionMedia, run.ID, job, o.mediaDelay(out, pressured))
		return err
	}

	run.Phase = models.PhaseUpdatingContent
	if err := o.d.Tracker.SaveRun(ctx, run); err != nil {
		return err
	}
	pending, err := o.d.Tracker.ListPending(ctx, run.ID)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Media done (%d imported, %d failed); updating %d posts", run.Media.New, run.Media.Failed, len(pending))
	if err := o.d.Tracker.UpdateStatus(ctx, run.ID, models.PhaseUpdatingContent, msg, map[string]any{"media": run.Media}); err != nil {
		return err
	}
	if err := o.d.Tracker.SetCurrent(ctx, run.ID, 0, len(pending), ""); err != nil {
		return err
	}
	_, err = o.d.Scheduler.Schedule(ctx, ActionContent, run.ID, phaseJob{
		RunID: run.ID, SourceID: run.SourceID, Options: job.Options,
	}, 0)
	return err
}

// mediaDelay is the wait before the next media batch. Rows put back for
// another attempt wait out the download breaker's open period.
func (o *Orchestrator) mediaDelay(out *mediaqueue.Outcome, pressured bool) time.Duration {
	var delay time.Duration
	if pressured || out.Retried > 0 {
		delay = o.cfg.ContinuationDelay
	}
	if out.Retried > 0 && o.retryDelay > delay {
		delay = o.retryDelay
	}
	return delay
}

// runContent rewrites one batch of pending bodies, finishing the run when
// none remain.
func (o *Orchestrator) runContent(ctx context.Context, run *models.ImportRun, job *phaseJob) error {
	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped while updating content at offset %d", job.Offset))
	}

	res, err := o.d.Updater.ProcessBatch(ctx, run.ID, job.Offset)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Info().
		Int("processed", res.Processed).
		Int("rewritten", res.Rewritten).
		Int("failed", res.Failed).
		Int("remaining", res.Remaining).
		Msg("Content update batch complete")

	if stop, err := o.stopped(ctx, run.ID); err != nil {
		return err
	} else if stop {
		return o.halt(ctx, run, fmt.Sprintf("Stopped while updating content at offset %d", job.Offset))
	}
	if res.Remaining == 0 {
		return o.complete(ctx, run)
	}

	msg := fmt.Sprintf("%d posts left to update", res.Remaining)
	if err := o.d.Tracker.UpdateStatus(ctx, run.ID, models.PhaseUpdatingContent, msg, nil); err != nil {
		return err
	}
	// The pending list shrinks as posts are visited, so every batch starts
	// at its head.
	next := *job
	next.Offset = 0
	_, err = o.d.Scheduler.Schedule(ctx, ActionContent, run.ID, next, 0)
	return err
}

// complete finalizes a run whose content phase is done.
func (o *Orchestrator) complete(ctx context.Context, run *models.ImportRun) error {
	s, err := o.d.Updater.Finalize(ctx, run.ID)
	if err != nil {
		return err
	}
	run.Media = s.Media
	if err := o.d.Tracker.DeleteIDMap(ctx, run.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to delete id map")
	}

	label := "Import complete"
	if s.Phase == models.PhaseCompletedWithErrors {
		label = "Import complete with errors"
	}
	msg := fmt.Sprintf("%s: %d posts new, %d updated, %d skipped; %d media imported, %d failed",
		label, run.Posts.New, run.Posts.Updated, run.Posts.Skipped, run.Media.New, run.Media.Failed)
	if err := o.d.Tracker.SetCurrent(ctx, run.ID, run.Total, run.Total, ""); err != nil {
		return err
	}
	if err := o.finishRun(ctx, run, s.Phase, msg); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("status", string(s.Phase)).Msg(msg)
	return nil
}

func mediaTotals(c models.MediaCounts) models.Totals {
	return models.Totals{
		Total:   c.Total,
		New:     c.Completed,
		Skipped: c.Skipped,
		Failed:  c.Failed,
	}
}
