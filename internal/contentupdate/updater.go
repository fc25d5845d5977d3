// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package contentupdate rewrites source media URLs in imported bodies once
// the media phase of a run has finished.
package contentupdate

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/media"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
)

// BatchSize is the number of posts rewritten per invocation.
const BatchSize = 20

// Store is the destination surface used for lookups and rewrites.
type Store interface {
	GetItem(ctx context.Context, id int64) (*database.Item, error)
	UpdateItemBody(ctx context.Context, id int64, body string) error
	FindItemBySourceURL(ctx context.Context, url string) (int64, bool, error)
	FindAttachmentByFilename(ctx context.Context, filename string) (int64, bool, error)
	FindAttachmentByTitle(ctx context.Context, title string) (int64, bool, error)
	AttachmentURL(ctx context.Context, id int64) (string, error)
}

// PendingList is the per-run list of posts awaiting a rewrite.
type PendingList interface {
	ListPending(ctx context.Context, runID string) ([]int64, error)
	RemovePost(ctx context.Context, runID string, postID int64) error
	ClearPending(ctx context.Context, runID string) error
}

// Queue is the media queue surface needed at finalization.
type Queue interface {
	Counts(ctx context.Context, runID string) (models.MediaCounts, error)
	Purge(ctx context.Context, runID string) (int64, error)
}

var _ Store = (*database.DB)(nil)

// Result summarizes one ProcessBatch call.
type Result struct {
	Processed int
	Rewritten int
	Failed    int

	// Remaining is the pending list length after the batch.
	Remaining int
}

// Summary is the outcome of a finished run.
type Summary struct {
	Phase        models.Phase
	Media        models.Totals
	PendingPosts int
}

// Updater runs the content rewrite phase.
type Updater struct {
	store     Store
	pending   PendingList
	queue     Queue
	batchSize int
}

// NewUpdater creates an updater with the default batch size.
func NewUpdater(store Store, pending PendingList, queue Queue) *Updater {
	return &Updater{store: store, pending: pending, queue: queue, batchSize: BatchSize}
}

// ProcessBatch rewrites the posts at [offset, offset+BatchSize) of the
// run's pending list. Each visited post leaves the list whether or not its
// rewrite succeeded.
func (u *Updater) ProcessBatch(ctx context.Context, runID string, offset int) (*Result, error) {
	ids, err := u.pending.ListPending(ctx, runID)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > len(ids) {
		offset = 0
	}
	batch := ids[offset:min(offset+u.batchSize, len(ids))]

	res := &Result{}
	for _, id := range batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed, err := u.rewritePost(ctx, id)
		res.Processed++
		switch {
		case err != nil:
			res.Failed++
			logging.Ctx(ctx).Warn().Err(err).Str("run_id", runID).Int64("post_id", id).Msg("Content rewrite failed")
		case changed:
			res.Rewritten++
		}
		if err := u.pending.RemovePost(ctx, runID, id); err != nil {
			return nil, err
		}
	}

	left, err := u.pending.ListPending(ctx, runID)
	if err != nil {
		return nil, err
	}
	res.Remaining = len(left)

	metrics.RecordItems("rewrite", "rewritten", res.Rewritten)
	metrics.RecordItems("rewrite", "failed", res.Failed)
	return res, nil
}

func (u *Updater) rewritePost(ctx context.Context, id int64) (bool, error) {
	it, err := u.store.GetItem(ctx, id)
	if err != nil {
		return false, err
	}

	subs := make(map[string]string)
	for _, src := range media.ExtractImageURLs(it.Body) {
		dst, found, err := u.Lookup(ctx, src)
		if err != nil {
			return false, err
		}
		if found {
			subs[src] = dst
		}
	}

	body, changed := media.RewriteURLs(it.Body, subs)
	if !changed {
		return false, nil
	}
	return true, u.store.UpdateItemBody(ctx, id, body)
}

// Lookup finds the destination URL of an imported media file by its
// source-url marker, then by filename, then by title.
func (u *Updater) Lookup(ctx context.Context, src string) (string, bool, error) {
	if id, found, err := u.store.FindItemBySourceURL(ctx, src); err != nil {
		return "", false, err
	} else if found {
		if dst, ok, err := u.attachmentURL(ctx, id); err != nil || ok {
			return dst, ok, err
		}
	}

	name := filename(src)
	if name == "" {
		return "", false, nil
	}
	if id, found, err := u.store.FindAttachmentByFilename(ctx, name); err != nil {
		return "", false, err
	} else if found {
		if dst, ok, err := u.attachmentURL(ctx, id); err != nil || ok {
			return dst, ok, err
		}
	}

	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" {
		return "", false, nil
	}
	id, found, err := u.store.FindAttachmentByTitle(ctx, stem)
	if err != nil || !found {
		return "", false, err
	}
	return u.attachmentURL(ctx, id)
}

func (u *Updater) attachmentURL(ctx context.Context, id int64) (string, bool, error) {
	dst, err := u.store.AttachmentURL(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return dst, dst != "", nil
}

func filename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Finalize closes the run: it derives the terminal phase from the queue
// state, then purges the queue and the pending list.
func (u *Updater) Finalize(ctx context.Context, runID string) (*Summary, error) {
	counts, err := u.queue.Counts(ctx, runID)
	if err != nil {
		return nil, err
	}
	left, err := u.pending.ListPending(ctx, runID)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Phase: models.PhaseCompleted,
		Media: models.Totals{
			Total:   counts.Total,
			New:     counts.Completed,
			Skipped: counts.Skipped,
			Failed:  counts.Failed,
		},
		PendingPosts: len(left),
	}
	if counts.Failed > 0 || counts.Pending+counts.Processing > 0 || len(left) > 0 {
		s.Phase = models.PhaseCompletedWithErrors
	}

	if _, err := u.queue.Purge(ctx, runID); err != nil {
		return nil, err
	}
	if err := u.pending.ClearPending(ctx, runID); err != nil {
		return nil, err
	}
	return s, nil
}
