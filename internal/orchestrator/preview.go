// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/tomtom215/pressimport/internal/ingest"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/models"
)

// DefaultPreviewItems is the number of items shown when none is requested.
const DefaultPreviewItems = 5

// PreviewItem is the short form of a content item shown before import.
type PreviewItem struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Date     string `json:"date,omitempty"`
	Images   int    `json:"images"`
	Comments int    `json:"comments"`
	Featured bool   `json:"featured_image"`
}

// Preview describes one payload of an import source.
type Preview struct {
	SourceID string         `json:"source_id"`
	Summary  ingest.Summary `json:"summary"`
	Items    []PreviewItem  `json:"items"`
}

// Preview reads the source at path and returns a summary of each payload
// with its first n items.
func (o *Orchestrator) Preview(ctx context.Context, path string, n int) ([]Preview, error) {
	payloads, err := ingest.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultPreviewItems
	}

	previews := make([]Preview, 0, len(payloads))
	for i := range payloads {
		p := &payloads[i]
		pv := Preview{
			SourceID: filepath.Base(path),
			Summary:  ingest.Summarize(p),
			Items:    make([]PreviewItem, 0, min(n, len(p.Posts))),
		}
		for _, it := range p.Posts[:min(n, len(p.Posts))] {
			pv.Items = append(pv.Items, previewItem(&it))
		}
		previews = append(previews, pv)
	}
	logging.Ctx(ctx).Debug().Str("source", path).Int("payloads", len(previews)).Msg("Preview generated")
	return previews, nil
}

func previewItem(it *models.ContentItem) PreviewItem {
	return PreviewItem{
		ID:       it.ID,
		Type:     it.Type,
		Title:    it.Title,
		Slug:     it.Slug,
		Date:     it.Date,
		Images:   len(it.Images),
		Comments: len(it.Comments),
		Featured: it.FeaturedImage != nil,
	}
}

// CleanupResult reports what Cleanup removed.
type CleanupResult struct {
	Payloads  int   `json:"payloads"`
	QueueRows int64 `json:"queue_rows"`
}

// Cleanup removes temporary payloads and media queue rows older than
// olderThan. Payloads of failed runs are removed here too.
func (o *Orchestrator) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupResult, error) {
	var res CleanupResult
	n, err := o.d.Payloads.Cleanup(ctx, olderThan)
	if err != nil {
		return res, err
	}
	res.Payloads = n

	rows, err := o.d.Store.PurgeMediaQueueOlderThan(ctx, o.now().Add(-olderThan))
	if err != nil {
		return res, err
	}
	res.QueueRows = rows

	logging.Ctx(ctx).Info().
		Dur("older_than", olderThan).
		Int("payloads", res.Payloads).
		Int64("queue_rows", res.QueueRows).
		Msg("Cleanup complete")
	return res, nil
}
