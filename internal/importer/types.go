// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/tomtom215/pressimport/internal/models"
)

// Action is the per-entity outcome of an import.
type Action string

const (
	ActionImported    Action = "imported"
	ActionUpdated     Action = "updated"
	ActionSkipped     Action = "skipped"
	ActionExisting    Action = "existing"
	ActionForceInsert Action = "force_insert"
	ActionCreated     Action = "created"
	ActionFailed      Action = "failed"
)

// Meta keys written on imported entities.
const (
	MetaOriginalID     = "_original_post_id"
	MetaYoastTitle     = "_yoast_wpseo_title"
	MetaYoastDesc      = "_yoast_wpseo_metadesc"
	MetaRankMathTitle  = "rank_math_title"
	MetaRankMathDesc   = "rank_math_description"
	MetaThumbnailID    = "_thumbnail_id"
	MetaGenerateThumbs = "_generate_thumbnails"
	MetaImportRunID    = "_import_run_id"
	MetaSourceSiteURL  = "_import_source_site"
)

// BatchResult aggregates one content batch.
type BatchResult struct {
	New      int
	Updated  int
	Skipped  int
	Comments models.Totals

	// MediaQueued counts media queue rows created in this batch.
	MediaQueued int

	// Rewrite lists destination items whose bodies reference media that
	// must be rewritten once media import finishes.
	Rewrite []int64
}

// Totals returns the post counts of the batch.
func (r *BatchResult) Totals() models.Totals {
	return models.Totals{
		Total:   r.New + r.Updated + r.Skipped,
		New:     r.New,
		Updated: r.Updated,
		Skipped: r.Skipped,
	}
}

// Message summarizes the batch for progress records and the run log.
func (r *BatchResult) Message() string {
	return fmt.Sprintf("%d new, %d updated, %d skipped", r.New, r.Updated, r.Skipped)
}

// Add folds other into r.
func (r *BatchResult) Add(other *BatchResult) {
	r.New += other.New
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Comments.Add(other.Comments)
	r.MediaQueued += other.MediaQueued
	r.Rewrite = append(r.Rewrite, other.Rewrite...)
}

func (r *BatchResult) record(a Action) {
	switch a {
	case ActionImported:
		r.New++
	case ActionUpdated:
		r.Updated++
	default:
		r.Skipped++
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from s.
func Slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return strings.Trim(nonSlug.ReplaceAllString(b.String(), "-"), "-")
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts the date formats found in exports. Empty or invalid
// input yields nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
