// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package importer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/media"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/remap"
)

// RunContext carries the run-scoped state a content batch needs.
type RunContext struct {
	RunID   string
	Options models.Options
	Remap   *remap.Remapper

	// SourceSite is the site the export was taken from, when known.
	SourceSite string
}

// ContentImporter creates or updates content items with their source ids.
type ContentImporter struct {
	store         ContentStore
	comments      *CommentImporter
	types         map[string]struct{}
	defaultAuthor string
}

// NewContentImporter creates a content importer accepting the given types.
func NewContentImporter(store ContentStore, comments *CommentImporter, contentTypes []string, defaultAuthor string) *ContentImporter {
	types := make(map[string]struct{}, len(contentTypes))
	for _, t := range contentTypes {
		types[t] = struct{}{}
	}
	return &ContentImporter{
		store:         store,
		comments:      comments,
		types:         types,
		defaultAuthor: defaultAuthor,
	}
}

// ImportItems imports items in order. A failing item is counted as skipped
// and the batch continues.
func (ci *ContentImporter) ImportItems(ctx context.Context, rc *RunContext, items []models.ContentItem) *BatchResult {
	res := &BatchResult{}
	for i := range items {
		action, err := ci.ImportItem(ctx, rc, &items[i], res)
		res.record(action)

		event := logging.Ctx(ctx).Debug()
		if err != nil {
			event = logging.Ctx(ctx).Warn().Err(err)
		}
		event.
			Str("run_id", rc.RunID).
			Int64("source_id", items[i].ID).
			Str("type", items[i].Type).
			Str("action", string(action)).
			Msg("Content item processed")
	}

	metrics.RecordItems("post", string(ActionImported), res.New)
	metrics.RecordItems("post", string(ActionUpdated), res.Updated)
	metrics.RecordItems("post", string(ActionSkipped), res.Skipped)
	return res
}

// ImportItem imports one item and folds its side effects into res.
func (ci *ContentImporter) ImportItem(ctx context.Context, rc *RunContext, src *models.ContentItem, res *BatchResult) (action Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Int64("source_id", src.ID).
				Msg("Recovered from panic importing content item")
			action, err = ActionSkipped, fmt.Errorf("panic importing item %d: %v", src.ID, r)
		}
	}()

	if err := ci.validate(src); err != nil {
		return ActionSkipped, err
	}

	it := ci.toItem(src, rc)
	destID, action, err := ci.place(ctx, it, rc.Options.ForceIDs)
	if err != nil {
		return action, err
	}
	it.ID = destID

	if rc.Remap != nil {
		rc.Remap.Remember(remap.ContentNamespace, src.ID, destID)
	}
	ci.writeMeta(ctx, destID, src, rc)
	ci.assignTerms(ctx, destID, src, rc.Remap)

	if rc.Options.HandleAttachments {
		queued, rewrite := ci.queueMedia(ctx, rc.RunID, destID, src)
		res.MediaQueued += queued
		if rewrite {
			res.Rewrite = append(res.Rewrite, destID)
		}
	}

	if len(src.Comments) > 0 && ci.comments != nil {
		res.Comments.Add(ci.comments.ImportComments(ctx, destID, src.Comments))
	}
	return action, nil
}

func (ci *ContentImporter) validate(src *models.ContentItem) error {
	if src.ID <= 0 {
		return fmt.Errorf("invalid source id %d", src.ID)
	}
	if _, ok := ci.types[src.Type]; !ok {
		return fmt.Errorf("item %d: unrecognized content type %q", src.ID, src.Type)
	}
	if itemSlug(src) == "" {
		return fmt.Errorf("item %d: no slug can be derived", src.ID)
	}
	return nil
}

func itemSlug(src *models.ContentItem) string {
	if s := Slugify(src.Slug); s != "" {
		return s
	}
	return Slugify(src.Title)
}

func (ci *ContentImporter) toItem(src *models.ContentItem, rc *RunContext) *database.Item {
	status := src.Status
	if status == "" {
		status = "publish"
	}
	author := ci.defaultAuthor
	if rc.Options.ForceAuthor && src.Author != "" {
		author = src.Author
	}

	parent := src.ParentID
	if rc.Remap != nil && parent > 0 {
		if id, ok := rc.Remap.ResolveID(remap.ContentNamespace, parent); ok {
			parent = id
		}
	}

	var guid string
	if rc.SourceSite != "" {
		guid = strings.TrimRight(rc.SourceSite, "/") + "/?p=" + strconv.FormatInt(src.ID, 10)
	}

	return &database.Item{
		ID:          src.ID,
		Type:        src.Type,
		Title:       src.Title,
		Slug:        itemSlug(src),
		Body:        src.Content,
		Excerpt:     src.Excerpt,
		Status:      status,
		Author:      author,
		ParentID:    parent,
		MenuOrder:   src.MenuOrder,
		GUID:        guid,
		PublishedAt: ParseDate(src.Date),
		ModifiedAt:  ParseDate(src.Modified),
	}
}

// place writes it under its source id, or under a fresh id when forceIDs is
// off.
func (ci *ContentImporter) place(ctx context.Context, it *database.Item, forceIDs bool) (int64, Action, error) {
	if !forceIDs {
		id, err := ci.store.InsertItem(ctx, it)
		if err != nil {
			return 0, ActionSkipped, err
		}
		return id, ActionImported, nil
	}

	existing, err := ci.store.GetItem(ctx, it.ID)
	switch {
	case err == nil && existing.Type == it.Type:
		if err := ci.store.UpdateItem(ctx, it); err != nil {
			return 0, ActionSkipped, err
		}
		return it.ID, ActionUpdated, nil

	case err == nil:
		return 0, ActionSkipped, fmt.Errorf("id %d is held by a %s, not a %s", it.ID, existing.Type, it.Type)

	case !errors.Is(err, database.ErrNotFound):
		return 0, ActionSkipped, err
	}

	id, err := ci.store.ForceInsertItem(ctx, it)
	switch {
	case err == nil:
		return id, ActionImported, nil

	case errors.Is(err, database.ErrIDTaken):
		// Lost a race for the id; the row is there now.
		if uerr := ci.store.UpdateItem(ctx, it); uerr != nil {
			return 0, ActionSkipped, fmt.Errorf("retry as update: %w", uerr)
		}
		return it.ID, ActionUpdated, nil

	default:
		return 0, ActionSkipped, err
	}
}

func (ci *ContentImporter) writeMeta(ctx context.Context, id int64, src *models.ContentItem, rc *RunContext) {
	meta := map[string]string{
		MetaOriginalID:  strconv.FormatInt(src.ID, 10),
		MetaImportRunID: rc.RunID,
	}
	if rc.SourceSite != "" {
		meta[MetaSourceSiteURL] = rc.SourceSite
	}
	if src.SEO != nil {
		for k, v := range map[string]string{
			MetaYoastTitle:    src.SEO.Title,
			MetaYoastDesc:     src.SEO.Description,
			MetaRankMathTitle: src.SEO.Title,
			MetaRankMathDesc:  src.SEO.Description,
		} {
			if v != "" {
				meta[k] = v
			}
		}
	}
	for k, v := range src.Meta {
		if _, reserved := meta[k]; reserved || k == "" {
			continue
		}
		s, err := metaString(v)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("item_id", id).Str("key", k).Msg("Skipping unencodable meta value")
			continue
		}
		meta[k] = s
	}

	for k, v := range meta {
		if err := ci.store.SetItemMeta(ctx, id, k, v); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("item_id", id).Str("key", k).Msg("Failed to set item meta")
		}
	}
}

func metaString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// assignTerms maps the item's source term ids through the remapper. Ids with
// no mapping are dropped.
func (ci *ContentImporter) assignTerms(ctx context.Context, id int64, src *models.ContentItem, r *remap.Remapper) {
	if r == nil {
		return
	}
	byTaxonomy := make(map[string][]int64, len(src.Terms)+2)
	if len(src.Categories) > 0 {
		byTaxonomy[models.TaxonomyCategory] = src.Categories
	}
	if len(src.Tags) > 0 {
		byTaxonomy[models.TaxonomyTag] = src.Tags
	}
	for tax, ids := range src.Terms {
		byTaxonomy[tax] = append(byTaxonomy[tax], ids...)
	}

	for tax, ids := range byTaxonomy {
		ns := remap.TermNamespace(tax)
		mapped := lo.Uniq(lo.FilterMap(ids, func(sid int64, _ int) (int64, bool) {
			return r.ResolveID(ns, sid)
		}))
		if dropped := len(lo.Uniq(ids)) - len(mapped); dropped > 0 {
			logging.Ctx(ctx).Debug().Int64("item_id", id).Str("taxonomy", tax).Int("dropped", dropped).Msg("Unmapped terms dropped")
		}
		if len(mapped) == 0 {
			continue
		}
		if err := ci.store.SetItemTerms(ctx, id, tax, mapped); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("item_id", id).Str("taxonomy", tax).Msg("Failed to assign terms")
		}
	}
}

// queueMedia enqueues the featured image and every embedded image. It
// reports whether the body references media that will need rewriting.
func (ci *ContentImporter) queueMedia(ctx context.Context, runID string, id int64, src *models.ContentItem) (int, bool) {
	queued := 0
	enqueue := func(mt models.MediaType, url, alt string) bool {
		exists, err := ci.store.HasQueuedMedia(ctx, runID, id, mt, url)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("item_id", id).Str("url", url).Msg("Media queue lookup failed")
			return false
		}
		if exists {
			return true
		}
		_, err = ci.store.EnqueueMedia(ctx, &models.MediaQueueItem{
			RunID:        runID,
			PostID:       id,
			SourcePostID: src.ID,
			MediaType:    mt,
			OriginalURL:  url,
			AltText:      alt,
			Status:       models.MediaPending,
		})
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("item_id", id).Str("url", url).Msg("Failed to enqueue media")
			return false
		}
		queued++
		return true
	}

	if f := src.FeaturedImage; f != nil && f.URL != "" {
		enqueue(models.MediaFeatured, f.URL, f.Alt)
	}

	alts := make(map[string]string, len(src.Images))
	urls := make([]string, 0, len(src.Images))
	for _, img := range src.Images {
		if img.URL == "" {
			continue
		}
		alts[img.URL] = img.Alt
		urls = append(urls, img.URL)
	}
	urls = lo.Uniq(append(urls, media.ExtractImageURLs(src.Content)...))

	rewrite := false
	for _, u := range urls {
		if enqueue(models.MediaContent, u, alts[u]) && media.ContainsURL(src.Content, u) {
			rewrite = true
		}
	}
	return queued, rewrite
}
