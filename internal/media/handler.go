// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package media resolves external media references to destination
// attachments: it deduplicates by URL, reuses earlier imports, downloads and
// stores new files, and rewrites content bodies to point at the results.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/memguard"
	"github.com/tomtom215/pressimport/internal/metrics"
)

// SkipThreshold is the memory ratio above which downloads stop for the rest
// of the process.
const SkipThreshold = 0.9

// Store is the subset of the destination store the handler needs.
type Store interface {
	FindAttachmentByURL(ctx context.Context, url string) (int64, bool, error)
	FindItemBySourceURL(ctx context.Context, url string) (int64, bool, error)
	GetItem(ctx context.Context, id int64) (*database.Item, error)
	DeleteItemMeta(ctx context.Context, itemID int64, key string) error
	InsertAttachment(ctx context.Context, a *database.Attachment) (int64, error)
	AttachmentURL(ctx context.Context, id int64) (string, error)
	UpdateItemBody(ctx context.Context, id int64, body string) error
}

// Options configures a Handler.
type Options struct {
	// SiteURL and MediaBaseURL identify URLs that already point at the
	// destination.
	SiteURL      string
	MediaBaseURL string
	MemoCapacity int
}

// Handler resolves media URLs for one worker process.
type Handler struct {
	store   Store
	fetcher Fetcher
	blobs   BlobStore
	mem     memguard.Monitor
	memo    *memoCache
	local   []string
	now     func() time.Time

	// skip is the process-lifetime latch set under memory pressure.
	skip atomic.Bool
}

// NewHandler wires a handler.
func NewHandler(store Store, fetcher Fetcher, blobs BlobStore, mem memguard.Monitor, opts Options) *Handler {
	h := &Handler{
		store:   store,
		fetcher: fetcher,
		blobs:   blobs,
		mem:     mem,
		memo:    newMemoCache(opts.MemoCapacity),
		now:     time.Now,
	}
	for _, raw := range []string{opts.SiteURL, opts.MediaBaseURL} {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			h.local = append(h.local, strings.ToLower(u.Host))
		}
	}
	return h
}

// ResetRun clears the per-run memo cache. The skip latch is kept.
func (h *Handler) ResetRun() {
	h.memo.reset()
}

// Flush drops cached resolutions once a run has finished.
func (h *Handler) Flush() {
	h.memo.reset()
}

// Skipping reports whether the memory latch is set.
func (h *Handler) Skipping() bool {
	return h.skip.Load()
}

// CacheStats returns memo cache hits and misses since the last reset.
func (h *Handler) CacheStats() (hits, misses int64) {
	return h.memo.stats()
}

// Resolve returns the destination attachment for rawURL, importing it when
// needed. ownerID becomes the parent of a newly created attachment.
func (h *Handler) Resolve(ctx context.Context, rawURL string, ownerID int64, alt string) (Resolved, error) {
	logger := logging.Ctx(ctx)

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Resolved{}, newError(KindInvalidURL, rawURL, err)
	}
	src := u.String()

	if h.skip.Load() {
		return Resolved{}, newError(KindHighMemory, src, errors.New("downloads suspended"))
	}

	if r, ok := h.memo.get(src); ok {
		metrics.RecordMediaResolution("cache")
		return r, nil
	}

	if h.isLocal(u) {
		id, found, err := h.store.FindAttachmentByURL(ctx, src)
		if err != nil {
			return Resolved{}, err
		}
		if !found {
			return Resolved{}, newError(KindLocalNotFound, src, nil)
		}
		r := Resolved{AttachmentID: id, URL: src}
		h.memo.add(src, r)
		metrics.RecordMediaResolution("local")
		return r, nil
	}

	if r, ok, err := h.previouslyImported(ctx, src); err != nil {
		return Resolved{}, err
	} else if ok {
		h.memo.add(src, r)
		metrics.RecordMediaResolution("reuse")
		return r, nil
	}

	if h.mem != nil && memguard.Above(h.mem, SkipThreshold) {
		h.skip.Store(true)
		metrics.RecordMemoryPressure("skip_latch")
		logger.Warn().
			Uint64("usage", h.mem.Usage()).
			Uint64("limit", h.mem.Limit()).
			Msg("Memory above 90% of ceiling, suspending media downloads")
		return Resolved{}, newError(KindHighMemory, src, fmt.Errorf("memory ratio %.2f", memguard.Ratio(h.mem)))
	}

	dl, err := h.fetcher.Fetch(ctx, src)
	if err != nil {
		logger.Warn().Err(err).Str("url", src).Msg("Media download failed")
		return Resolved{}, newError(KindDownloadFailed, src, err)
	}
	if !supported(dl.MimeType) {
		return Resolved{}, newError(KindUnsupportedMedia, src, fmt.Errorf("mime type %s", dl.MimeType))
	}

	key := h.now().UTC().Format("2006/01/") + uuid.NewString()[:8] + "-" + sanitizeFilename(dl.Filename)
	publicURL, err := h.blobs.Put(ctx, key, dl.Data, dl.MimeType)
	if err != nil {
		return Resolved{}, newError(KindStoreFailed, src, err)
	}

	id, err := h.store.InsertAttachment(ctx, &database.Attachment{
		ParentID:  ownerID,
		Title:     filenameStem(u.Path),
		URL:       publicURL,
		File:      key,
		MimeType:  dl.MimeType,
		AltText:   alt,
		SourceURL: src,
	})
	if err != nil {
		return Resolved{}, newError(KindStoreFailed, src, err)
	}

	r := Resolved{AttachmentID: id, URL: publicURL}
	h.memo.add(src, r)
	metrics.RecordMediaResolution("download")
	logger.Debug().Str("url", src).Int64("attachment_id", id).Msg("Media imported")
	return r, nil
}

// previouslyImported looks up the source-url marker left by an earlier
// import. A marker on a deleted or retyped record is removed.
func (h *Handler) previouslyImported(ctx context.Context, src string) (Resolved, bool, error) {
	id, found, err := h.store.FindItemBySourceURL(ctx, src)
	if err != nil || !found {
		return Resolved{}, false, err
	}

	item, err := h.store.GetItem(ctx, id)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return Resolved{}, false, err
	case item.Type == database.ItemTypeAttachment:
		publicURL, err := h.store.AttachmentURL(ctx, id)
		if err != nil {
			return Resolved{}, false, err
		}
		return Resolved{AttachmentID: id, URL: publicURL}, true, nil
	}

	logging.Ctx(ctx).Info().Int64("item_id", id).Str("url", src).Msg("Clearing stale source-url marker")
	if err := h.store.DeleteItemMeta(ctx, id, database.MetaSourceURL); err != nil {
		return Resolved{}, false, err
	}
	return Resolved{}, false, nil
}

func (h *Handler) isLocal(u *url.URL) bool {
	host := strings.ToLower(u.Host)
	for _, l := range h.local {
		if host == l {
			return true
		}
	}
	return false
}

// RewriteContent resolves urls, substitutes them in body and stores the
// result on itemID when it changed. Unresolvable URLs are left as they are.
func (h *Handler) RewriteContent(ctx context.Context, itemID int64, body string, urls []string) (string, bool, error) {
	subs := make(map[string]string, len(urls))
	for _, raw := range urls {
		r, err := h.Resolve(ctx, raw, itemID, "")
		if err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("url", raw).Int64("item_id", itemID).Msg("Leaving media URL unchanged")
			continue
		}
		subs[raw] = r.URL
	}

	out, changed := RewriteURLs(body, subs)
	if !changed {
		return body, false, nil
	}
	if err := h.store.UpdateItemBody(ctx, itemID, out); err != nil {
		return body, false, fmt.Errorf("save rewritten body of %d: %w", itemID, err)
	}
	return out, true, nil
}

func filenameStem(p string) string {
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}
