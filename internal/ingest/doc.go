// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package ingest turns an import source into one or more payloads.
//
// A source is either a single JSON export or an archive (zip or tar.gz) of
// JSON entries. Archive entries are classified as:
//
//   - standalone payloads: objects carrying both site_info and posts
//   - a manifest: manifest.json / export-report.json, or any object that has
//     site_info but no posts
//   - shards: posts-N.json / content-N.json, either an object with a posts
//     list or a bare array of posts
//
// Standalone payloads win: each becomes its own payload (one run each).
// Otherwise the manifest's site_info is combined with every shard's posts, in
// shard order, and the first non-empty categories and tags lists found.
package ingest
