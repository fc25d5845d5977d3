// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package models defines the data shared across the import pipeline: the
// source export format (Payload, ContentItem, TermItem, Comment), the run
// lifecycle (ImportRun, Phase, Options), durable media work units
// (MediaQueueItem) and progress records.
package models
