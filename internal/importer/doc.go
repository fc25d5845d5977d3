// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

/*
Package importer writes source terms, content items and comments into the
destination store while preserving source identifiers.

# Terms

TermImporter processes one taxonomy at a time. A term whose id already exists
in the same taxonomy is updated in place. A term whose id is held by another
taxonomy is created with a fresh id, or resolved to the existing term when its
slug is already taken. A free id is force-inserted through the store's
privileged insert. The returned source-to-destination mapping is folded into
the run's remapper.

# Content

ContentImporter validates each item, updates it in place when the id exists
with the same type, and force-inserts it otherwise. The destination id must
equal the source id or the item is skipped. Successful items get their
metadata, taxonomy assignments, comments and media queue entries.

Per-item failures never abort a batch: they are logged with the source id,
title and reason and counted as skipped.

# Comments

CommentImporter supports two policies: PolicyDedup skips a comment when the
same author email posted the same normalized text on the same item within a
time window, PolicyAlways inserts unconditionally.
*/
package importer
