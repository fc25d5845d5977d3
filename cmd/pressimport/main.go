// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package main is the pressimport command.
//
// pressimport moves a content-management export (posts, pages, terms,
// comments and their media) into the destination store in resumable
// batches. Long imports are split into scheduled jobs so a restart picks up
// where the last batch ended.
//
// # Commands
//
//	pressimport serve                 # HTTP API, batch scheduler, maintenance
//	pressimport run export.json       # import one source in the foreground
//	pressimport preview export.json   # summarize a source without importing
//	pressimport stop [run-id]         # stop one run or all runs
//	pressimport cleanup --older-than 72h
//
// preview, stop and cleanup act on the local state directory unless
// --server points them at a running instance. The state store takes an
// exclusive lock, so use --server while serve is running.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (IMPORT_BATCH_SIZE, MEDIA_BACKEND, SERVER_PORT, ...)
//   - Config file (--config, CONFIG_PATH, or ./config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// serve shuts down gracefully on SIGINT and SIGTERM. Scheduled batches are
// persisted, so an interrupted import continues on the next start.
package main

import (
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
