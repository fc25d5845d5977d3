// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

/*
Package metrics exposes Prometheus instrumentation for the import pipeline.

All collectors are registered on the default registry through promauto and are
served at /metrics by the operator API.

# Available Metrics

Pipeline:
  - pressimport_batches_total{phase, outcome}
  - pressimport_batch_duration_seconds{phase}
  - pressimport_items_total{kind, action}
  - pressimport_runs_finished_total{phase}

Media:
  - pressimport_media_results_total{status}
  - pressimport_media_downloads_total{source}
  - pressimport_media_download_bytes_total
  - pressimport_memory_pressure_events_total{reaction}
  - pressimport_circuit_breaker_state{name}
  - pressimport_circuit_breaker_transitions_total{name, from, to}

Scheduler and API:
  - pressimport_scheduler_jobs_total{action, outcome}
  - pressimport_scheduler_pending_jobs
  - pressimport_api_requests_total{method, endpoint, status}
  - pressimport_api_request_duration_seconds{method, endpoint}

Record helpers (RecordBatch, RecordItems, ...) are safe for concurrent use.
*/
package metrics
