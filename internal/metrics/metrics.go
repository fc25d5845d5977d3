// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Import pipeline metrics
	ImportBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_batches_total",
			Help: "Total number of batch invocations by phase and outcome",
		},
		[]string{"phase", "outcome"}, // outcome: "done", "continued", "stopped", "failed"
	)

	ImportBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pressimport_batch_duration_seconds",
			Help:    "Wall time spent in one batch invocation",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	ImportItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_items_total",
			Help: "Total number of imported entities by kind and action",
		},
		[]string{"kind", "action"}, // kind: "post", "term", "comment"; action: "new", "updated", "skipped", "failed"
	)

	ImportRunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_runs_finished_total",
			Help: "Total number of runs that reached a terminal phase",
		},
		[]string{"phase"},
	)

	// Media metrics
	MediaResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_media_results_total",
			Help: "Total number of media queue items by final status",
		},
		[]string{"status"},
	)

	MediaDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_media_downloads_total",
			Help: "Media resolutions by source: download, cache, reuse, local",
		},
		[]string{"source"},
	)

	MediaDownloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pressimport_media_download_bytes_total",
			Help: "Total bytes downloaded for media",
		},
	)

	MemoryPressureEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_memory_pressure_events_total",
			Help: "Memory pressure reactions",
		},
		[]string{"reaction"}, // "batch_halved", "skip_latch"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pressimport_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Scheduler metrics
	SchedulerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_scheduler_jobs_total",
			Help: "Scheduled job executions by action and outcome",
		},
		[]string{"action", "outcome"}, // "success", "retry", "dropped", "cancelled"
	)

	SchedulerPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pressimport_scheduler_pending_jobs",
			Help: "Number of jobs waiting in the scheduler",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pressimport_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pressimport_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordBatch records one batch invocation.
func RecordBatch(phase, outcome string, duration time.Duration) {
	ImportBatches.WithLabelValues(phase, outcome).Inc()
	ImportBatchDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordItems adds n entities of kind with the given action.
func RecordItems(kind, action string, n int) {
	if n <= 0 {
		return
	}
	ImportItems.WithLabelValues(kind, action).Add(float64(n))
}

// RecordRunFinished counts a run reaching a terminal phase.
func RecordRunFinished(phase string) {
	ImportRunsFinished.WithLabelValues(phase).Inc()
}

// RecordMediaResult counts a media queue item settling in status.
func RecordMediaResult(status string) {
	MediaResults.WithLabelValues(status).Inc()
}

// RecordMediaResolution counts how a media URL was resolved.
func RecordMediaResolution(source string) {
	MediaDownloads.WithLabelValues(source).Inc()
}

// RecordMediaBytes adds downloaded bytes.
func RecordMediaBytes(n int64) {
	if n > 0 {
		MediaDownloadBytes.Add(float64(n))
	}
}

// RecordMemoryPressure counts a memory pressure reaction.
func RecordMemoryPressure(reaction string) {
	MemoryPressureEvents.WithLabelValues(reaction).Inc()
}

// RecordCircuitBreakerTransition updates breaker state metrics.
func RecordCircuitBreakerTransition(name, from, to string, state float64) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordSchedulerJob counts one job execution outcome.
func RecordSchedulerJob(action, outcome string) {
	SchedulerJobs.WithLabelValues(action, outcome).Inc()
}

// SetSchedulerPending publishes the scheduler queue depth.
func SetSchedulerPending(n int) {
	SchedulerPending.Set(float64(n))
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
