// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package api serves the operator HTTP surface: uploading import sources,
// starting, watching and stopping runs, the run log, and maintenance.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pressimport/internal/middleware"
)

// RouterConfig configures the middleware stack.
type RouterConfig struct {
	CORSOrigins []string

	// UploadRateLimit is the number of uploads per minute per client. Zero
	// disables the limit.
	UploadRateLimit int

	// RequestTimeout bounds non-upload requests.
	RequestTimeout time.Duration
}

// NewRouter builds the chi router for h.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         86400,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health", h.Health)

		// Uploads stream large bodies and are not bound by the request timeout.
		r.Group(func(r chi.Router) {
			if cfg.UploadRateLimit > 0 {
				r.Use(httprate.Limit(cfg.UploadRateLimit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(rateLimited),
				))
			}
			r.Post("/uploads", h.Upload)
		})

		r.Group(func(r chi.Router) {
			if cfg.RequestTimeout > 0 {
				r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
			}
			r.Post("/imports", h.StartImport)
			r.Post("/imports/preview", h.Preview)
			r.Post("/imports/stop", h.Stop)
			r.Get("/imports/{runID}", h.Progress)

			r.Get("/log", h.Log)
			r.Delete("/log", h.ClearLog)

			r.Post("/maintenance/cleanup", h.Cleanup)
		})
	})

	return r
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Too many uploads, try again later", nil)
}
