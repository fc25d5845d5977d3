// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tomtom215/pressimport/internal/ingest"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/orchestrator"
	"github.com/tomtom215/pressimport/internal/progress"
)

// Importer is the orchestrator surface the API drives.
type Importer interface {
	Start(ctx context.Context, path string, opts models.Options) ([]models.RunHandle, error)
	Preview(ctx context.Context, path string, n int) ([]orchestrator.Preview, error)
	Progress(ctx context.Context, runID string) (*models.ProgressRecord, error)
	Stop(ctx context.Context, runID string) error
	Cleanup(ctx context.Context, olderThan time.Duration) (orchestrator.CleanupResult, error)
}

// RunLog is the operator-visible import log.
type RunLog interface {
	Read(limit int) ([]string, error)
	Clear() error
}

// Pinger reports whether the destination store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// defaultLogLines is the log tail returned when no limit is given.
const defaultLogLines = 200

var uploadExtensions = []string{".json", ".zip", ".tar.gz", ".tgz"}

// Handler serves the operator endpoints.
type Handler struct {
	importer   Importer
	runLog     RunLog
	db         Pinger
	uploadDir  string
	maxUpload  int64
	payloadTTL time.Duration
	version    string
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	UploadDir     string
	MaxUploadSize int64
	PayloadTTL    time.Duration
	Version       string
}

// NewHandler creates the operator handlers. runLog may be nil when no run
// log is configured.
func NewHandler(importer Importer, runLog RunLog, db Pinger, cfg HandlerConfig) *Handler {
	return &Handler{
		importer:   importer,
		runLog:     runLog,
		db:         db,
		uploadDir:  cfg.UploadDir,
		maxUpload:  cfg.MaxUploadSize,
		payloadTTL: cfg.PayloadTTL,
		version:    cfg.Version,
	}
}

// Upload handles POST /api/v1/uploads. The multipart field "file" is stored
// in the upload directory and its source id returned.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), nil)
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Multipart field \"file\" is required", nil)
		return
	}
	defer file.Close()

	name := sanitizeUploadName(header.Filename)
	if !allowedUpload(name) {
		respondError(w, r, http.StatusBadRequest, ErrCodeInvalidSource,
			"Unsupported file type; expected one of "+strings.Join(uploadExtensions, ", "), nil)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		respondInternal(w, r, err, "Failed to prepare upload directory")
		return
	}
	sourceID := uuid.NewString()[:8] + "-" + name
	dst, err := os.OpenFile(filepath.Join(h.uploadDir, sourceID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		respondInternal(w, r, err, "Failed to store upload")
		return
	}
	n, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst.Name()) //nolint:errcheck // best effort
		respondInternal(w, r, err, "Failed to store upload")
		return
	}

	logging.Ctx(r.Context()).Info().Str("source_id", sourceID).Int64("bytes", n).Msg("Import source uploaded")
	respondCreated(w, r, UploadResponse{SourceID: sourceID, Size: n})
}

// Preview handles POST /api/v1/imports/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	path, ok := h.sourcePath(w, r, req.SourceID)
	if !ok {
		return
	}
	previews, err := h.importer.Preview(r.Context(), path, req.Items)
	if err != nil {
		h.respondSourceError(w, r, err)
		return
	}
	respondOK(w, r, previews)
}

// StartImport handles POST /api/v1/imports.
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	path, ok := h.sourcePath(w, r, req.SourceID)
	if !ok {
		return
	}
	opts := models.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	handles, err := h.importer.Start(r.Context(), path, opts)
	if err != nil {
		h.respondSourceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusAccepted, &models.APIResponse{Status: "success", Data: handles})
}

// Progress handles GET /api/v1/imports/{runID}. Unknown runs answer with a
// not_found status record.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	rec, err := h.importer.Progress(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondInternal(w, r, err, "Failed to read progress")
		return
	}
	respondOK(w, r, rec)
}

// Stop handles POST /api/v1/imports/stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	err := h.importer.Stop(r.Context(), req.RunID)
	if errors.Is(err, progress.ErrRunNotFound) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown run "+req.RunID, nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err, "Failed to stop import")
		return
	}
	respondOK(w, r, StopResponse{RunID: req.RunID, Stopped: true})
}

// Log handles GET /api/v1/log.
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	if h.runLog == nil {
		respondOK(w, r, LogResponse{Lines: []string{}})
		return
	}
	limit := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "lines must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	lines, err := h.runLog.Read(limit)
	if err != nil {
		respondInternal(w, r, err, "Failed to read run log")
		return
	}
	respondOK(w, r, LogResponse{Lines: lines})
}

// ClearLog handles DELETE /api/v1/log.
func (h *Handler) ClearLog(w http.ResponseWriter, r *http.Request) {
	if h.runLog != nil {
		if err := h.runLog.Clear(); err != nil {
			respondInternal(w, r, err, "Failed to clear run log")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cleanup handles POST /api/v1/maintenance/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	olderThan := h.payloadTTL
	if req.OlderThan != "" {
		olderThan, _ = time.ParseDuration(req.OlderThan) //nolint:errcheck // validated
	}
	res, err := h.importer.Cleanup(r.Context(), olderThan)
	if err != nil {
		respondInternal(w, r, err, "Cleanup failed")
		return
	}
	respondOK(w, r, res)
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Version: h.version}
	if err := h.db.Ping(ctx); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check: database unreachable")
		resp.Status, resp.Database = "degraded", "unreachable"
		respondJSON(w, r, http.StatusServiceUnavailable, &models.APIResponse{Status: "success", Data: resp})
		return
	}
	respondOK(w, r, resp)
}

// sourcePath maps a source id to its file in the upload directory.
func (h *Handler) sourcePath(w http.ResponseWriter, r *http.Request, sourceID string) (string, bool) {
	if sourceID != filepath.Base(sourceID) || strings.HasPrefix(sourceID, ".") {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "source_id must be a bare file name", nil)
		return "", false
	}
	path := filepath.Join(h.uploadDir, sourceID)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Unknown source "+sourceID, nil)
			return "", false
		}
		respondInternal(w, r, err, "Failed to read source")
		return "", false
	}
	return path, true
}

func (h *Handler) respondSourceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ingest.ErrMalformed) || errors.Is(err, ingest.ErrNoValidPayload) {
		respondError(w, r, http.StatusUnprocessableEntity, ErrCodeInvalidSource, err.Error(), nil)
		return
	}
	respondInternal(w, r, err, "Failed to read import source")
}

func sanitizeUploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

func allowedUpload(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range uploadExtensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return true
		}
	}
	return false
}
