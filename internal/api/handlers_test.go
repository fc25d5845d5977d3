// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/ingest"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/orchestrator"
	"github.com/tomtom215/pressimport/internal/progress"
)

type fakeImporter struct {
	startPath string
	startOpts models.Options
	startErr  error
	stopped   []string
	stopErr   error
	cleanup   time.Duration
	previewN  int
}

func (f *fakeImporter) Start(_ context.Context, path string, opts models.Options) ([]models.RunHandle, error) {
	f.startPath, f.startOpts = path, opts
	if f.startErr != nil {
		return nil, f.startErr
	}
	return []models.RunHandle{{RunID: "run-1", SourceID: filepath.Base(path), Total: 3, Phase: models.PhaseQueued}}, nil
}

func (f *fakeImporter) Preview(_ context.Context, path string, n int) ([]orchestrator.Preview, error) {
	f.previewN = n
	return []orchestrator.Preview{{SourceID: filepath.Base(path)}}, nil
}

func (f *fakeImporter) Progress(_ context.Context, runID string) (*models.ProgressRecord, error) {
	if runID != "run-1" {
		return &models.ProgressRecord{RunID: runID, Status: models.PhaseNotFound}, nil
	}
	return &models.ProgressRecord{RunID: runID, Status: models.PhaseImportingPosts, Current: 1, Total: 3, Percent: 33}, nil
}

func (f *fakeImporter) Stop(_ context.Context, runID string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, runID)
	return nil
}

func (f *fakeImporter) Cleanup(_ context.Context, olderThan time.Duration) (orchestrator.CleanupResult, error) {
	f.cleanup = olderThan
	return orchestrator.CleanupResult{Payloads: 2, QueueRows: 5}, nil
}

type fakeLog struct {
	lines   []string
	limit   int
	cleared bool
}

func (l *fakeLog) Read(limit int) ([]string, error) {
	l.limit = limit
	return l.lines, nil
}

func (l *fakeLog) Clear() error {
	l.cleared = true
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	importer *fakeImporter
	log      *fakeLog
	dir      string
	router   http.Handler
}

func newAPIFixture(t *testing.T, db Pinger, rcfg RouterConfig) *apiFixture {
	t.Helper()
	f := &apiFixture{
		importer: &fakeImporter{},
		log:      &fakeLog{lines: []string{"one", "two"}},
		dir:      t.TempDir(),
	}
	if db == nil {
		db = fakePinger{}
	}
	h := NewHandler(f.importer, f.log, db, HandlerConfig{
		UploadDir:     f.dir,
		MaxUploadSize: 1024,
		PayloadTTL:    72 * time.Hour,
		Version:       "test",
	})
	f.router = NewRouter(h, rcfg)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var resp models.APIResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, resp
}

func (f *apiFixture) writeSource(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.dir, name), []byte(`{"posts":[]}`), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int
		status   int
	}{
		{"json export", "export.json", 10, http.StatusCreated},
		{"archive", "site export.tar.gz", 10, http.StatusCreated},
		{"unsupported type", "export.exe", 10, http.StatusBadRequest},
		{"extension only", ".json", 10, http.StatusBadRequest},
		{"too large", "big.json", 4096, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil, RouterConfig{})
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, uploadRequest(t, tt.filename, bytes.Repeat([]byte("x"), tt.size)))
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if tt.status != http.StatusCreated {
				return
			}

			var resp struct {
				Data UploadResponse `json:"data"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if strings.ContainsAny(resp.Data.SourceID, " /") || resp.Data.Size != int64(tt.size) {
				t.Errorf("unexpected upload response %+v", resp.Data)
			}
			if _, err := os.Stat(filepath.Join(f.dir, resp.Data.SourceID)); err != nil {
				t.Errorf("expected stored upload: %v", err)
			}
		})
	}
}

func TestUploadRateLimit(t *testing.T) {
	f := newAPIFixture(t, nil, RouterConfig{UploadRateLimit: 1})

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, uploadRequest(t, "export.json", []byte("{}")))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected 201 then 429, got %v", codes)
	}
}

func TestStartImport(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		f := newAPIFixture(t, nil, RouterConfig{})
		f.writeSource(t, "abc-export.json")

		rec, resp := f.do(t, http.MethodPost, "/api/v1/imports", StartRequest{SourceID: "abc-export.json"})
		if rec.Code != http.StatusAccepted || resp.Status != "success" {
			t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
		if f.importer.startPath != filepath.Join(f.dir, "abc-export.json") {
			t.Errorf("unexpected path %s", f.importer.startPath)
		}
		if f.importer.startOpts != models.DefaultOptions() {
			t.Errorf("expected default options, got %+v", f.importer.startOpts)
		}
	})

	t.Run("explicit options", func(t *testing.T) {
		f := newAPIFixture(t, nil, RouterConfig{})
		f.writeSource(t, "abc-export.json")

		opts := models.Options{ImportOnlyMissing: true}
		rec, _ := f.do(t, http.MethodPost, "/api/v1/imports", StartRequest{SourceID: "abc-export.json", Options: &opts})
		if rec.Code != http.StatusAccepted || f.importer.startOpts != opts {
			t.Errorf("expected options passed through, got %d %+v", rec.Code, f.importer.startOpts)
		}
	})

	errorCases := []struct {
		name     string
		body     any
		startErr error
		status   int
		code     string
	}{
		{"missing source", StartRequest{}, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed json", "{", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"path traversal", StartRequest{SourceID: "../etc/passwd"}, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown source", StartRequest{SourceID: "missing.json"}, nil, http.StatusNotFound, ErrCodeNotFound},
		{"malformed source", StartRequest{SourceID: "abc-export.json"}, fmt.Errorf("parse: %w", ingest.ErrMalformed), http.StatusUnprocessableEntity, ErrCodeInvalidSource},
		{"store failure", StartRequest{SourceID: "abc-export.json"}, errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t, nil, RouterConfig{})
			f.writeSource(t, "abc-export.json")
			f.importer.startErr = tt.startErr

			rec, resp := f.do(t, http.MethodPost, "/api/v1/imports", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("expected error code %s, got %+v", tt.code, resp.Error)
			}
		})
	}
}

func TestPreviewAndProgress(t *testing.T) {
	f := newAPIFixture(t, nil, RouterConfig{})
	f.writeSource(t, "abc-export.json")

	rec, _ := f.do(t, http.MethodPost, "/api/v1/imports/preview", PreviewRequest{SourceID: "abc-export.json", Items: 3})
	if rec.Code != http.StatusOK || f.importer.previewN != 3 {
		t.Errorf("unexpected preview %d, n=%d", rec.Code, f.importer.previewN)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/v1/imports/preview", PreviewRequest{SourceID: "abc-export.json", Items: 500})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected item bound enforced, got %d", rec.Code)
	}

	for _, tt := range []struct {
		runID  string
		status models.Phase
	}{
		{"run-1", models.PhaseImportingPosts},
		{"nope", models.PhaseNotFound},
	} {
		rec, _ := f.do(t, http.MethodGet, "/api/v1/imports/"+tt.runID, nil)
		var resp struct {
			Data models.ProgressRecord `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.Code != http.StatusOK || resp.Data.Status != tt.status {
			t.Errorf("run %s: expected %s, got %d %s", tt.runID, tt.status, rec.Code, resp.Data.Status)
		}
	}
}

func TestStop(t *testing.T) {
	f := newAPIFixture(t, nil, RouterConfig{})

	if rec, _ := f.do(t, http.MethodPost, "/api/v1/imports/stop", nil); rec.Code != http.StatusOK {
		t.Fatalf("global stop: got %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodPost, "/api/v1/imports/stop", StopRequest{RunID: "run-1"}); rec.Code != http.StatusOK {
		t.Fatalf("run stop: got %d", rec.Code)
	}
	if len(f.importer.stopped) != 2 || f.importer.stopped[0] != "" || f.importer.stopped[1] != "run-1" {
		t.Errorf("unexpected stops %v", f.importer.stopped)
	}

	f.importer.stopErr = fmt.Errorf("x: %w", progress.ErrRunNotFound)
	if rec, _ := f.do(t, http.MethodPost, "/api/v1/imports/stop", StopRequest{RunID: "ghost"}); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestRunLog(t *testing.T) {
	f := newAPIFixture(t, nil, RouterConfig{})

	rec, _ := f.do(t, http.MethodGet, "/api/v1/log", nil)
	if rec.Code != http.StatusOK || f.log.limit != defaultLogLines {
		t.Errorf("expected default tail, got %d limit %d", rec.Code, f.log.limit)
	}
	f.do(t, http.MethodGet, "/api/v1/log?lines=5", nil)
	if f.log.limit != 5 {
		t.Errorf("expected limit 5, got %d", f.log.limit)
	}
	if rec, _ := f.do(t, http.MethodGet, "/api/v1/log?lines=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec, _ := f.do(t, http.MethodDelete, "/api/v1/log", nil); rec.Code != http.StatusNoContent || !f.log.cleared {
		t.Errorf("expected log cleared, got %d", rec.Code)
	}
}

func TestCleanup(t *testing.T) {
	f := newAPIFixture(t, nil, RouterConfig{})

	if rec, _ := f.do(t, http.MethodPost, "/api/v1/maintenance/cleanup", nil); rec.Code != http.StatusOK || f.importer.cleanup != 72*time.Hour {
		t.Errorf("expected payload TTL default, got %d %v", rec.Code, f.importer.cleanup)
	}
	if rec, _ := f.do(t, http.MethodPost, "/api/v1/maintenance/cleanup", CleanupRequest{OlderThan: "2h"}); rec.Code != http.StatusOK || f.importer.cleanup != 2*time.Hour {
		t.Errorf("expected 2h, got %d %v", rec.Code, f.importer.cleanup)
	}
	if rec, _ := f.do(t, http.MethodPost, "/api/v1/maintenance/cleanup", CleanupRequest{OlderThan: "soon"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad duration, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ok := newAPIFixture(t, nil, RouterConfig{})
	if rec, resp := ok.do(t, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusOK || resp.Metadata.RequestID == "" {
		t.Errorf("expected healthy response with request id, got %d %+v", rec.Code, resp.Metadata)
	}

	down := newAPIFixture(t, fakePinger{err: errors.New("closed")}, RouterConfig{})
	if rec, _ := down.do(t, http.MethodGet, "/api/v1/health", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	ok.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pressimport_api_requests_total") {
		t.Errorf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestSanitizeUploadName(t *testing.T) {
	tests := map[string]string{
		"export.json":        "export.json",
		"../../etc/passwd":   "passwd",
		`C:\dumps\site.zip`:  "site.zip",
		"my site (1).tar.gz": "my_site__1_.tar.gz",
		"..hidden.json":      "hidden.json",
	}
	for in, want := range tests {
		if got := sanitizeUploadName(in); got != want {
			t.Errorf("sanitizeUploadName(%q) = %q, want %q", in, got, want)
		}
	}
}
