// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/metrics"
)

const breakerName = "media-download"

// Download is one fetched remote resource.
type Download struct {
	Data     []byte
	MimeType string
	Filename string
}

// Fetcher retrieves remote resources.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Download, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// ErrTooLarge is returned when a body exceeds the configured size limit.
var ErrTooLarge = errors.New("media exceeds size limit")

// IsBreakerOpen reports whether err was returned by an open or half-open
// circuit breaker without a request being made.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// HTTPFetcher downloads over HTTP behind a rate limiter and circuit breaker.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[*Download]
	maxBytes  int64
	userAgent string
	timeout   time.Duration
}

// NewHTTPFetcher builds a fetcher from media settings. A nil client uses a
// default one.
func NewHTTPFetcher(cfg *config.MediaConfig, client *http.Client) (*HTTPFetcher, error) {
	maxBytes, err := cfg.MaxDownloadBytes()
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[*Download](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A 4xx means the remote host answered; only transport errors and
		// server failures count against it.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil || errors.Is(err, ErrTooLarge)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), stateToFloat(to))
		},
	})

	return &HTTPFetcher{
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		cb:        cb,
		maxBytes:  maxBytes,
		userAgent: cfg.UserAgent,
		timeout:   cfg.DownloadTimeout,
	}, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Fetch downloads rawURL within the configured timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return f.cb.Execute(func() (*Download, error) {
		return f.fetch(ctx, rawURL)
	})
}

func (f *HTTPFetcher) fetch(ctx context.Context, rawURL string) (*Download, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	metrics.RecordMediaBytes(int64(len(data)))

	mime := mimetype.Detect(data)
	return &Download{
		Data:     data,
		MimeType: mime.String(),
		Filename: filenameFor(resp.Request.URL.Path, mime),
	}, nil
}

// filenameFor derives a file name from the URL path, adding the sniffed
// extension when the path has none.
func filenameFor(urlPath string, mime *mimetype.MIME) string {
	name := path.Base(urlPath)
	if name == "." || name == "/" || name == "" {
		name = "media"
	}
	if path.Ext(name) == "" {
		name += mime.Extension()
	}
	return name
}

// supported reports whether a sniffed MIME type may be stored as media.
func supported(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	switch {
	case strings.HasPrefix(base, "image/"),
		strings.HasPrefix(base, "video/"),
		strings.HasPrefix(base, "audio/"),
		base == "application/pdf":
		return true
	default:
		return false
	}
}
