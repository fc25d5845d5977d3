// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/models"
	"github.com/tomtom215/pressimport/internal/validation"
)

// Error codes returned in the response envelope.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeTooLarge        = "PAYLOAD_TOO_LARGE"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInvalidSource   = "INVALID_SOURCE"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
)

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp *models.APIResponse) {
	resp.Metadata = models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusOK, &models.APIResponse{Status: "success", Data: data})
}

func respondCreated(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusCreated, &models.APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]string) {
	respondJSON(w, r, status, &models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message, Details: details},
	})
}

// respondInternal logs err and hides it from the client.
func respondInternal(w http.ResponseWriter, r *http.Request, err error, msg string) {
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, msg, nil)
}

// decodeAndValidate reads a JSON body into dst and validates it. An empty
// body leaves dst at its zero value before validation. It writes the error
// response and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body: "+err.Error(), nil)
			return false
		}
	}
	if err := validation.Struct(dst); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			apiErr := verr.APIError()
			respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
			return false
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return false
	}
	return true
}
