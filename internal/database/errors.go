// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package database

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tomtom215/pressimport/internal/logging"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIDTaken is returned by force inserts when the requested id is occupied.
	ErrIDTaken = errors.New("requested id is already taken")

	// ErrIDMismatch is returned when the store assigned a different id than requested.
	ErrIDMismatch = errors.New("stored id does not match requested id")
)

// SlugExistsError is returned by CreateTerm when a term with the same slug
// already exists in the taxonomy.
type SlugExistsError struct {
	Taxonomy string
	Slug     string
	ID       int64
}

func (e *SlugExistsError) Error() string {
	return fmt.Sprintf("term slug %q already exists in %s as id %d", e.Slug, e.Taxonomy, e.ID)
}

// isDuplicateKey reports whether err is a DuckDB primary key or unique violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "violates primary key constraint") ||
		strings.Contains(msg, "violates unique constraint")
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
