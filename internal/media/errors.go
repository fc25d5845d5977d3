// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package media

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a media failure.
type ErrorKind string

const (
	KindInvalidURL       ErrorKind = "invalid_url"
	KindLocalNotFound    ErrorKind = "local_not_found"
	KindHighMemory       ErrorKind = "high_memory"
	KindDownloadFailed   ErrorKind = "download_failed"
	KindUnsupportedMedia ErrorKind = "unsupported_media"
	KindStoreFailed      ErrorKind = "store_failed"
)

// Error is a media failure for one URL.
type Error struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.URL)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// KindOf returns the kind of a media error, or "" for other errors.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return ""
}

// IsKind reports whether err is a media error of kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
