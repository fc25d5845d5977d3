// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package logging

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RunLog is the plain-text import log exposed to operators. It is an
// append-only file that can be read back (tail) and cleared.
type RunLog struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenRunLog opens (creating if needed) the run log at path.
func OpenRunLog(path string) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // operator-configured path
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return &RunLog{path: path, file: f}, nil
}

// Write implements io.Writer.
func (r *RunLog) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	return r.file.Write(p)
}

// Read returns the last limit lines of the log, oldest first.
// A limit <= 0 returns every line.
func (r *RunLog) Read(limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read run log: %w", err)
	}
	defer f.Close()

	lines := make([]string, 0, 64)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan run log: %w", err)
	}
	return lines, nil
}

// Clear truncates the log.
func (r *RunLog) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	if err := r.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate run log: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (r *RunLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
