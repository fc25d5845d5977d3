// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package models

import "time"

// ProgressRecord is the operator-visible state of a run.
type ProgressRecord struct {
	RunID       string         `json:"run_id"`
	SourceID    string         `json:"source_id"`
	Status      Phase          `json:"status"`
	Current     int            `json:"current"`
	Total       int            `json:"total"`
	Percent     int            `json:"percent"`
	CurrentItem string         `json:"current_item,omitempty"`
	Message     string         `json:"message,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Percent computes round(current/total*100), returning 0 when total is 0.
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	if current > total {
		current = total
	}
	return (current*100 + total/2) / total
}
