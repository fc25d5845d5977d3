// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package models

import "testing"

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current, total, want int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
		{12, 10, 100},
	}
	for _, tt := range tests {
		if got := Percent(tt.current, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestPhaseIsTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[Phase]bool{
		PhaseQueued:              false,
		PhaseImportingPosts:      false,
		PhaseImportingMedia:      false,
		PhaseUpdatingContent:     false,
		PhaseCompleted:           true,
		PhaseCompletedWithErrors: true,
		PhaseFailed:              true,
		PhaseStopped:             true,
	}
	for phase, want := range terminal {
		if got := phase.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", phase, got, want)
		}
	}
}

func TestTotalsAdd(t *testing.T) {
	t.Parallel()

	a := Totals{Total: 3, New: 1, Updated: 1, Skipped: 1}
	a.Add(Totals{Total: 2, New: 2, Failed: 0})
	if a.Total != 5 || a.New != 3 || a.Updated != 1 || a.Skipped != 1 {
		t.Errorf("unexpected totals after Add: %+v", a)
	}
}
