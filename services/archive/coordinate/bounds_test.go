// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coordinate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBounds(t *testing.T, t0, t1 int64, minX, maxX float64, f Frame) Bounds {
	t.Helper()
	a, err := NewTemporal(t0, CalendarGregorian)
	require.NoError(t, err)
	b, err := NewTemporal(t1, CalendarGregorian)
	require.NoError(t, err)
	r, err := NewRange(a, b)
	require.NoError(t, err)
	box := mustBox(t, minX, 0, 0, maxX, 10, 10, f)
	bounds, err := NewBounds(r, box)
	require.NoError(t, err)
	return bounds
}

// TestBoundsOverlap requires overlap on both axes at once.
func TestBoundsOverlap(t *testing.T) {
	base := mustBounds(t, 0, 100, 0, 100, FrameSiteLocal)

	tests := []struct {
		name    string
		other   Bounds
		overlap bool
	}{
		{"both axes overlap", mustBounds(t, 50, 150, 50, 150, FrameSiteLocal), true},
		{"time only", mustBounds(t, 50, 150, 200, 300, FrameSiteLocal), false},
		{"space only", mustBounds(t, 200, 300, 50, 150, FrameSiteLocal), false},
		{"neither", mustBounds(t, 200, 300, 200, 300, FrameSiteLocal), false},
		{"nested", mustBounds(t, 10, 20, 10, 20, FrameSiteLocal), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := base.Overlaps(tt.other)
			require.NoError(t, err)
			assert.Equal(t, tt.overlap, got)
		})
	}

	_, err := base.Overlaps(mustBounds(t, 0, 1, 0, 1, FrameGeocentric))
	assert.ErrorIs(t, err, ErrFrameMismatch)
}

// TestBoundsCovers requires containment on both axes at once.
func TestBoundsCovers(t *testing.T) {
	declared := mustBounds(t, -2_000_000, 1_000_000, 0, 100, FrameSiteLocal)

	inside := mustBounds(t, -5, 5, 40, 60, FrameSiteLocal)
	got, err := declared.Covers(inside)
	require.NoError(t, err)
	assert.True(t, got)

	timeOut := mustBounds(t, -2_000_001, 0, 40, 60, FrameSiteLocal)
	got, err = declared.Covers(timeOut)
	require.NoError(t, err)
	assert.False(t, got)

	spaceOut := mustBounds(t, -5, 5, 40, 160, FrameSiteLocal)
	got, err = declared.Covers(spaceOut)
	require.NoError(t, err)
	assert.False(t, got)
}
