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

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

// TestCivilAnchors pins the conversions to independently known day offsets.
func TestCivilAnchors(t *testing.T) {
	tests := []struct {
		name  string
		year  int64
		month int
		day   int
		cal   Calendar
		days  int64
	}{
		{"epoch", 1970, 1, 1, CalendarGregorian, 0},
		{"epoch eve", 1969, 12, 31, CalendarGregorian, -1},
		{"millennium leap day", 2000, 2, 29, CalendarGregorian, 11016},
		{"march 2000", 2000, 3, 1, CalendarGregorian, 11017},
		{"gregorian reform", 1582, 10, 15, CalendarGregorian, -141427},
		{"julian reform eve", 1582, 10, 5, CalendarJulian, -141427},
		{"julian epoch alias", 1969, 12, 19, CalendarJulian, 0},
		{"holocene epoch alias", 11970, 1, 1, CalendarHolocene, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, err := FromCivil(tt.year, tt.month, tt.day, tt.cal)
			require.NoError(t, err)
			assert.Equal(t, tt.days, tc.Days)

			y, m, d := tc.Civil()
			assert.Equal(t, tt.year, y)
			assert.Equal(t, tt.month, m)
			assert.Equal(t, tt.day, d)
		})
	}
}

// TestCivilRoundTrip sweeps years across the full supported span, negative
// years included, and checks FromCivil and Civil invert each other in every
// calendar.
func TestCivilRoundTrip(t *testing.T) {
	years := []int64{-9999, -4713, -401, -1, 0, 1, 4, 100, 400, 1582, 1900, 1970, 2024, 9999}
	months := []int{1, 2, 3, 6, 12}
	days := []int{1, 28}
	cals := []Calendar{CalendarGregorian, CalendarJulian}

	for _, cal := range cals {
		for _, y := range years {
			for _, m := range months {
				for _, d := range days {
					tc, err := FromCivil(y, m, d, cal)
					require.NoError(t, err, "%s %d-%02d-%02d", cal, y, m, d)
					y2, m2, d2 := tc.Civil()
					require.Equal(t, y, y2, "%s %d-%02d-%02d", cal, y, m, d)
					require.Equal(t, m, m2)
					require.Equal(t, d, d2)
				}
			}
		}
	}

	// Holocene years shift by 10000 against Gregorian.
	for _, y := range []int64{1, 5000, 10000, 12024, 19999} {
		tc, err := FromCivil(y, 7, 15, CalendarHolocene)
		require.NoError(t, err)
		g, err := FromCivil(y-10000, 7, 15, CalendarGregorian)
		require.NoError(t, err)
		assert.Equal(t, g.Days, tc.Days, "holocene year %d", y)
	}
}

// TestCivilMonotonic walks day offsets across leap and era boundaries and
// checks consecutive civil dates convert to consecutive offsets.
func TestCivilMonotonic(t *testing.T) {
	starts := []int64{-141430, -5, 11012, daysFromGregorian(1600, 2, 26), daysFromGregorian(2100, 2, 26)}
	for _, base := range starts {
		prev := base - 1
		for off := int64(0); off < 8; off++ {
			d := base + off
			y, m, dd := gregorianFromDays(d)
			back := daysFromGregorian(y, m, dd)
			require.Equal(t, d, back, "gregorian day %d", d)
			require.Equal(t, prev+1, back)
			prev = back

			jy, jm, jd := julianFromDays(d)
			assert.Equal(t, d, daysFromJulian(jy, jm, jd), "julian day %d", d)
		}
	}
}

// TestLeapRules checks the calendars disagree exactly where they should.
func TestLeapRules(t *testing.T) {
	// Century years: Julian keeps the leap day, Gregorian drops it
	// unless divisible by 400.
	_, err := FromCivil(1900, 2, 29, CalendarGregorian)
	assert.ErrorIs(t, err, ErrInvalidCivil)
	_, err = FromCivil(1900, 2, 29, CalendarJulian)
	assert.NoError(t, err)

	_, err = FromCivil(2000, 2, 29, CalendarGregorian)
	assert.NoError(t, err)
	_, err = FromCivil(2000, 2, 29, CalendarJulian)
	assert.NoError(t, err)

	_, err = FromCivil(2023, 2, 29, CalendarGregorian)
	assert.ErrorIs(t, err, ErrInvalidCivil)
	_, err = FromCivil(2023, 4, 31, CalendarGregorian)
	assert.ErrorIs(t, err, ErrInvalidCivil)
}

// TestTemporalValidation covers tag and range rejection, and confirms the
// errors land in the validation bucket of the taxonomy.
func TestTemporalValidation(t *testing.T) {
	_, err := NewTemporal(0, Calendar("lunar"))
	require.ErrorIs(t, err, ErrUnknownCalendar)
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = NewTemporal(MaxDayMagnitude+1, CalendarGregorian)
	require.ErrorIs(t, err, ErrOutOfEpochRange)

	_, err = NewTemporal(-MaxDayMagnitude-1, CalendarGregorian)
	require.ErrorIs(t, err, ErrOutOfEpochRange)

	tc, err := NewTemporal(MaxDayMagnitude, CalendarGregorian)
	require.NoError(t, err)
	_, err = tc.AddDays(1)
	assert.ErrorIs(t, err, ErrOutOfEpochRange)
}

// TestParseCivil exercises the string form, negative years included.
func TestParseCivil(t *testing.T) {
	tc, err := ParseCivil("-5000-01-01", CalendarGregorian)
	require.NoError(t, err)
	y, m, d := tc.Civil()
	assert.Equal(t, int64(-5000), y)
	assert.Equal(t, 1, m)
	assert.Equal(t, 1, d)
	assert.Negative(t, tc.Days)

	tc2, err := ParseCivil("2024-02-29", CalendarGregorian)
	require.NoError(t, err)
	assert.Positive(t, tc2.Days)

	for _, bad := range []string{"", "2024", "2024-13-01", "2024-02-30", "x-y-z", "2024-2"} {
		_, err := ParseCivil(bad, CalendarGregorian)
		assert.ErrorIs(t, err, errs.ErrValidation, "input %q", bad)
	}
}

// TestTemporalOrdering checks comparisons are pure offset math regardless of
// calendar tag.
func TestTemporalOrdering(t *testing.T) {
	g, err := FromCivil(1582, 10, 15, CalendarGregorian)
	require.NoError(t, err)
	j, err := FromCivil(1582, 10, 5, CalendarJulian)
	require.NoError(t, err)

	assert.True(t, g.Equal(j))
	assert.Equal(t, 0, g.Compare(j))

	later, err := j.AddDays(3)
	require.NoError(t, err)
	assert.True(t, g.Before(later))
	assert.True(t, later.After(g))
	assert.Equal(t, -1, g.Compare(later))
	assert.Equal(t, 1, later.Compare(g))
}

// TestRangeValidation covers tag mismatch and inversion.
func TestRangeValidation(t *testing.T) {
	a, _ := NewTemporal(10, CalendarGregorian)
	b, _ := NewTemporal(20, CalendarGregorian)
	j, _ := NewTemporal(30, CalendarJulian)

	r, err := NewRange(a, b)
	require.NoError(t, err)
	assert.Equal(t, int64(11), r.SpanDays())

	_, err = NewRange(b, a)
	assert.ErrorIs(t, err, ErrInvertedRange)

	_, err = NewRange(a, j)
	assert.ErrorIs(t, err, ErrCalendarMismatch)
}

// TestRangeOverlap is a table over inclusive overlap, containment and
// coverage.
func TestRangeOverlap(t *testing.T) {
	mk := func(s, e int64) Range {
		a, err := NewTemporal(s, CalendarGregorian)
		require.NoError(t, err)
		b, err := NewTemporal(e, CalendarGregorian)
		require.NoError(t, err)
		r, err := NewRange(a, b)
		require.NoError(t, err)
		return r
	}

	tests := []struct {
		name     string
		a, b     Range
		overlaps bool
		covers   bool
	}{
		{"disjoint", mk(0, 10), mk(11, 20), false, false},
		{"touching endpoints", mk(0, 10), mk(10, 20), true, false},
		{"nested", mk(-100, 100), mk(-5, 5), true, true},
		{"identical", mk(3, 7), mk(3, 7), true, true},
		{"straddling", mk(0, 10), mk(5, 15), true, false},
		{"negative span", mk(-3_000_000, -2_000_000), mk(-2_500_000, -1), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlaps, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.overlaps, tt.b.Overlaps(tt.a))
			assert.Equal(t, tt.covers, tt.a.Covers(tt.b))
		})
	}

	r := mk(0, 10)
	mid, _ := NewTemporal(5, CalendarGregorian)
	out, _ := NewTemporal(11, CalendarGregorian)
	assert.True(t, r.Contains(mid))
	assert.False(t, r.Contains(out))
}
