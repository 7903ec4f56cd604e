// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package coordinate encodes spatial position and extended-range time values
// for 4D datasets.
//
// Time is a signed count of days from 1970-01-01 of the proleptic Gregorian
// calendar (day zero), wide enough for ten millennia in either direction.
// Conversions between day offsets and civil dates use era-based integer
// arithmetic rather than the time package: time.Duration saturates near
// +/-292 years, far short of the required range. Comparisons are pure integer
// math on the epoch offset and never depend on wall clocks or timezones.
//
// All predicates in this package are pure and total; the package holds no
// state.
package coordinate

import (
	"fmt"
	"strconv"
	"strings"
)

// Calendar tags the civil calendar a coordinate's source date was expressed
// in. The day offset itself is always absolute; the tag records how the
// offset was derived and how it renders back to a civil date.
type Calendar string

const (
	// CalendarGregorian is the proleptic Gregorian calendar.
	CalendarGregorian Calendar = "proleptic_gregorian"
	// CalendarJulian is the proleptic Julian calendar.
	CalendarJulian Calendar = "proleptic_julian"
	// CalendarHolocene is the Holocene era: Gregorian with 10000 added to
	// the year number, so year 0 HE is 10000 BCE.
	CalendarHolocene Calendar = "holocene"
)

// MaxDayMagnitude bounds the supported epoch offset: ten millennia of days
// either side of day zero, with slack for calendar conversion.
const MaxDayMagnitude int64 = 3_652_500

// holoceneYearShift converts Holocene year numbers to Gregorian.
const holoceneYearShift int64 = 10_000

// ValidCalendar reports whether tag is a recognized calendar.
func ValidCalendar(tag Calendar) bool {
	switch tag {
	case CalendarGregorian, CalendarJulian, CalendarHolocene:
		return true
	default:
		return false
	}
}

// Temporal is a point on the archive's time axis: a signed day offset from
// day zero plus the calendar tag it was derived under.
type Temporal struct {
	Days     int64    `json:"days"`
	Calendar Calendar `json:"calendar"`
}

// NewTemporal builds a validated Temporal from a raw day offset.
//
// # Inputs
//
//   - days: signed offset from 1970-01-01 (proleptic Gregorian).
//   - cal: calendar tag; must be one of the recognized constants.
//
// # Outputs
//
//   - Temporal: the validated coordinate.
//   - error: ErrUnknownCalendar or ErrOutOfEpochRange.
func NewTemporal(days int64, cal Calendar) (Temporal, error) {
	t := Temporal{Days: days, Calendar: cal}
	if err := t.Validate(); err != nil {
		return Temporal{}, err
	}
	return t, nil
}

// FromCivil builds a Temporal from a civil date in the given calendar.
//
// # Inputs
//
//   - year: astronomical year numbering (year 0 exists; -1 is 2 BCE).
//   - month, day: civil month 1-12 and day of month.
//   - cal: calendar the civil date is expressed in.
//
// # Outputs
//
//   - Temporal: coordinate whose offset lands on that civil day.
//   - error: ErrInvalidCivil for impossible dates (e.g. February 30),
//     ErrUnknownCalendar, or ErrOutOfEpochRange.
func FromCivil(year int64, month, day int, cal Calendar) (Temporal, error) {
	if !ValidCalendar(cal) {
		return Temporal{}, fmt.Errorf("%w: %q", ErrUnknownCalendar, cal)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Temporal{}, fmt.Errorf("%w: %d-%02d-%02d", ErrInvalidCivil, year, month, day)
	}

	var days int64
	switch cal {
	case CalendarGregorian:
		days = daysFromGregorian(year, month, day)
	case CalendarJulian:
		days = daysFromJulian(year, month, day)
	case CalendarHolocene:
		days = daysFromGregorian(year-holoceneYearShift, month, day)
	}

	t, err := NewTemporal(days, cal)
	if err != nil {
		return Temporal{}, err
	}
	// Round-trip check rejects dates like April 31 that the era math
	// silently normalizes into the next month.
	y2, m2, d2 := t.Civil()
	if y2 != year || m2 != month || d2 != day {
		return Temporal{}, fmt.Errorf("%w: %d-%02d-%02d (%s)", ErrInvalidCivil, year, month, day, cal)
	}
	return t, nil
}

// ParseCivil parses "YYYY-MM-DD" (year may be negative and of any width)
// into a Temporal under the given calendar.
func ParseCivil(s string, cal Calendar) (Temporal, error) {
	rest := s
	neg := false
	if strings.HasPrefix(rest, "-") {
		neg = true
		rest = rest[1:]
	}
	parts := strings.Split(rest, "-")
	if len(parts) != 3 {
		return Temporal{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidCivil, s)
	}
	year, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Temporal{}, fmt.Errorf("%w: year in %q", ErrInvalidCivil, s)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Temporal{}, fmt.Errorf("%w: month in %q", ErrInvalidCivil, s)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return Temporal{}, fmt.Errorf("%w: day in %q", ErrInvalidCivil, s)
	}
	if neg {
		year = -year
	}
	return FromCivil(year, month, day, cal)
}

// Validate checks the calendar tag and the epoch range.
func (t Temporal) Validate() error {
	if !ValidCalendar(t.Calendar) {
		return fmt.Errorf("%w: %q", ErrUnknownCalendar, t.Calendar)
	}
	if t.Days > MaxDayMagnitude || t.Days < -MaxDayMagnitude {
		return fmt.Errorf("%w: day %d exceeds %d", ErrOutOfEpochRange, t.Days, MaxDayMagnitude)
	}
	return nil
}

// Civil returns the coordinate's civil date in its own calendar.
func (t Temporal) Civil() (year int64, month, day int) {
	switch t.Calendar {
	case CalendarJulian:
		return julianFromDays(t.Days)
	case CalendarHolocene:
		y, m, d := gregorianFromDays(t.Days)
		return y + holoceneYearShift, m, d
	default:
		return gregorianFromDays(t.Days)
	}
}

// Compare orders two coordinates by epoch offset: -1, 0 or +1. The calendar
// tag never participates; offsets are absolute.
func (t Temporal) Compare(o Temporal) int {
	switch {
	case t.Days < o.Days:
		return -1
	case t.Days > o.Days:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than o.
func (t Temporal) Before(o Temporal) bool { return t.Days < o.Days }

// After reports whether t is strictly later than o.
func (t Temporal) After(o Temporal) bool { return t.Days > o.Days }

// Equal reports offset equality; tags may differ.
func (t Temporal) Equal(o Temporal) bool { return t.Days == o.Days }

// AddDays returns the coordinate shifted by n days, revalidated.
func (t Temporal) AddDays(n int64) (Temporal, error) {
	return NewTemporal(t.Days+n, t.Calendar)
}

func (t Temporal) String() string {
	y, m, d := t.Civil()
	return fmt.Sprintf("%d-%02d-%02d(%s)", y, m, d, t.Calendar)
}

// Range is an inclusive span on the time axis. Start and End carry the same
// calendar tag; overlap math uses day offsets only.
type Range struct {
	Start Temporal `json:"start"`
	End   Temporal `json:"end"`
}

// NewRange builds a validated Range.
func NewRange(start, end Temporal) (Range, error) {
	r := Range{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

// Validate checks both endpoints, tag uniformity and ordering.
func (r Range) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return fmt.Errorf("range start: %w", err)
	}
	if err := r.End.Validate(); err != nil {
		return fmt.Errorf("range end: %w", err)
	}
	if r.Start.Calendar != r.End.Calendar {
		return fmt.Errorf("%w: %q vs %q", ErrCalendarMismatch, r.Start.Calendar, r.End.Calendar)
	}
	if r.Start.Days > r.End.Days {
		return fmt.Errorf("%w: %d > %d", ErrInvertedRange, r.Start.Days, r.End.Days)
	}
	return nil
}

// Overlaps reports inclusive overlap with o.
func (r Range) Overlaps(o Range) bool {
	return r.Start.Days <= o.End.Days && o.Start.Days <= r.End.Days
}

// Contains reports whether t falls inside the range, inclusive.
func (r Range) Contains(t Temporal) bool {
	return r.Start.Days <= t.Days && t.Days <= r.End.Days
}

// Covers reports whether o lies entirely inside r.
func (r Range) Covers(o Range) bool {
	return r.Start.Days <= o.Start.Days && o.End.Days <= r.End.Days
}

// SpanDays is the inclusive day count of the range.
func (r Range) SpanDays() int64 {
	return r.End.Days - r.Start.Days + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%s .. %s]", r.Start, r.End)
}

// ============================================================================
// Era-based civil conversions
// ============================================================================
//
// The Gregorian pair follows the classic shifted-month formulation: years
// run March..February so the leap day is the final day of the shifted year,
// grouped into 400-year eras of exactly 146097 days. The Julian pair uses
// the same shift with 4-year eras of 1461 days. Both are exact over the
// full supported range, for negative years included.

const (
	gregorianEpochShift = 719468 // days from 0000-03-01 to 1970-01-01 (Gregorian)
	julianEpochShift    = 719470 // days from 0000-03-01 to 1970-01-01 (Julian alignment)
	gregorianEraDays    = 146097
	julianEraDays       = 1461
)

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func shiftMonth(month int) int64 {
	if month > 2 {
		return int64(month - 3)
	}
	return int64(month + 9)
}

func daysFromGregorian(year int64, month, day int) int64 {
	y := year
	if month <= 2 {
		y--
	}
	era := floorDiv(y, 400)
	yoe := y - era*400
	doy := (153*shiftMonth(month)+2)/5 + int64(day) - 1
	doe := yoe*365 + yoe/4 - yoe/100 + doy
	return era*gregorianEraDays + doe - gregorianEpochShift
}

func gregorianFromDays(days int64) (year int64, month, day int) {
	z := days + gregorianEpochShift
	era := floorDiv(z, gregorianEraDays)
	doe := z - era*gregorianEraDays
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = int(doy - (153*mp+2)/5 + 1)
	if mp < 10 {
		month = int(mp + 3)
	} else {
		month = int(mp - 9)
	}
	if month <= 2 {
		y++
	}
	return y, month, day
}

func daysFromJulian(year int64, month, day int) int64 {
	y := year
	if month <= 2 {
		y--
	}
	era := floorDiv(y, 4)
	yoe := y - era*4
	doy := (153*shiftMonth(month)+2)/5 + int64(day) - 1
	doe := yoe*365 + doy
	return era*julianEraDays + doe - julianEpochShift
}

func julianFromDays(days int64) (year int64, month, day int) {
	z := days + julianEpochShift
	era := floorDiv(z, julianEraDays)
	doe := z - era*julianEraDays
	yoe := (doe - doe/1460) / 365
	y := yoe + era*4
	doy := doe - yoe*365
	mp := (5*doy + 2) / 153
	day = int(doy - (153*mp+2)/5 + 1)
	if mp < 10 {
		month = int(mp + 3)
	} else {
		month = int(mp - 9)
	}
	if month <= 2 {
		y++
	}
	return y, month, day
}
