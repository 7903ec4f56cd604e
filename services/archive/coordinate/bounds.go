// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coordinate

import "fmt"

// Bounds is a 4D extent: an inclusive temporal range plus a spatial box.
// Datasets declare Bounds at ingest; every chunk carries its own computed
// Bounds; the query engine filters on Bounds overlap.
type Bounds struct {
	Time  Range `json:"time"`
	Space Box   `json:"space"`
}

// NewBounds builds validated Bounds.
func NewBounds(time Range, space Box) (Bounds, error) {
	b := Bounds{Time: time, Space: space}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// Validate checks both axes.
func (b Bounds) Validate() error {
	if err := b.Time.Validate(); err != nil {
		return err
	}
	return b.Space.Validate()
}

// Overlaps reports whether b and o overlap on both axes. A frame mismatch is
// an error, not false.
func (b Bounds) Overlaps(o Bounds) (bool, error) {
	spatial, err := b.Space.Intersects(o.Space)
	if err != nil {
		return false, err
	}
	return b.Time.Overlaps(o.Time) && spatial, nil
}

// Covers reports whether o lies entirely inside b on both axes.
func (b Bounds) Covers(o Bounds) (bool, error) {
	spatial, err := b.Space.Covers(o.Space)
	if err != nil {
		return false, err
	}
	return b.Time.Covers(o.Time) && spatial, nil
}

func (b Bounds) String() string {
	return fmt.Sprintf("t%s s%s", b.Time, b.Space)
}
