// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coordinate

import (
	"fmt"
	"math"
)

// Frame identifies the reference frame spatial coordinates are expressed in.
// Two coordinates are comparable only under the same frame; cross-frame
// geometry is a validation error, never a silent coercion.
type Frame string

// Common frames. The set is open: any well-formed token is accepted.
const (
	FrameSiteLocal  Frame = "site_local"
	FrameGeocentric Frame = "geocentric"
)

const maxFrameLen = 64

// Validate checks the frame token: non-empty, at most 64 bytes, lowercase
// letter first, then lowercase letters, digits, '_' or '-'.
func (f Frame) Validate() error {
	if len(f) == 0 || len(f) > maxFrameLen {
		return fmt.Errorf("%w: %q", ErrBadFrame, f)
	}
	for i := 0; i < len(f); i++ {
		c := f[i]
		switch {
		case c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_' || c == '-'):
		default:
			return fmt.Errorf("%w: %q", ErrBadFrame, f)
		}
	}
	return nil
}

// Spatial is a real-valued (x, y, z) position in a named reference frame.
type Spatial struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Frame Frame   `json:"frame"`
}

// NewSpatial builds a validated Spatial. Components must be finite.
func NewSpatial(x, y, z float64, frame Frame) (Spatial, error) {
	s := Spatial{X: x, Y: y, Z: z, Frame: frame}
	if err := s.Validate(); err != nil {
		return Spatial{}, err
	}
	return s, nil
}

// Validate rejects NaN or infinite components and malformed frames.
func (s Spatial) Validate() error {
	for _, c := range [3]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: (%v, %v, %v)", ErrNonFinite, s.X, s.Y, s.Z)
		}
	}
	return s.Frame.Validate()
}

// SameFrame reports whether s and o share a reference frame.
func (s Spatial) SameFrame(o Spatial) bool { return s.Frame == o.Frame }

func (s Spatial) String() string {
	return fmt.Sprintf("(%g, %g, %g)@%s", s.X, s.Y, s.Z, s.Frame)
}

// Box is an axis-aligned bounding box: Min and Max corners in one frame,
// Min <= Max on every axis. Boundaries are inclusive.
type Box struct {
	Min Spatial `json:"min"`
	Max Spatial `json:"max"`
}

// NewBox builds a validated Box from two corners.
func NewBox(min, max Spatial) (Box, error) {
	b := Box{Min: min, Max: max}
	if err := b.Validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

// Validate checks both corners, frame uniformity and axis ordering.
func (b Box) Validate() error {
	if err := b.Min.Validate(); err != nil {
		return fmt.Errorf("box min: %w", err)
	}
	if err := b.Max.Validate(); err != nil {
		return fmt.Errorf("box max: %w", err)
	}
	if b.Min.Frame != b.Max.Frame {
		return fmt.Errorf("%w: %q vs %q", ErrFrameMismatch, b.Min.Frame, b.Max.Frame)
	}
	if b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z {
		return fmt.Errorf("%w: min %s max %s", ErrInvertedBox, b.Min, b.Max)
	}
	return nil
}

// Frame is the box's reference frame.
func (b Box) Frame() Frame { return b.Min.Frame }

// Intersects reports inclusive axis-aligned overlap with o. Cross-frame
// operands return ErrFrameMismatch.
func (b Box) Intersects(o Box) (bool, error) {
	if b.Frame() != o.Frame() {
		return false, fmt.Errorf("%w: %q vs %q", ErrFrameMismatch, b.Frame(), o.Frame())
	}
	if b.Max.X < o.Min.X || o.Max.X < b.Min.X {
		return false, nil
	}
	if b.Max.Y < o.Min.Y || o.Max.Y < b.Min.Y {
		return false, nil
	}
	if b.Max.Z < o.Min.Z || o.Max.Z < b.Min.Z {
		return false, nil
	}
	return true, nil
}

// Contains reports whether point p lies inside the box, inclusive.
func (b Box) Contains(p Spatial) (bool, error) {
	if b.Frame() != p.Frame {
		return false, fmt.Errorf("%w: %q vs %q", ErrFrameMismatch, b.Frame(), p.Frame)
	}
	return b.Min.X <= p.X && p.X <= b.Max.X &&
		b.Min.Y <= p.Y && p.Y <= b.Max.Y &&
		b.Min.Z <= p.Z && p.Z <= b.Max.Z, nil
}

// Covers reports whether o lies entirely inside b.
func (b Box) Covers(o Box) (bool, error) {
	if b.Frame() != o.Frame() {
		return false, fmt.Errorf("%w: %q vs %q", ErrFrameMismatch, b.Frame(), o.Frame())
	}
	return b.Min.X <= o.Min.X && o.Max.X <= b.Max.X &&
		b.Min.Y <= o.Min.Y && o.Max.Y <= b.Max.Y &&
		b.Min.Z <= o.Min.Z && o.Max.Z <= b.Max.Z, nil
}

// Extend grows the box to include point p, returning the grown box.
func (b Box) Extend(p Spatial) (Box, error) {
	if b.Frame() != p.Frame {
		return Box{}, fmt.Errorf("%w: %q vs %q", ErrFrameMismatch, b.Frame(), p.Frame)
	}
	out := b
	out.Min.X = math.Min(out.Min.X, p.X)
	out.Min.Y = math.Min(out.Min.Y, p.Y)
	out.Min.Z = math.Min(out.Min.Z, p.Z)
	out.Max.X = math.Max(out.Max.X, p.X)
	out.Max.Y = math.Max(out.Max.Y, p.Y)
	out.Max.Z = math.Max(out.Max.Z, p.Z)
	return out, nil
}

// PointBox is the degenerate box containing exactly p.
func PointBox(p Spatial) Box {
	return Box{Min: p, Max: p}
}

func (b Box) String() string {
	return fmt.Sprintf("[%s .. %s]", b.Min, b.Max)
}
