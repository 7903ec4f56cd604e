// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"math"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
)

// chunkSpec is one planned chunk: the exact byte run of its lines plus
// the decoded samples its bounds are computed from.
type chunkSpec struct {
	index     int
	plaintext []byte
	samples   []Sample
	firstLine int
	lastLine  int
}

// packChunks groups consecutive lines into chunks at record boundaries.
// A chunk closes when the next line would push it past targetBytes;
// every chunk carries at least one line, so an oversized line still
// becomes a single-line chunk. Identical payloads always produce
// identical chunks.
func packChunks(lines []line, targetBytes int) []chunkSpec {
	var out []chunkSpec
	for i := 0; i < len(lines); {
		spec := chunkSpec{index: len(out), firstLine: lines[i].num}
		for i < len(lines) {
			ln := lines[i]
			if len(spec.samples) > 0 && len(spec.plaintext)+len(ln.raw) > targetBytes {
				break
			}
			spec.plaintext = append(spec.plaintext, ln.raw...)
			spec.samples = append(spec.samples, ln.sample)
			spec.lastLine = ln.num
			i++
		}
		out = append(out, spec)
	}
	return out
}

// boundsOf computes the tight spatio-temporal extent of samples. The
// decoder guarantees a uniform calendar and frame.
func boundsOf(samples []Sample) (coordinate.Bounds, error) {
	start, end := samples[0].T, samples[0].T
	lo, hi := samples[0].Pos, samples[0].Pos
	for _, s := range samples[1:] {
		if s.T.Before(start) {
			start = s.T
		}
		if s.T.After(end) {
			end = s.T
		}
		lo.X = math.Min(lo.X, s.Pos.X)
		lo.Y = math.Min(lo.Y, s.Pos.Y)
		lo.Z = math.Min(lo.Z, s.Pos.Z)
		hi.X = math.Max(hi.X, s.Pos.X)
		hi.Y = math.Max(hi.Y, s.Pos.Y)
		hi.Z = math.Max(hi.Z, s.Pos.Z)
	}
	rng, err := coordinate.NewRange(start, end)
	if err != nil {
		return coordinate.Bounds{}, err
	}
	box, err := coordinate.NewBox(lo, hi)
	if err != nil {
		return coordinate.Bounds{}, err
	}
	return coordinate.NewBounds(rng, box)
}

// unionBounds is the smallest extent covering all of bs.
func unionBounds(bs []coordinate.Bounds) (coordinate.Bounds, error) {
	u := bs[0]
	for _, b := range bs[1:] {
		if b.Time.Start.Before(u.Time.Start) {
			u.Time.Start = b.Time.Start
		}
		if b.Time.End.After(u.Time.End) {
			u.Time.End = b.Time.End
		}
		u.Space.Min.X = math.Min(u.Space.Min.X, b.Space.Min.X)
		u.Space.Min.Y = math.Min(u.Space.Min.Y, b.Space.Min.Y)
		u.Space.Min.Z = math.Min(u.Space.Min.Z, b.Space.Min.Z)
		u.Space.Max.X = math.Max(u.Space.Max.X, b.Space.Max.X)
		u.Space.Max.Y = math.Max(u.Space.Max.Y, b.Space.Max.Y)
		u.Space.Max.Z = math.Max(u.Space.Max.Z, b.Space.Max.Z)
	}
	if err := u.Validate(); err != nil {
		return coordinate.Bounds{}, err
	}
	return u, nil
}
