// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

// Mode picks which versions of a paper a query covers.
type Mode string

const (
	// ModeHead covers the paper's current head version only.
	ModeHead Mode = "head"

	// ModeAll covers every published version, number ascending.
	ModeAll Mode = "all"

	// ModeSpecific covers the one version named in the selector.
	ModeSpecific Mode = "specific"
)

// Selector names the versions a request targets.
type Selector struct {
	Mode      Mode   `json:"mode"`
	VersionID string `json:"version_id,omitempty"`
}

// Head selects the paper's current head version.
func Head() Selector { return Selector{Mode: ModeHead} }

// AllVersions selects every published version.
func AllVersions() Selector { return Selector{Mode: ModeAll} }

// Version selects one specific published version.
func Version(versionID string) Selector {
	return Selector{Mode: ModeSpecific, VersionID: versionID}
}

// Validate rejects malformed selectors.
func (s Selector) Validate() error {
	switch s.Mode {
	case ModeHead, ModeAll:
		return nil
	case ModeSpecific:
		if s.VersionID == "" {
			return errs.Validationf("specific selector requires a version id")
		}
		return nil
	default:
		return errs.Validationf("unknown selector mode %q", s.Mode)
	}
}

// Filter constrains results per axis. A nil axis is unconstrained; a set
// axis must itself validate.
type Filter struct {
	Time  *coordinate.Range `json:"time,omitempty"`
	Space *coordinate.Box   `json:"space,omitempty"`
}

// Validate checks the set axes.
func (f Filter) Validate() error {
	if f.Time != nil {
		if err := f.Time.Validate(); err != nil {
			return err
		}
	}
	if f.Space != nil {
		if err := f.Space.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// matches reports whether bounds overlap every set axis. A frame
// mismatch between the filter box and the chunk is an error.
func (f Filter) matches(b coordinate.Bounds) (bool, error) {
	if f.Time != nil && !f.Time.Overlaps(b.Time) {
		return false, nil
	}
	if f.Space != nil {
		return f.Space.Intersects(b.Space)
	}
	return true, nil
}

// Request describes one query.
type Request struct {
	PaperID  string   `json:"paper_id"`
	Selector Selector `json:"selector"`
	Filter   Filter   `json:"filter"`

	// After resumes a paginated walk: items at or before this position
	// token are skipped. Tokens come from Cursor.Position.
	After string `json:"after,omitempty"`
}

// Validate rejects malformed requests.
func (r Request) Validate() error {
	if r.PaperID == "" {
		return errs.Validationf("paper id must not be empty")
	}
	if err := r.Selector.Validate(); err != nil {
		return err
	}
	return r.Filter.Validate()
}

// Item is one query hit: a chunk descriptor in its version context.
// Chunk bytes are not loaded; fetch them through the vault.
type Item struct {
	PaperID   string      `json:"paper_id"`
	VersionID string      `json:"version_id"`
	Number    int         `json:"number"`
	DatasetID string      `json:"dataset_id"`
	Chunk     vault.Chunk `json:"chunk"`
}
