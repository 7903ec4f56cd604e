// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lineage

import (
	"fmt"

	"github.com/google/uuid"
)

// State is the lifecycle position of a version. Transitions only move
// forward: Draft -> Published -> Superseded.
type State string

const (
	// StateDraft is the only mutable state. Metadata, dataset reference
	// and policy may change.
	StateDraft State = "draft"

	// StatePublished means the version is the paper's head. Immutable.
	StatePublished State = "published"

	// StateSuperseded means a later publish replaced this version as
	// head. Still immutable and queryable.
	StateSuperseded State = "superseded"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StatePublished, StateSuperseded:
		return true
	}
	return false
}

// Policy controls who may see a version's metadata and data. It is mutable
// only while the version is a Draft and frozen forever at publish.
type Policy string

const (
	// PolicyPublic grants every capability to every viewer.
	PolicyPublic Policy = "public"

	// PolicyAuthorOnly restricts every capability to the author team,
	// the paper owner and admins.
	PolicyAuthorOnly Policy = "author_only"

	// PolicyStatsPublic exposes metadata and statistics to everyone
	// while data access stays author-only.
	PolicyStatsPublic Policy = "stats_public_data_private"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyPublic, PolicyAuthorOnly, PolicyStatsPublic:
		return true
	}
	return false
}

// Metadata is the author-supplied description of one version.
type Metadata struct {
	Title        string   `json:"title"`
	AbstractDiff string   `json:"abstract_diff,omitempty"`
	UpdateReason string   `json:"update_reason,omitempty"`
	AuthorTeam   []string `json:"author_team,omitempty"`
}

// Validate rejects metadata without a title.
func (m Metadata) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("metadata title must not be empty")
	}
	return nil
}

// Version is one immutable snapshot in a paper's lineage.
//
// Number is 0 while the version is a Draft; publish assigns parent's
// number + 1 (1 for a root). ParentID is empty only for root versions.
// Timestamps are Unix milliseconds.
type Version struct {
	ID           string   `json:"id"`
	PaperID      string   `json:"paper_id"`
	Number       int      `json:"number,omitempty"`
	ParentID     string   `json:"parent_id,omitempty"`
	State        State    `json:"state"`
	DatasetID    string   `json:"dataset_id,omitempty"`
	Metadata     Metadata `json:"metadata"`
	Policy       Policy   `json:"policy"`
	CertHash     string   `json:"cert_hash,omitempty"`
	CreatedAt    int64    `json:"created_at"`
	PublishedAt  int64    `json:"published_at,omitempty"`
	SupersededAt int64    `json:"superseded_at,omitempty"`
}

// Root reports whether the version starts a lineage (no parent).
func (v *Version) Root() bool { return v.ParentID == "" }

// Readable reports whether the version participates in queries.
func (v *Version) Readable() bool {
	return v.State == StatePublished || v.State == StateSuperseded
}

// Paper is the stable anchor of one lineage. The head pointer lives in a
// separate record so publish can compare-and-swap it without rewriting the
// paper.
type Paper struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

// head is the CAS anchor: the currently canonical version of a paper.
type head struct {
	VersionID string `json:"version_id"`
	Number    int    `json:"number"`
}

func newPaperID() string   { return "paper-" + uuid.NewString() }
func newVersionID() string { return "ver-" + uuid.NewString() }

// ============================================================================
// Key scheme
// ============================================================================

func paperKey(paperID string) []byte { return []byte("p:" + paperID) }

func headKey(paperID string) []byte { return []byte("ph:" + paperID) }

func versionKey(versionID string) []byte { return []byte("v:" + versionID) }

// numberKey orders the published lineage; zero-padding keeps byte order
// equal to numeric order.
func numberKey(paperID string, number int) []byte {
	return []byte(fmt.Sprintf("vn:%s:%012d", paperID, number))
}

// draftKey indexes unpublished versions per paper; removed at publish.
func draftKey(paperID, versionID string) []byte {
	return []byte("vd:" + paperID + ":" + versionID)
}

func chainLinkKey(paperID string, seq int) []byte {
	return []byte(fmt.Sprintf("cl:%s:%012d", paperID, seq))
}

func chainHeadKey(paperID string) []byte { return []byte("clh:" + paperID) }

func paperPrefix() []byte { return []byte("p:") }

func numberPrefix(paperID string) []byte { return []byte("vn:" + paperID + ":") }

func draftPrefix(paperID string) []byte { return []byte("vd:" + paperID + ":") }

func chainLinkPrefix(paperID string) []byte { return []byte("cl:" + paperID + ":") }
