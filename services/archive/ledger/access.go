// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger enforces version access policies and keeps per-version
// view and download statistics.
//
// Access is capability based: a viewer asks for ViewMetadata, ViewData or
// Download on a specific version and Check answers against the policy the
// version was published with. Statistics are idempotent per
// (version, viewer, day, kind), so retried requests and refresh storms
// never inflate counts.
package ledger

import (
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

// Capability is one grantable right on a paper version.
type Capability string

const (
	// CapViewMetadata covers titles, abstracts, version history and stats.
	CapViewMetadata Capability = "view_metadata"

	// CapViewData covers decrypted chunk reads through the query engine.
	CapViewData Capability = "view_data"

	// CapDownload covers bulk retrieval of a version's dataset.
	CapDownload Capability = "download"
)

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapViewMetadata, CapViewData, CapDownload:
		return true
	}
	return false
}

// RoleAdmin grants authorship-level access on every paper.
const RoleAdmin = "admin"

// Viewer is the identity a caller presents. The archive does not
// authenticate viewers; identity and roles come from the embedding
// application.
type Viewer struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole reports whether the viewer carries the named role.
func (v Viewer) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Author reports whether the viewer counts as an author of the version:
// the paper owner, a member of the version's author team, or an admin.
func Author(viewer Viewer, paper lineage.Paper, version lineage.Version) bool {
	if viewer.ID == "" {
		return false
	}
	if viewer.HasRole(RoleAdmin) {
		return true
	}
	if viewer.ID == paper.OwnerID {
		return true
	}
	for _, member := range version.Metadata.AuthorTeam {
		if member == viewer.ID {
			return true
		}
	}
	return false
}

// Check evaluates whether viewer holds capability on version under the
// version's access policy. Drafts are visible to authors only regardless
// of policy. Denials wrap ErrPermission and name the version and
// capability.
func Check(viewer Viewer, paper lineage.Paper, version lineage.Version, capability Capability) error {
	if !capability.Valid() {
		return errs.Validationf("unknown capability %q", capability)
	}
	if version.PaperID != paper.ID {
		return errs.Validationf("version %s belongs to paper %s, not %s", version.ID, version.PaperID, paper.ID)
	}
	author := Author(viewer, paper, version)
	if version.State == lineage.StateDraft {
		if author {
			return nil
		}
		return errs.Permissionf("version %s is an unpublished draft", version.ID)
	}
	switch version.Policy {
	case lineage.PolicyPublic:
		return nil
	case lineage.PolicyAuthorOnly:
		if author {
			return nil
		}
	case lineage.PolicyStatsPublic:
		if capability == CapViewMetadata || author {
			return nil
		}
	default:
		return errs.Validationf("version %s carries unknown policy %q", version.ID, version.Policy)
	}
	return errs.Permissionf("viewer %q lacks %s on version %s", viewer.ID, capability, version.ID)
}
