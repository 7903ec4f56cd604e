// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides the request and response types of the archive
// facade.
//
// Every request carries go-playground/validator tags and a Validate method;
// the facade validates before touching any state, so malformed input never
// reaches storage. Failed validations surface as the archive's
// ValidationError kind.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/ledger"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

const (
	// MaxPayloadBytes caps a single ingestion payload. Larger submissions
	// must be split across datasets.
	MaxPayloadBytes = 256 * 1024 * 1024 // 256 MiB

	// MaxTitleBytes caps paper and version titles.
	MaxTitleBytes = 1024

	// dayLayout is the civil UTC day format used by the statistics ledger.
	dayLayout = "2006-01-02"
)

// archiveValidate is the validator instance for archive datatypes.
// Initialized in init() with custom validators.
var archiveValidate *validator.Validate

func init() {
	archiveValidate = validator.New()

	_ = archiveValidate.RegisterValidation("civilday", validateCivilDay)
	_ = archiveValidate.RegisterValidation("policy", validatePolicy)
}

// validateCivilDay accepts an empty string (the facade defaults it to
// today) or a YYYY-MM-DD civil day.
func validateCivilDay(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.Parse(dayLayout, s)
	return err == nil
}

// validatePolicy accepts an empty policy (callers inherit a default) or
// one of the lineage access policies.
func validatePolicy(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	return lineage.Policy(s).Valid()
}

// validationError converts a validator failure into the archive taxonomy,
// naming the first offending field.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errs.Validationf("field %s fails %q constraint", fe.Namespace(), fe.Tag())
	}
	return errs.Wrap(errs.ErrValidation, err)
}

// Actor is the identity the caller presents on every gated request. The
// archive does not authenticate actors; ids and roles come from the
// embedding application's identity provider.
type Actor struct {
	ID    string   `json:"id" validate:"required,max=256"`
	Roles []string `json:"roles,omitempty" validate:"max=16,dive,max=64"`
}

// Viewer converts the actor into the ledger's viewer identity.
func (a Actor) Viewer() ledger.Viewer {
	return ledger.Viewer{ID: a.ID, Roles: a.Roles}
}

// ============================================================================
// Paper and draft shaping
// ============================================================================

// CreatePaperRequest initializes a paper with its root draft version.
type CreatePaperRequest struct {
	Actor    Actor            `json:"actor" validate:"required"`
	Title    string           `json:"title" validate:"required,max=1024"`
	Policy   string           `json:"policy" validate:"policy"`
	Metadata lineage.Metadata `json:"metadata"`
}

// Validate validates the request fields.
func (r *CreatePaperRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// CreatePaperResponse carries the new paper and its root draft.
type CreatePaperResponse struct {
	Paper lineage.Paper   `json:"paper"`
	Root  lineage.Version `json:"root"`
}

// NewDraftRequest opens a draft version. An empty ParentID selects the
// paper's current head.
type NewDraftRequest struct {
	Actor    Actor            `json:"actor" validate:"required"`
	PaperID  string           `json:"paper_id" validate:"required"`
	ParentID string           `json:"parent_id,omitempty"`
	Policy   string           `json:"policy" validate:"policy"`
	Metadata lineage.Metadata `json:"metadata"`
}

// Validate validates the request fields.
func (r *NewDraftRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// SetDraftRequest mutates a draft: any combination of dataset, policy and
// metadata. Zero-valued fields are left untouched.
type SetDraftRequest struct {
	Actor     Actor             `json:"actor" validate:"required"`
	VersionID string            `json:"version_id" validate:"required"`
	DatasetID string            `json:"dataset_id,omitempty"`
	Policy    string            `json:"policy" validate:"policy"`
	Metadata  *lineage.Metadata `json:"metadata,omitempty"`
}

// Validate validates the request fields.
func (r *SetDraftRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// PublishRequest promotes a draft to the paper's new head.
type PublishRequest struct {
	Actor     Actor  `json:"actor" validate:"required"`
	VersionID string `json:"version_id" validate:"required"`
}

// Validate validates the request fields.
func (r *PublishRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// PublishResponse carries the published version. After a ConflictError the
// facade re-reads the head so the caller can rebase without a second round
// trip; Head is set only in that case.
type PublishResponse struct {
	Version lineage.Version  `json:"version"`
	Head    *lineage.Version `json:"head,omitempty"`
}

// ============================================================================
// Ingestion
// ============================================================================

// IngestRequest submits one raw 4D payload for a paper. Declared bounds
// are optional: when nil, the pipeline derives them from the payload
// (watch-folder mode).
type IngestRequest struct {
	Actor    Actor              `json:"actor" validate:"required"`
	PaperID  string             `json:"paper_id" validate:"required"`
	Payload  []byte             `json:"payload" validate:"required,max=268435456"`
	Declared *coordinate.Bounds `json:"declared,omitempty"`
}

// Validate validates the request fields, including the declared bounds
// when present.
func (r *IngestRequest) Validate() error {
	if err := validationError(archiveValidate.Struct(r)); err != nil {
		return err
	}
	if r.Declared != nil {
		if err := r.Declared.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IngestResponse carries the committed dataset manifest.
type IngestResponse struct {
	Dataset ingest.Dataset `json:"dataset"`
}

// ============================================================================
// Reads
// ============================================================================

// FetchRequest retrieves one decrypted chunk. An empty VersionID selects
// the paper's head; the chunk must belong to the selected version's
// dataset. Day stamps the download statistic and defaults to today (UTC).
type FetchRequest struct {
	Actor     Actor  `json:"actor" validate:"required"`
	PaperID   string `json:"paper_id" validate:"required"`
	VersionID string `json:"version_id,omitempty"`
	ChunkHash string `json:"chunk_hash" validate:"required,len=64,hexadecimal"`
	Day       string `json:"day,omitempty" validate:"civilday"`
}

// Validate validates the request fields.
func (r *FetchRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// FetchResponse carries the plaintext and its descriptor. Counted reports
// whether this fetch incremented the download counter (false when the
// viewer already downloaded today).
type FetchResponse struct {
	Plaintext []byte         `json:"plaintext"`
	Chunk     vault.Chunk    `json:"chunk"`
	Counter   ledger.Counter `json:"counter"`
	Counted   bool           `json:"counted"`
}

// QueryRequest runs a spatio-temporal range query. Mode selects versions:
// "head", "all", or "version" with VersionID set. Nil filter axes are
// unconstrained.
type QueryRequest struct {
	Actor     Actor             `json:"actor" validate:"required"`
	PaperID   string            `json:"paper_id" validate:"required"`
	Mode      string            `json:"mode" validate:"required,oneof=head all version"`
	VersionID string            `json:"version_id,omitempty"`
	Time      *coordinate.Range `json:"time,omitempty"`
	Space     *coordinate.Box   `json:"space,omitempty"`
	After     string            `json:"after,omitempty"`
}

// Validate validates the request fields, including any set filter axes.
func (r *QueryRequest) Validate() error {
	if err := validationError(archiveValidate.Struct(r)); err != nil {
		return err
	}
	if r.Mode == "version" && r.VersionID == "" {
		return errs.Validationf("mode \"version\" requires a version id")
	}
	if r.Time != nil {
		if err := r.Time.Validate(); err != nil {
			return err
		}
	}
	if r.Space != nil {
		if err := r.Space.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Statistics
// ============================================================================

// ViewRequest records a view of a published version, idempotently per
// (version, viewer, day). Day defaults to today (UTC).
type ViewRequest struct {
	Actor     Actor  `json:"actor" validate:"required"`
	VersionID string `json:"version_id" validate:"required"`
	Day       string `json:"day,omitempty" validate:"civilday"`
}

// Validate validates the request fields.
func (r *ViewRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// StatsRequest reads a version's aggregate counters.
type StatsRequest struct {
	Actor     Actor  `json:"actor" validate:"required"`
	VersionID string `json:"version_id" validate:"required"`
}

// Validate validates the request fields.
func (r *StatsRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// StatsResponse carries a version's aggregate statistics.
type StatsResponse struct {
	Summary ledger.Summary `json:"summary"`

	// Counter and Counted are set by RecordView only.
	Counter *ledger.Counter `json:"counter,omitempty"`
	Counted bool            `json:"counted,omitempty"`
}

// ============================================================================
// Administration
// ============================================================================

// RotateRequest rotates a paper's master key. Owner or admin only.
type RotateRequest struct {
	Actor   Actor  `json:"actor" validate:"required"`
	PaperID string `json:"paper_id" validate:"required"`
}

// Validate validates the request fields.
func (r *RotateRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// RotateResponse reports the new key version and how many chunks were
// re-wrapped under it.
type RotateResponse struct {
	KeyVersion int `json:"key_version"`
	Rewrapped  int `json:"rewrapped"`
}

// VerifyRequest re-verifies one paper: every chunk decrypt-checks and the
// certification chain re-walks.
type VerifyRequest struct {
	PaperID string `json:"paper_id" validate:"required"`
}

// Validate validates the request fields.
func (r *VerifyRequest) Validate() error {
	return validationError(archiveValidate.Struct(r))
}

// VerifyFinding names one defect found by VerifyPaper.
type VerifyFinding struct {
	Kind      string `json:"kind"` // "chunk" or "chain"
	ChunkHash string `json:"chunk_hash,omitempty"`
	Detail    string `json:"detail"`
}

// VerifyResponse reports the verification outcome. Findings empty means
// the paper is intact.
type VerifyResponse struct {
	PaperID       string          `json:"paper_id"`
	ChunksChecked int             `json:"chunks_checked"`
	LinksChecked  int             `json:"links_checked"`
	Findings      []VerifyFinding `json:"findings,omitempty"`
}

// Clean reports whether verification found no defects.
func (r VerifyResponse) Clean() bool { return len(r.Findings) == 0 }
