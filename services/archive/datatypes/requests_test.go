// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

func testActor() Actor {
	return Actor{ID: "user-1"}
}

func testBounds(t *testing.T) *coordinate.Bounds {
	t.Helper()
	start, err := coordinate.NewTemporal(-100, coordinate.CalendarGregorian)
	require.NoError(t, err)
	end, err := coordinate.NewTemporal(100, coordinate.CalendarGregorian)
	require.NoError(t, err)
	tr, err := coordinate.NewRange(start, end)
	require.NoError(t, err)
	lo, err := coordinate.NewSpatial(0, 0, 0, "site_local")
	require.NoError(t, err)
	hi, err := coordinate.NewSpatial(10, 10, 10, "site_local")
	require.NoError(t, err)
	box, err := coordinate.NewBox(lo, hi)
	require.NoError(t, err)
	b, err := coordinate.NewBounds(tr, box)
	require.NoError(t, err)
	return &b
}

// TestCreatePaperRequestValidate covers the required-field and policy
// constraints.
func TestCreatePaperRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CreatePaperRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  CreatePaperRequest{Actor: testActor(), Title: "Holocene strata", Policy: "public"},
		},
		{
			name: "valid without policy",
			req:  CreatePaperRequest{Actor: testActor(), Title: "Holocene strata"},
		},
		{
			name:    "missing title",
			req:     CreatePaperRequest{Actor: testActor()},
			wantErr: true,
		},
		{
			name:    "missing actor id",
			req:     CreatePaperRequest{Title: "x"},
			wantErr: true,
		},
		{
			name:    "unknown policy",
			req:     CreatePaperRequest{Actor: testActor(), Title: "x", Policy: "everyone"},
			wantErr: true,
		},
		{
			name:    "oversize title",
			req:     CreatePaperRequest{Actor: testActor(), Title: strings.Repeat("t", MaxTitleBytes+1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errs.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestIngestRequestValidate covers payload and declared-bounds checks.
func TestIngestRequestValidate(t *testing.T) {
	valid := IngestRequest{
		Actor:    testActor(),
		PaperID:  "paper-1",
		Payload:  []byte(`{"t":{"days":0,"calendar":"proleptic_gregorian"}}`),
		Declared: testBounds(t),
	}
	require.NoError(t, valid.Validate())

	t.Run("empty payload", func(t *testing.T) {
		req := valid
		req.Payload = nil
		assert.ErrorIs(t, req.Validate(), errs.ErrValidation)
	})

	t.Run("nil bounds are allowed", func(t *testing.T) {
		req := valid
		req.Declared = nil
		assert.NoError(t, req.Validate())
	})

	t.Run("invalid declared bounds", func(t *testing.T) {
		req := valid
		bad := *req.Declared
		bad.Time.Start, bad.Time.End = bad.Time.End, bad.Time.Start
		req.Declared = &bad
		assert.ErrorIs(t, req.Validate(), errs.ErrValidation)
	})
}

// TestFetchRequestValidate covers the chunk-hash shape and day format.
func TestFetchRequestValidate(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	valid := FetchRequest{Actor: testActor(), PaperID: "paper-1", ChunkHash: hash}
	require.NoError(t, valid.Validate())

	t.Run("short hash", func(t *testing.T) {
		req := valid
		req.ChunkHash = "abcd"
		assert.ErrorIs(t, req.Validate(), errs.ErrValidation)
	})

	t.Run("non-hex hash", func(t *testing.T) {
		req := valid
		req.ChunkHash = strings.Repeat("zz", 32)
		assert.ErrorIs(t, req.Validate(), errs.ErrValidation)
	})

	t.Run("explicit day", func(t *testing.T) {
		req := valid
		req.Day = "2026-03-01"
		assert.NoError(t, req.Validate())
	})

	t.Run("malformed day", func(t *testing.T) {
		req := valid
		req.Day = "03/01/2026"
		assert.ErrorIs(t, req.Validate(), errs.ErrValidation)
	})
}

// TestQueryRequestValidate covers selector modes and filter axes.
func TestQueryRequestValidate(t *testing.T) {
	bounds := testBounds(t)

	tests := []struct {
		name    string
		req     QueryRequest
		wantErr bool
	}{
		{
			name: "head mode",
			req:  QueryRequest{Actor: testActor(), PaperID: "paper-1", Mode: "head"},
		},
		{
			name: "all mode with filters",
			req: QueryRequest{
				Actor: testActor(), PaperID: "paper-1", Mode: "all",
				Time: &bounds.Time, Space: &bounds.Space,
			},
		},
		{
			name: "version mode with id",
			req:  QueryRequest{Actor: testActor(), PaperID: "paper-1", Mode: "version", VersionID: "ver-1"},
		},
		{
			name:    "version mode without id",
			req:     QueryRequest{Actor: testActor(), PaperID: "paper-1", Mode: "version"},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			req:     QueryRequest{Actor: testActor(), PaperID: "paper-1", Mode: "latest"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestViewRequestValidate covers the stat-recording request.
func TestViewRequestValidate(t *testing.T) {
	valid := ViewRequest{Actor: testActor(), VersionID: "ver-1", Day: "2026-01-15"}
	require.NoError(t, valid.Validate())

	missing := ViewRequest{Actor: testActor()}
	assert.ErrorIs(t, missing.Validate(), errs.ErrValidation)
}

// TestVerifyResponseClean covers the findings predicate.
func TestVerifyResponseClean(t *testing.T) {
	assert.True(t, VerifyResponse{PaperID: "p"}.Clean())
	assert.False(t, VerifyResponse{
		Findings: []VerifyFinding{{Kind: "chunk", Detail: "bad tag"}},
	}.Clean())
}
