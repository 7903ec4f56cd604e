// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"github.com/google/uuid"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
)

// Dataset is the immutable manifest of one successful ingestion: chunk
// hashes in payload order plus the bounds and totals the payload was
// validated against.
type Dataset struct {
	ID      string `json:"id"`
	PaperID string `json:"paper_id"`
	Codec   string `json:"codec"`

	// ChunkHashes lists the chunks in payload order; concatenating the
	// chunks in this order reconstructs the stored byte run.
	ChunkHashes []string `json:"chunk_hashes"`

	// Declared is the extent the caller claimed (or the derived extent
	// when none was declared); every chunk lies inside it.
	Declared coordinate.Bounds `json:"declared"`

	// Effective is the tight extent computed from the payload.
	Effective coordinate.Bounds `json:"effective"`

	Samples     int   `json:"samples"`
	Bytes       int64 `json:"bytes"`
	DedupChunks int   `json:"dedup_chunks,omitempty"`
	CreatedAt   int64 `json:"created_at"`
}

func newDatasetID() string { return "ds-" + uuid.NewString() }

func datasetKey(datasetID string) []byte { return []byte("d:" + datasetID) }
