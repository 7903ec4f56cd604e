// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
)

// Chunk is the public, immutable descriptor of one stored chunk.
//
// The hash is the lowercase hex SHA-256 of the chunk plaintext and is the
// chunk's identity within its paper: sealing the same bytes twice yields the
// same descriptor. Key material never appears here.
type Chunk struct {
	// Hash is the sha256 of the plaintext, 64 hex characters.
	Hash string `json:"hash"`

	// PaperID scopes the chunk. The same plaintext under two papers is
	// two chunks with two data keys.
	PaperID string `json:"paper_id"`

	// Size is the plaintext length in bytes.
	Size int64 `json:"size"`

	// Samples is the number of records the chunk carries.
	Samples int `json:"samples"`

	// Bounds is the chunk's spatio-temporal extent.
	Bounds coordinate.Bounds `json:"bounds"`

	// KeyVersion names the paper master key version the chunk's data key
	// is wrapped under.
	KeyVersion int `json:"key_version"`

	// CreatedAt is the seal time in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// sidecar is the persisted record at c:<paper>:<hash>. It carries the public
// descriptor plus the crypto envelope; the ciphertext itself lives in the
// blob record at cb:<paper>:<hash>.
type sidecar struct {
	Chunk

	// WrappedKey is the chunk data key encrypted under the paper master
	// key (GCM ciphertext plus tag, without nonce).
	WrappedKey []byte `json:"wrapped_key"`

	// KeyNonce is the GCM nonce used to wrap the data key.
	KeyNonce []byte `json:"key_nonce"`

	// DataNonce is the GCM nonce used to encrypt the plaintext.
	DataNonce []byte `json:"data_nonce"`
}

// masterKeyVersion is one wrapped master key inside a masterRecord. Multiple
// versions coexist during rotation so a crash mid-rewrap loses nothing.
type masterKeyVersion struct {
	Version   int    `json:"version"`
	Wrapped   []byte `json:"wrapped"` // GCM ciphertext under the root key
	Nonce     []byte `json:"nonce"`
	CreatedAt int64  `json:"created_at"`
}

// masterRecord is the persisted record at mk:<paper>.
type masterRecord struct {
	PaperID   string             `json:"paper_id"`
	Active    int                `json:"active"` // version new seals wrap under
	Versions  []masterKeyVersion `json:"versions"`
	CreatedAt int64              `json:"created_at"`
	RotatedAt int64              `json:"rotated_at,omitempty"`
}

// find returns the wrapped key for a version, or nil.
func (r *masterRecord) find(version int) *masterKeyVersion {
	for i := range r.Versions {
		if r.Versions[i].Version == version {
			return &r.Versions[i]
		}
	}
	return nil
}

// Badger key builders. The prefixes partition one keyspace shared with
// lineage and ledger records; see the storage package doc.
func sidecarKey(paperID, hash string) []byte {
	return []byte("c:" + paperID + ":" + hash)
}

func blobKey(paperID, hash string) []byte {
	return []byte("cb:" + paperID + ":" + hash)
}

func masterKeyKey(paperID string) []byte {
	return []byte("mk:" + paperID)
}

func sidecarPrefix(paperID string) []byte {
	return []byte("c:" + paperID + ":")
}
