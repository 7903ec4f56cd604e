// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package snapshot exports the whole archive keyspace offsite and loads
// it back. A snapshot is two sink objects: the Badger backup stream and
// a manifest carrying the stream's digest. Restore verifies the digest
// before a single key is loaded.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/mod/semver"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// FormatVersion tags every manifest this build writes. Restore accepts
// any snapshot of the same major version.
const FormatVersion = "v1.0.0"

const (
	blobSuffix     = ".badger"
	manifestSuffix = ".manifest.json"

	// restoreMaxPendingWrites bounds Badger's write batching during Load.
	restoreMaxPendingWrites = 256
)

// Manifest describes one exported snapshot.
type Manifest struct {
	Name          string    `json:"name"`
	FormatVersion string    `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedTo     uint64    `json:"updated_to"` // Badger version watermark
	Bytes         int64     `json:"bytes"`
	SHA256        string    `json:"sha256"`
}

// validate checks a manifest read back from a sink.
func (m Manifest) validate() error {
	if !semver.IsValid(m.FormatVersion) {
		return errs.Validationf("snapshot %s carries malformed format version %q", m.Name, m.FormatVersion)
	}
	if semver.Major(m.FormatVersion) != semver.Major(FormatVersion) {
		return errs.Validationf("snapshot %s has format %s, this build restores %s",
			m.Name, m.FormatVersion, semver.Major(FormatVersion))
	}
	if m.SHA256 == "" || m.Bytes < 0 {
		return errs.Validationf("snapshot %s manifest is incomplete", m.Name)
	}
	return nil
}

// Snapshotter exports and restores the archive keyspace.
type Snapshotter struct {
	db  *storage.DB
	log *logging.Logger
}

// New wires a snapshotter over the database.
func New(db *storage.DB, log *logging.Logger) (*Snapshotter, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Snapshotter{db: db, log: log}, nil
}

// Export streams the entire keyspace into the sink.
//
// The backup spools through a temporary file so the digest and size are
// known before anything reaches the sink; the manifest is written last,
// so a snapshot without a manifest is an aborted one.
func (s *Snapshotter) Export(ctx context.Context, sink Sink) (Manifest, error) {
	if sink == nil {
		return Manifest{}, errors.New("sink must not be nil")
	}
	now := time.Now().UTC()
	name := "tesseract-" + now.Format("20060102T150405Z")

	tmp, err := os.CreateTemp("", "tesseract-snapshot-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	updatedTo, err := s.db.Backup(io.MultiWriter(tmp, hash), 0)
	if err != nil {
		return Manifest{}, fmt.Errorf("back up keyspace: %w", err)
	}
	size, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return Manifest{}, fmt.Errorf("size spool file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Manifest{}, fmt.Errorf("rewind spool file: %w", err)
	}

	manifest := Manifest{
		Name:          name,
		FormatVersion: FormatVersion,
		CreatedAt:     now,
		UpdatedTo:     updatedTo,
		Bytes:         size,
		SHA256:        hex.EncodeToString(hash.Sum(nil)),
	}

	if err := sink.Put(ctx, name+blobSuffix, tmp); err != nil {
		return Manifest{}, fmt.Errorf("store snapshot blob: %w", err)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := sink.Put(ctx, name+manifestSuffix, bytes.NewReader(encoded)); err != nil {
		return Manifest{}, fmt.Errorf("store snapshot manifest: %w", err)
	}

	s.log.Info("exported snapshot",
		"name", name,
		"bytes", size,
		"updated_to", updatedTo)
	return manifest, nil
}

// Restore loads a named snapshot into the database.
//
// The target must be empty: restore never merges over live data. The
// blob is spooled locally and its digest checked against the manifest
// before load; a mismatch is an integrity error and nothing is written.
func (s *Snapshotter) Restore(ctx context.Context, sink Sink, name string) (Manifest, error) {
	if sink == nil {
		return Manifest{}, errors.New("sink must not be nil")
	}
	if name == "" {
		return Manifest{}, errs.Validationf("snapshot name must not be empty")
	}

	empty, err := s.empty(ctx)
	if err != nil {
		return Manifest{}, fmt.Errorf("inspect target keyspace: %w", err)
	}
	if !empty {
		return Manifest{}, errs.Validationf("restore target is not empty; restore into a fresh archive")
	}

	manifest, err := s.readManifest(ctx, sink, name)
	if err != nil {
		return Manifest{}, err
	}

	blob, err := sink.Get(ctx, name+blobSuffix)
	if err != nil {
		return Manifest{}, err
	}
	defer blob.Close()

	tmp, err := os.CreateTemp("", "tesseract-restore-*")
	if err != nil {
		return Manifest{}, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hash := sha256.New()
	copied, err := io.Copy(io.MultiWriter(tmp, hash), blob)
	if err != nil {
		return Manifest{}, fmt.Errorf("spool snapshot blob: %w", err)
	}
	if copied != manifest.Bytes {
		return Manifest{}, errs.Integrityf("snapshot %s blob is %d bytes, manifest records %d",
			name, copied, manifest.Bytes)
	}
	if digest := hex.EncodeToString(hash.Sum(nil)); digest != manifest.SHA256 {
		return Manifest{}, errs.Integrityf("snapshot %s blob digest mismatch", name)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return Manifest{}, fmt.Errorf("rewind spool file: %w", err)
	}
	if err := s.db.Load(tmp, restoreMaxPendingWrites); err != nil {
		return Manifest{}, fmt.Errorf("load keyspace: %w", err)
	}
	if err := s.db.Sync(); err != nil {
		return Manifest{}, fmt.Errorf("sync restored keyspace: %w", err)
	}

	s.log.Info("restored snapshot",
		"name", name,
		"bytes", manifest.Bytes,
		"created_at", manifest.CreatedAt)
	return manifest, nil
}

func (s *Snapshotter) readManifest(ctx context.Context, sink Sink, name string) (Manifest, error) {
	rc, err := sink.Get(ctx, name+manifestSuffix)
	if err != nil {
		return Manifest{}, err
	}
	defer rc.Close()

	var manifest Manifest
	if err := json.NewDecoder(rc).Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest of snapshot %s: %w", name, err)
	}
	if err := manifest.validate(); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}

// empty reports whether the keyspace holds no keys at all.
func (s *Snapshotter) empty(ctx context.Context) (bool, error) {
	empty := true
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		empty = !it.Valid()
		return nil
	})
	return empty, err
}
