// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dgraph-io/badger/v4"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// Store is the content-addressed encrypted chunk store.
//
// Chunks are scoped per paper: the identity of a chunk is
// (paper id, sha256 of plaintext). Sealing bytes a paper already holds is a
// dedup hit and performs no write. The store is append-only except for
// Discard, which exists solely for ingestion rollback.
//
// Thread Safety: safe for concurrent use. Callers that need dedup and
// rollback to not interleave (the ingestion pipeline) serialize per paper
// above this layer.
type Store struct {
	db      *storage.DB
	keyring *Keyring
	log     *logging.Logger
}

// NewStore wires a chunk store over an open database and keyring.
func NewStore(db *storage.DB, keyring *Keyring, log *logging.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if keyring == nil {
		return nil, errors.New("keyring must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Store{db: db, keyring: keyring, log: log}, nil
}

// HashBytes returns the lowercase hex SHA-256 of b, the chunk identity
// function.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Seal stores one chunk under a paper.
//
// The plaintext is hashed first; if the paper already holds that hash the
// stored descriptor is returned with created=false and nothing is
// re-encrypted (the caller may alert on the duplicate). Otherwise a fresh
// data key encrypts the plaintext, the key is wrapped under the paper's
// active master key, and sidecar plus blob commit in one transaction.
//
// Bounds must be valid; empty plaintext is rejected. samples records how
// many samples the chunk carries and is stored verbatim.
func (s *Store) Seal(ctx context.Context, paperID string, plaintext []byte, bounds coordinate.Bounds, samples int) (Chunk, bool, error) {
	start := time.Now()

	if paperID == "" {
		return Chunk{}, false, errs.Validationf("paper id must not be empty")
	}
	if len(plaintext) == 0 {
		return Chunk{}, false, ErrEmptyPlaintext
	}
	if err := bounds.Validate(); err != nil {
		return Chunk{}, false, err
	}
	if samples < 1 {
		return Chunk{}, false, errs.Validationf("chunk must carry at least one sample, got %d", samples)
	}

	hash := HashBytes(plaintext)

	// Dedup check outside the write path: the common duplicate case costs
	// one point read.
	if existing, err := s.Stat(ctx, paperID, hash); err == nil {
		recordSeal(ctx, time.Since(start), len(plaintext), false, nil)
		return existing, false, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		return Chunk{}, false, err
	}

	if _, err := s.keyring.EnsureMaster(ctx, paperID); err != nil {
		recordSeal(ctx, time.Since(start), len(plaintext), true, err)
		return Chunk{}, false, err
	}

	dataKey := memguard.NewBufferRandom(keySize)
	defer dataKey.Destroy()

	dataNonce, ciphertext, err := gcmSeal(dataKey.Bytes(), chunkAAD(paperID, hash), plaintext)
	if err != nil {
		recordSeal(ctx, time.Since(start), len(plaintext), true, err)
		return Chunk{}, false, fmt.Errorf("encrypt chunk %s: %w", hash, err)
	}

	wrapped, keyNonce, keyVersion, err := s.keyring.WrapDataKey(ctx, paperID, hash, dataKey)
	if err != nil {
		recordSeal(ctx, time.Since(start), len(plaintext), true, err)
		return Chunk{}, false, err
	}

	side := sidecar{
		Chunk: Chunk{
			Hash:       hash,
			PaperID:    paperID,
			Size:       int64(len(plaintext)),
			Samples:    samples,
			Bounds:     bounds,
			KeyVersion: keyVersion,
			CreatedAt:  time.Now().UnixMilli(),
		},
		WrappedKey: wrapped,
		KeyNonce:   keyNonce,
		DataNonce:  dataNonce,
	}
	sideData, err := json.Marshal(&side)
	if err != nil {
		return Chunk{}, false, fmt.Errorf("encode sidecar %s: %w", hash, err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		// Re-check under the transaction: a racing seal of the same
		// bytes may have landed since the dedup read.
		_, getErr := txn.Get(sidecarKey(paperID, hash))
		if getErr == nil {
			return errs.Conflictf("chunk %s sealed concurrently", hash)
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}
		if err := txn.Set(sidecarKey(paperID, hash), sideData); err != nil {
			return err
		}
		return txn.Set(blobKey(paperID, hash), ciphertext)
	})
	if err != nil {
		if errs.IsRetryable(err) || storage.IsConflict(err) {
			// The rival write holds identical bytes; surface it as a
			// dedup hit.
			existing, statErr := s.Stat(ctx, paperID, hash)
			if statErr == nil {
				recordSeal(ctx, time.Since(start), len(plaintext), false, nil)
				return existing, false, nil
			}
		}
		recordSeal(ctx, time.Since(start), len(plaintext), true, err)
		return Chunk{}, false, err
	}

	recordSeal(ctx, time.Since(start), len(plaintext), true, nil)
	s.log.Debug("sealed chunk",
		"paper_id", paperID,
		"hash", hash,
		"size", side.Size,
		"samples", samples,
		"key_version", keyVersion,
	)
	return side.Chunk, true, nil
}

// Open decrypts and returns a chunk's plaintext together with its
// descriptor.
//
// Every byte returned has passed two checks: GCM authentication under the
// chunk's data key, and a SHA-256 recompute against the chunk's identity
// hash. Failure of either is an integrity error naming the chunk, and no
// plaintext is returned.
func (s *Store) Open(ctx context.Context, paperID, hash string) ([]byte, Chunk, error) {
	side, blob, err := s.read(ctx, paperID, hash)
	if err != nil {
		return nil, Chunk{}, err
	}

	dataKey, err := s.keyring.UnwrapDataKey(ctx, paperID, hash, side.KeyVersion, side.WrappedKey, side.KeyNonce)
	if err != nil {
		recordIntegrityFailure(ctx, "unwrap")
		return nil, Chunk{}, err
	}
	defer dataKey.Destroy()

	plaintext, err := gcmOpen(dataKey.Bytes(), chunkAAD(paperID, hash), side.DataNonce, blob)
	if err != nil {
		recordIntegrityFailure(ctx, "authenticate")
		return nil, Chunk{}, fmt.Errorf("%w: %s of paper %s failed authentication", ErrChunkCorrupt, hash, paperID)
	}

	if HashBytes(plaintext) != hash {
		recordIntegrityFailure(ctx, "hash")
		return nil, Chunk{}, fmt.Errorf("%w: %s of paper %s failed hash verification", ErrChunkCorrupt, hash, paperID)
	}

	recordOpen(ctx)
	return plaintext, side.Chunk, nil
}

// Stat returns a chunk's descriptor without touching the ciphertext.
func (s *Store) Stat(ctx context.Context, paperID, hash string) (Chunk, error) {
	var side sidecar
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sidecarKey(paperID, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w %s of paper %s", ErrChunkNotFound, hash, paperID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &side)
		})
	})
	if err != nil {
		return Chunk{}, err
	}
	return side.Chunk, nil
}

// Has reports whether the paper holds a chunk with the given hash.
func (s *Store) Has(ctx context.Context, paperID, hash string) (bool, error) {
	_, err := s.Stat(ctx, paperID, hash)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Verify decrypts and checks a chunk without returning its plaintext. The
// recovered bytes are wiped before returning. Used by the background
// integrity scan and the verify command.
func (s *Store) Verify(ctx context.Context, paperID, hash string) error {
	plaintext, _, err := s.Open(ctx, paperID, hash)
	if plaintext != nil {
		memguard.WipeBytes(plaintext)
	}
	return err
}

// ForEach visits every chunk descriptor of a paper in ascending hash order.
func (s *Store) ForEach(ctx context.Context, paperID string, fn func(Chunk) error) error {
	return s.db.ForEachPrefix(ctx, sidecarPrefix(paperID), func(key, val []byte) error {
		var side sidecar
		if err := json.Unmarshal(val, &side); err != nil {
			return fmt.Errorf("decode sidecar %s: %w", key, err)
		}
		return fn(side.Chunk)
	})
}

// Discard removes chunks. This is the ingestion rollback path and nothing
// else; hashes that are already gone are skipped so a partially applied
// rollback can be replayed. Every removal is logged.
func (s *Store) Discard(ctx context.Context, paperID string, hashes []string) error {
	for _, hash := range hashes {
		err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
			if err := txn.Delete(sidecarKey(paperID, hash)); err != nil {
				return err
			}
			return txn.Delete(blobKey(paperID, hash))
		})
		if err != nil {
			return fmt.Errorf("discard chunk %s of paper %s: %w", hash, paperID, err)
		}
		recordDiscard(ctx)
		s.log.Info("discarded chunk", "paper_id", paperID, "hash", hash)
	}
	return nil
}

// RotateMasterKey mints a new master key version for the paper, re-wraps
// every chunk's data key under it, then retires the old versions.
//
// Ciphertext is untouched: only the wrapped-key envelope in each sidecar
// changes. The rotation is crash-safe; old and new master versions coexist
// in the key record until every sidecar is re-wrapped, so an interrupted
// rotation leaves all chunks decryptable and a re-run completes the job.
func (s *Store) RotateMasterKey(ctx context.Context, paperID string) (int, error) {
	newVersion, err := s.keyring.BeginRotation(ctx, paperID)
	if err != nil {
		return 0, err
	}

	rewrapped := 0
	err = s.ForEach(ctx, paperID, func(c Chunk) error {
		if c.KeyVersion == newVersion {
			return nil
		}
		if err := s.rewrapChunk(ctx, paperID, c.Hash, newVersion); err != nil {
			return err
		}
		rewrapped++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rotation of paper %s stopped after %d chunks: %w", paperID, rewrapped, err)
	}

	if err := s.keyring.CompleteRotation(ctx, paperID); err != nil {
		return 0, err
	}

	recordRotation(ctx, rewrapped)
	s.log.Info("rotated master key",
		"paper_id", paperID,
		"new_version", newVersion,
		"chunks_rewrapped", rewrapped,
	)
	return newVersion, nil
}

// rewrapChunk unwraps one chunk's data key under its recorded master
// version and wraps it under the new one, updating the sidecar in place.
func (s *Store) rewrapChunk(ctx context.Context, paperID, hash string, newVersion int) error {
	side, _, err := s.read(ctx, paperID, hash)
	if err != nil {
		return err
	}
	if side.KeyVersion == newVersion {
		return nil
	}

	dataKey, err := s.keyring.UnwrapDataKey(ctx, paperID, hash, side.KeyVersion, side.WrappedKey, side.KeyNonce)
	if err != nil {
		return err
	}
	defer dataKey.Destroy()

	wrapped, keyNonce, keyVersion, err := s.keyring.WrapDataKey(ctx, paperID, hash, dataKey)
	if err != nil {
		return err
	}

	side.WrappedKey = wrapped
	side.KeyNonce = keyNonce
	side.KeyVersion = keyVersion
	data, err := json.Marshal(&side)
	if err != nil {
		return fmt.Errorf("encode sidecar %s: %w", hash, err)
	}

	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(sidecarKey(paperID, hash), data)
	})
}

// read loads sidecar and blob together.
func (s *Store) read(ctx context.Context, paperID, hash string) (sidecar, []byte, error) {
	var side sidecar
	var blob []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(sidecarKey(paperID, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w %s of paper %s", ErrChunkNotFound, hash, paperID)
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &side)
		}); err != nil {
			return err
		}

		blobItem, err := txn.Get(blobKey(paperID, hash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Sidecar without blob: half a chunk is a corrupt chunk.
			return fmt.Errorf("%w: %s of paper %s has no ciphertext", ErrChunkCorrupt, hash, paperID)
		}
		if err != nil {
			return err
		}
		blob, err = blobItem.ValueCopy(nil)
		return err
	})
	if err != nil {
		return sidecar{}, nil, err
	}
	return side, blob, nil
}
