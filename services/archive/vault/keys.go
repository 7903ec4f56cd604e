// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vault is the encrypted object store of the archive.
//
// Chunks are content-addressed by the SHA-256 of their plaintext and
// encrypted with AES-256-GCM under a per-chunk data key. Data keys are
// wrapped under a per-paper master key; master keys are wrapped under the
// service root key. Key material only ever exists in memguard-protected
// memory while in use:
//
//	root key (key file, 0600)
//	  └─ wraps master keys (mk:<paper> record, versioned for rotation)
//	       └─ wrap data keys (c:<paper>:<hash> sidecar)
//	            └─ encrypt chunk plaintext (cb:<paper>:<hash> blob)
//
// The keyring refuses to start when RLIMIT_MEMLOCK is too low for locked
// buffers, unless the insecure override is set.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sys/unix"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

const (
	// keySize is the byte length of root, master and data keys (AES-256).
	keySize = 32

	// MinMlockLimitKB is the minimum mlock limit required in kilobytes.
	// The keyring holds a handful of 32-byte keys plus memguard's guard
	// pages; 64 KB leaves generous headroom.
	MinMlockLimitKB = 64

	// insecureKeyringEnv, when set to 1, lets the keyring degrade to
	// unlocked memory instead of failing closed on low mlock limits.
	insecureKeyringEnv = "TESSERACT_ALLOW_INSECURE_KEYRING"
)

var (
	// memguardInitOnce ensures memguard initialization happens only once.
	memguardInitOnce sync.Once

	// mlockSufficient is set during initialization to indicate if secure memory is available.
	mlockSufficient bool

	// currentMlockLimitKB stores the current mlock limit for logging.
	currentMlockLimitKB int64
)

// initMemguard initializes memguard and checks mlock limits once.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
	})
}

// checkMlockLimit queries the kernel for the mlock resource limit and
// compares it against the keyring's minimum.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		// Can't determine the limit; let memguard find out the hard way.
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockLimitKB, limitKB
}

// IsMlockAvailable returns whether locked memory is available on this
// system, and the current limit in KB (-1 if unlimited).
func IsMlockAvailable() (bool, int64) {
	initMemguard()
	return mlockSufficient, currentMlockLimitKB
}

// PurgeSecrets wipes all memguard-allocated memory. Call during graceful
// shutdown; every open keyring is unusable afterwards.
func PurgeSecrets() {
	memguard.Purge()
}

// Keyring owns the key hierarchy for every paper in one archive.
//
// Thread Safety: safe for concurrent use. Master-record mutations are
// serialized by an internal mutex; the embedded store gives each read a
// consistent snapshot.
type Keyring struct {
	db   *storage.DB
	root *memguard.Enclave
	log  *logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewKeyring loads (or on first run creates) the root key file and returns
// a ready keyring.
//
// The mlock preflight runs first: when RLIMIT_MEMLOCK is below
// MinMlockLimitKB the keyring fails closed with ErrKeyringInsecure unless
// allowInsecure is set or TESSERACT_ALLOW_INSECURE_KEYRING=1.
func NewKeyring(db *storage.DB, rootKeyFile string, allowInsecure bool, log *logging.Logger) (*Keyring, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if rootKeyFile == "" {
		return nil, errors.New("root key file path must not be empty")
	}
	if log == nil {
		log = logging.Default()
	}

	initMemguard()

	if !mlockSufficient {
		if !allowInsecure && os.Getenv(insecureKeyringEnv) != "1" {
			return nil, fmt.Errorf("%w: have %d KB, need %d KB; raise RLIMIT_MEMLOCK or set %s=1",
				ErrKeyringInsecure, currentMlockLimitKB, MinMlockLimitKB, insecureKeyringEnv)
		}
		log.Warn("SECURITY: keyring running without locked memory, key material may be swapped to disk",
			"current_limit_kb", currentMlockLimitKB,
			"required_kb", MinMlockLimitKB,
		)
	}

	root, created, err := loadOrCreateRootKey(rootKeyFile)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info("generated root key", "path", rootKeyFile)
	}

	return &Keyring{db: db, root: root, log: log}, nil
}

// loadOrCreateRootKey reads the 32-byte root key file, creating it with
// fresh random bytes and mode 0600 on first run. The key is sealed into an
// enclave and the transit buffer wiped before returning.
func loadOrCreateRootKey(path string) (*memguard.Enclave, bool, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != keySize {
			memguard.WipeBytes(data)
			return nil, false, fmt.Errorf("root key file %s holds %d bytes, want %d", path, len(data), keySize)
		}
		// NewEnclave wipes the source slice.
		return memguard.NewEnclave(data), false, nil

	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
		buf := memguard.NewBufferRandom(keySize)
		if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
			buf.Destroy()
			return nil, false, fmt.Errorf("write root key file: %w", err)
		}
		// Seal destroys the buffer after encrypting its contents.
		return buf.Seal(), true, nil

	default:
		return nil, false, fmt.Errorf("read root key file: %w", err)
	}
}

// Close marks the keyring unusable. Key material sealed in enclaves is
// wiped by PurgeSecrets at process shutdown.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
}

func (k *Keyring) checkOpen() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrKeyringClosed
	}
	return nil
}

// openRoot decrypts the root key into a locked buffer. Caller must Destroy.
func (k *Keyring) openRoot() (*memguard.LockedBuffer, error) {
	if err := k.checkOpen(); err != nil {
		return nil, err
	}
	buf, err := k.root.Open()
	if err != nil {
		return nil, fmt.Errorf("open root key enclave: %w", err)
	}
	return buf, nil
}

// EnsureMaster creates the paper's master key record if it does not exist
// and returns the active key version.
func (k *Keyring) EnsureMaster(ctx context.Context, paperID string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0, ErrKeyringClosed
	}

	rec, err := k.readMaster(ctx, paperID)
	if err == nil {
		return rec.Active, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return 0, err
	}

	master := memguard.NewBufferRandom(keySize)
	defer master.Destroy()

	root, err := k.root.Open()
	if err != nil {
		return 0, fmt.Errorf("open root key enclave: %w", err)
	}
	defer root.Destroy()

	nonce, wrapped, err := gcmSeal(root.Bytes(), masterAAD(paperID, 1), master.Bytes())
	if err != nil {
		return 0, fmt.Errorf("wrap master key: %w", err)
	}

	now := time.Now().UnixMilli()
	rec = &masterRecord{
		PaperID:   paperID,
		Active:    1,
		Versions:  []masterKeyVersion{{Version: 1, Wrapped: wrapped, Nonce: nonce, CreatedAt: now}},
		CreatedAt: now,
	}
	if err := k.writeMaster(ctx, rec); err != nil {
		return 0, err
	}
	k.log.Debug("created master key", "paper_id", paperID)
	return 1, nil
}

// ActiveVersion returns the master key version new seals wrap under.
func (k *Keyring) ActiveVersion(ctx context.Context, paperID string) (int, error) {
	rec, err := k.readMaster(ctx, paperID)
	if err != nil {
		return 0, err
	}
	return rec.Active, nil
}

// WrapDataKey wraps a chunk data key under the paper's active master key.
// The returned key version must be persisted with the wrap so the chunk
// stays decryptable across rotations.
func (k *Keyring) WrapDataKey(ctx context.Context, paperID, chunkHash string, dataKey *memguard.LockedBuffer) (wrapped, nonce []byte, keyVersion int, err error) {
	rec, err := k.readMaster(ctx, paperID)
	if err != nil {
		return nil, nil, 0, err
	}

	master, err := k.openMaster(rec, rec.Active, paperID)
	if err != nil {
		return nil, nil, 0, err
	}
	defer master.Destroy()

	nonce, wrapped, err = gcmSeal(master.Bytes(), dataKeyAAD(paperID, chunkHash), dataKey.Bytes())
	if err != nil {
		return nil, nil, 0, fmt.Errorf("wrap data key: %w", err)
	}
	return wrapped, nonce, rec.Active, nil
}

// UnwrapDataKey recovers a chunk data key into a locked buffer. Caller must
// Destroy. Authentication failure means the sidecar or key record was
// tampered with and surfaces as an integrity error naming the chunk.
func (k *Keyring) UnwrapDataKey(ctx context.Context, paperID, chunkHash string, keyVersion int, wrapped, nonce []byte) (*memguard.LockedBuffer, error) {
	rec, err := k.readMaster(ctx, paperID)
	if err != nil {
		return nil, err
	}

	master, err := k.openMaster(rec, keyVersion, paperID)
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	plain, err := gcmOpen(master.Bytes(), dataKeyAAD(paperID, chunkHash), nonce, wrapped)
	if err != nil {
		return nil, errs.Integrityf("unwrap data key for chunk %s of paper %s", chunkHash, paperID)
	}
	// NewBufferFromBytes wipes the source slice.
	return memguard.NewBufferFromBytes(plain), nil
}

// BeginRotation mints master key version n+1 and makes it active. Old
// versions stay in the record so existing sidecars remain decryptable; the
// store re-wraps them and then calls CompleteRotation.
func (k *Keyring) BeginRotation(ctx context.Context, paperID string) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return 0, ErrKeyringClosed
	}

	rec, err := k.readMaster(ctx, paperID)
	if err != nil {
		return 0, err
	}

	next := 0
	for _, v := range rec.Versions {
		if v.Version > next {
			next = v.Version
		}
	}
	next++

	master := memguard.NewBufferRandom(keySize)
	defer master.Destroy()

	root, err := k.root.Open()
	if err != nil {
		return 0, fmt.Errorf("open root key enclave: %w", err)
	}
	defer root.Destroy()

	nonce, wrapped, err := gcmSeal(root.Bytes(), masterAAD(paperID, next), master.Bytes())
	if err != nil {
		return 0, fmt.Errorf("wrap master key: %w", err)
	}

	now := time.Now().UnixMilli()
	rec.Versions = append(rec.Versions, masterKeyVersion{Version: next, Wrapped: wrapped, Nonce: nonce, CreatedAt: now})
	rec.Active = next
	rec.RotatedAt = now
	if err := k.writeMaster(ctx, rec); err != nil {
		return 0, err
	}

	k.log.Info("began master key rotation", "paper_id", paperID, "new_version", next)
	return next, nil
}

// CompleteRotation retires every master key version except the active one.
// Only call after all sidecars reference the active version.
func (k *Keyring) CompleteRotation(ctx context.Context, paperID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrKeyringClosed
	}

	rec, err := k.readMaster(ctx, paperID)
	if err != nil {
		return err
	}

	active := rec.find(rec.Active)
	if active == nil {
		return fmt.Errorf("%w: active version %d missing from record of paper %s",
			ErrKeyVersionUnknown, rec.Active, paperID)
	}
	rec.Versions = []masterKeyVersion{*active}
	if err := k.writeMaster(ctx, rec); err != nil {
		return err
	}

	k.log.Info("completed master key rotation", "paper_id", paperID, "active_version", rec.Active)
	return nil
}

// openMaster unwraps one master key version from an already-loaded record.
func (k *Keyring) openMaster(rec *masterRecord, version int, paperID string) (*memguard.LockedBuffer, error) {
	v := rec.find(version)
	if v == nil {
		return nil, fmt.Errorf("%w: version %d of paper %s", ErrKeyVersionUnknown, version, paperID)
	}

	root, err := k.openRoot()
	if err != nil {
		return nil, err
	}
	defer root.Destroy()

	plain, err := gcmOpen(root.Bytes(), masterAAD(paperID, v.Version), v.Nonce, v.Wrapped)
	if err != nil {
		return nil, errs.Integrityf("unwrap master key version %d of paper %s", v.Version, paperID)
	}
	return memguard.NewBufferFromBytes(plain), nil
}

func (k *Keyring) readMaster(ctx context.Context, paperID string) (*masterRecord, error) {
	var rec masterRecord
	err := k.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(masterKeyKey(paperID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errs.NotFoundf("master key record for paper %s", paperID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (k *Keyring) writeMaster(ctx context.Context, rec *masterRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode master key record: %w", err)
	}
	return k.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(masterKeyKey(rec.PaperID), data)
	})
}

// =============================================================================
// AEAD helpers
// =============================================================================

// Additional authenticated data binds every ciphertext to its place in the
// hierarchy, so a record copied between papers or chunks fails to open.
func masterAAD(paperID string, version int) []byte {
	return []byte("tesseract:mk:" + paperID + ":" + strconv.Itoa(version))
}

func dataKeyAAD(paperID, chunkHash string) []byte {
	return []byte("tesseract:dk:" + paperID + ":" + chunkHash)
}

func chunkAAD(paperID, chunkHash string) []byte {
	return []byte("tesseract:chunk:" + paperID + ":" + chunkHash)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// gcmSeal encrypts plaintext with a fresh random nonce.
func gcmSeal(key, aad, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, aead.Seal(nil, nonce, plaintext, aad), nil
}

// gcmOpen decrypts and authenticates ciphertext.
func gcmOpen(key, aad, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}
