// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/awnumar/memguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// newTestDB opens an in-memory database for keyring and store tests.
func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenDB(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestKeyring builds a keyring over a fresh in-memory database and a
// temp-dir root key file. The insecure override is set so tests pass on
// hosts with a low RLIMIT_MEMLOCK.
func newTestKeyring(t *testing.T) (*storage.DB, *Keyring) {
	t.Helper()
	t.Setenv(insecureKeyringEnv, "1")

	db := newTestDB(t)
	kr, err := NewKeyring(db, filepath.Join(t.TempDir(), "root.key"), false, nil)
	require.NoError(t, err)
	t.Cleanup(kr.Close)
	return db, kr
}

func TestNewKeyring_CreatesRootKey(t *testing.T) {
	t.Setenv(insecureKeyringEnv, "1")
	db := newTestDB(t)
	keyFile := filepath.Join(t.TempDir(), "keys", "root.key")

	kr, err := NewKeyring(db, keyFile, false, nil)
	require.NoError(t, err)
	defer kr.Close()

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, int64(keySize), info.Size())
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	first, err := os.ReadFile(keyFile)
	require.NoError(t, err)

	// A second keyring over the same file must load, not regenerate.
	kr2, err := NewKeyring(db, keyFile, false, nil)
	require.NoError(t, err)
	defer kr2.Close()

	second, err := os.ReadFile(keyFile)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "root key file changed on reload")
}

func TestNewKeyring_RejectsBadKeyFile(t *testing.T) {
	t.Setenv(insecureKeyringEnv, "1")
	db := newTestDB(t)

	keyFile := filepath.Join(t.TempDir(), "root.key")
	require.NoError(t, os.WriteFile(keyFile, make([]byte, 16), 0600))

	_, err := NewKeyring(db, keyFile, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "16 bytes")
}

func TestNewKeyring_Validation(t *testing.T) {
	t.Setenv(insecureKeyringEnv, "1")
	db := newTestDB(t)

	_, err := NewKeyring(nil, "/tmp/root.key", false, nil)
	assert.Error(t, err)

	_, err = NewKeyring(db, "", false, nil)
	assert.Error(t, err)
}

func TestEnsureMaster(t *testing.T) {
	_, kr := newTestKeyring(t)
	ctx := context.Background()

	v, err := kr.EnsureMaster(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// Idempotent.
	v, err = kr.EnsureMaster(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	active, err := kr.ActiveVersion(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestActiveVersion_UnknownPaper(t *testing.T) {
	_, kr := newTestKeyring(t)

	_, err := kr.ActiveVersion(context.Background(), "no-such-paper")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestWrapUnwrapDataKey(t *testing.T) {
	_, kr := newTestKeyring(t)
	ctx := context.Background()

	_, err := kr.EnsureMaster(ctx, "paper-a")
	require.NoError(t, err)

	raw := bytes.Repeat([]byte{0x42}, keySize)
	want := append([]byte(nil), raw...)
	dataKey := memguard.NewBufferFromBytes(raw)
	defer dataKey.Destroy()

	wrapped, nonce, version, err := kr.WrapDataKey(ctx, "paper-a", "hash-1", dataKey)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.NotEmpty(t, wrapped)

	got, err := kr.UnwrapDataKey(ctx, "paper-a", "hash-1", version, wrapped, nonce)
	require.NoError(t, err)
	defer got.Destroy()
	assert.Equal(t, want, got.Bytes())
}

func TestUnwrapDataKey_WrongContext(t *testing.T) {
	_, kr := newTestKeyring(t)
	ctx := context.Background()

	_, err := kr.EnsureMaster(ctx, "paper-a")
	require.NoError(t, err)

	dataKey := memguard.NewBufferRandom(keySize)
	defer dataKey.Destroy()

	wrapped, nonce, version, err := kr.WrapDataKey(ctx, "paper-a", "hash-1", dataKey)
	require.NoError(t, err)

	// The wrap is bound to its chunk hash; opening it under another hash
	// must fail authentication.
	_, err = kr.UnwrapDataKey(ctx, "paper-a", "hash-2", version, wrapped, nonce)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))

	// Unknown key version.
	_, err = kr.UnwrapDataKey(ctx, "paper-a", "hash-1", 99, wrapped, nonce)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyVersionUnknown))
}

func TestRotationLifecycle(t *testing.T) {
	_, kr := newTestKeyring(t)
	ctx := context.Background()

	_, err := kr.EnsureMaster(ctx, "paper-a")
	require.NoError(t, err)

	dataKey := memguard.NewBufferRandom(keySize)
	defer dataKey.Destroy()

	oldWrapped, oldNonce, oldVersion, err := kr.WrapDataKey(ctx, "paper-a", "hash-1", dataKey)
	require.NoError(t, err)
	assert.Equal(t, 1, oldVersion)

	next, err := kr.BeginRotation(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	// Mid-rotation both versions must work: the old wrap still opens and
	// new wraps land on the new version.
	got, err := kr.UnwrapDataKey(ctx, "paper-a", "hash-1", oldVersion, oldWrapped, oldNonce)
	require.NoError(t, err)
	got.Destroy()

	newWrapped, newNonce, newVersion, err := kr.WrapDataKey(ctx, "paper-a", "hash-1", dataKey)
	require.NoError(t, err)
	assert.Equal(t, 2, newVersion)

	require.NoError(t, kr.CompleteRotation(ctx, "paper-a"))

	// Retired version is gone, the active one still opens.
	_, err = kr.UnwrapDataKey(ctx, "paper-a", "hash-1", oldVersion, oldWrapped, oldNonce)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyVersionUnknown))

	got, err = kr.UnwrapDataKey(ctx, "paper-a", "hash-1", newVersion, newWrapped, newNonce)
	require.NoError(t, err)
	got.Destroy()

	active, err := kr.ActiveVersion(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestKeyringClosed(t *testing.T) {
	_, kr := newTestKeyring(t)
	kr.Close()

	_, err := kr.EnsureMaster(context.Background(), "paper-a")
	assert.True(t, errors.Is(err, ErrKeyringClosed))

	_, err = kr.BeginRotation(context.Background(), "paper-a")
	assert.True(t, errors.Is(err, ErrKeyringClosed))
}

func TestGCMSealOpen(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, keySize)
	aad := []byte("context")
	plaintext := []byte("the quick brown fox")

	nonce, ciphertext, err := gcmSeal(key, aad, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	got, err := gcmOpen(key, aad, nonce, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	// Wrong AAD must fail.
	_, err = gcmOpen(key, []byte("other"), nonce, ciphertext)
	assert.Error(t, err)

	// Flipped ciphertext bit must fail.
	ciphertext[0] ^= 0x01
	_, err = gcmOpen(key, aad, nonce, ciphertext)
	assert.Error(t, err)
}
