// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

func newTestStore(t *testing.T) (*storage.DB, *Store) {
	t.Helper()
	db, kr := newTestKeyring(t)
	st, err := NewStore(db, kr, nil)
	require.NoError(t, err)
	return db, st
}

func testBounds(t *testing.T) coordinate.Bounds {
	t.Helper()
	start, err := coordinate.NewTemporal(-365000, coordinate.CalendarGregorian)
	require.NoError(t, err)
	end, err := coordinate.NewTemporal(0, coordinate.CalendarGregorian)
	require.NoError(t, err)
	tr, err := coordinate.NewRange(start, end)
	require.NoError(t, err)

	min, err := coordinate.NewSpatial(0, 0, 0, coordinate.FrameSiteLocal)
	require.NoError(t, err)
	max, err := coordinate.NewSpatial(10, 10, 2.5, coordinate.FrameSiteLocal)
	require.NoError(t, err)
	box, err := coordinate.NewBox(min, max)
	require.NoError(t, err)

	b, err := coordinate.NewBounds(tr, box)
	require.NoError(t, err)
	return b
}

func TestSeal_RoundTrip(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	plaintext := []byte(`{"t":{"days":-100,"calendar":"proleptic_gregorian"}}`)

	chunk, created, err := st.Seal(ctx, "paper-a", plaintext, testBounds(t), 4)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, HashBytes(plaintext), chunk.Hash)
	assert.Equal(t, "paper-a", chunk.PaperID)
	assert.Equal(t, int64(len(plaintext)), chunk.Size)
	assert.Equal(t, 4, chunk.Samples)
	assert.Equal(t, 1, chunk.KeyVersion)
	assert.NotZero(t, chunk.CreatedAt)

	got, desc, err := st.Open(ctx, "paper-a", chunk.Hash)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.Equal(t, chunk, desc)
}

func TestSeal_Dedup(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	plaintext := []byte("identical bytes")

	first, created, err := st.Seal(ctx, "paper-a", plaintext, testBounds(t), 1)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := st.Seal(ctx, "paper-a", plaintext, testBounds(t), 1)
	require.NoError(t, err)
	assert.False(t, created, "second seal of identical bytes must dedup")
	assert.Equal(t, first, second)

	// Dedup is scoped per paper: another paper sealing the same bytes
	// gets its own chunk.
	_, created, err = st.Seal(ctx, "paper-b", plaintext, testBounds(t), 1)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSeal_Validation(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	bounds := testBounds(t)

	_, _, err := st.Seal(ctx, "", []byte("x"), bounds, 1)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, _, err = st.Seal(ctx, "paper-a", nil, bounds, 1)
	assert.True(t, errors.Is(err, ErrEmptyPlaintext))

	_, _, err = st.Seal(ctx, "paper-a", []byte("x"), bounds, 0)
	assert.True(t, errors.Is(err, errs.ErrValidation))

	bad := bounds
	bad.Time.Start, bad.Time.End = bad.Time.End, bad.Time.Start
	_, _, err = st.Seal(ctx, "paper-a", []byte("x"), bad, 1)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestOpen_NotFound(t *testing.T) {
	_, st := newTestStore(t)

	hash := HashBytes([]byte("never sealed"))
	_, _, err := st.Open(context.Background(), "paper-a", hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Contains(t, err.Error(), hash)
}

func TestOpen_TamperedBlob(t *testing.T) {
	db, st := newTestStore(t)
	ctx := context.Background()

	chunk, _, err := st.Seal(ctx, "paper-a", []byte("authentic bytes"), testBounds(t), 1)
	require.NoError(t, err)

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey("paper-a", chunk.Hash), []byte("garbage"))
	})
	require.NoError(t, err)

	_, _, err = st.Open(ctx, "paper-a", chunk.Hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
	assert.Contains(t, err.Error(), chunk.Hash)
}

func TestOpen_MissingBlob(t *testing.T) {
	db, st := newTestStore(t)
	ctx := context.Background()

	chunk, _, err := st.Seal(ctx, "paper-a", []byte("half a chunk"), testBounds(t), 1)
	require.NoError(t, err)

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Delete(blobKey("paper-a", chunk.Hash))
	})
	require.NoError(t, err)

	_, _, err = st.Open(ctx, "paper-a", chunk.Hash)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestVerify(t *testing.T) {
	db, st := newTestStore(t)
	ctx := context.Background()

	chunk, _, err := st.Seal(ctx, "paper-a", []byte("scan me"), testBounds(t), 1)
	require.NoError(t, err)

	require.NoError(t, st.Verify(ctx, "paper-a", chunk.Hash))

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(blobKey("paper-a", chunk.Hash), []byte("flipped"))
	})
	require.NoError(t, err)

	err = st.Verify(ctx, "paper-a", chunk.Hash)
	assert.True(t, errors.Is(err, errs.ErrIntegrity))
}

func TestHas(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()

	chunk, _, err := st.Seal(ctx, "paper-a", []byte("present"), testBounds(t), 1)
	require.NoError(t, err)

	ok, err := st.Has(ctx, "paper-a", chunk.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Has(ctx, "paper-a", HashBytes([]byte("absent")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestForEach_AscendingHashOrder(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	bounds := testBounds(t)

	want := map[string]bool{}
	for _, body := range []string{"chunk one", "chunk two", "chunk three"} {
		chunk, _, err := st.Seal(ctx, "paper-a", []byte(body), bounds, 1)
		require.NoError(t, err)
		want[chunk.Hash] = true
	}
	// A chunk of another paper must not appear.
	_, _, err := st.Seal(ctx, "paper-b", []byte("other paper"), bounds, 1)
	require.NoError(t, err)

	var got []string
	err = st.ForEach(ctx, "paper-a", func(c Chunk) error {
		got = append(got, c.Hash)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	for i, h := range got {
		assert.True(t, want[h], "unexpected hash %s", h)
		if i > 0 {
			assert.Less(t, got[i-1], h, "hashes must ascend")
		}
	}
}

func TestDiscard(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	bounds := testBounds(t)

	keep, _, err := st.Seal(ctx, "paper-a", []byte("keep"), bounds, 1)
	require.NoError(t, err)
	drop, _, err := st.Seal(ctx, "paper-a", []byte("drop"), bounds, 1)
	require.NoError(t, err)

	require.NoError(t, st.Discard(ctx, "paper-a", []string{drop.Hash}))

	ok, err := st.Has(ctx, "paper-a", drop.Hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = st.Open(ctx, "paper-a", keep.Hash)
	assert.NoError(t, err)

	// Replaying a rollback over already-gone hashes is fine.
	assert.NoError(t, st.Discard(ctx, "paper-a", []string{drop.Hash}))
}

func TestRotateMasterKey(t *testing.T) {
	_, st := newTestStore(t)
	ctx := context.Background()
	bounds := testBounds(t)

	bodies := [][]byte{[]byte("first body"), []byte("second body")}
	var hashes []string
	for _, b := range bodies {
		chunk, _, err := st.Seal(ctx, "paper-a", b, bounds, 1)
		require.NoError(t, err)
		require.Equal(t, 1, chunk.KeyVersion)
		hashes = append(hashes, chunk.Hash)
	}

	newVersion, err := st.RotateMasterKey(ctx, "paper-a")
	require.NoError(t, err)
	assert.Equal(t, 2, newVersion)

	for i, h := range hashes {
		desc, err := st.Stat(ctx, "paper-a", h)
		require.NoError(t, err)
		assert.Equal(t, 2, desc.KeyVersion)

		got, _, err := st.Open(ctx, "paper-a", h)
		require.NoError(t, err)
		assert.Equal(t, bodies[i], got)
	}

	// New seals wrap under the rotated version.
	chunk, _, err := st.Seal(ctx, "paper-a", []byte("post rotation"), bounds, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, chunk.KeyVersion)
}

func TestHashBytes(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		HashBytes(nil))
	assert.Equal(t,
		"9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		HashBytes([]byte("test")))
}
