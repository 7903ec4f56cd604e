// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/deeptimelabs/tesseract/pkg/chain"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// ChainLink is one persisted certification record. The embedded chain.Link
// carries the content digest, seal time, previous hash and link hash;
// sequence and version identity tie it back to the lineage.
type ChainLink struct {
	Seq       int    `json:"seq"`
	VersionID string `json:"version_id"`
	Number    int    `json:"number"`
	chain.Link
}

// chainHead tracks the tail of a paper's chain for O(1) appends.
type chainHead struct {
	Seq  int    `json:"seq"`
	Hash string `json:"hash"`
}

// canonicalDigest hashes the identity-bearing fields of a published
// version. Any later change to these fields breaks chain verification.
// Fields are null-byte separated to keep the encoding unambiguous.
func canonicalDigest(c chain.HashComputer, v *Version) string {
	payload := strings.Join([]string{
		v.PaperID,
		v.ID,
		strconv.Itoa(v.Number),
		v.ParentID,
		v.DatasetID,
		string(v.Policy),
		v.Metadata.Title,
		v.Metadata.AbstractDiff,
	}, "\x00")
	return c.ComputeContentHash(payload)
}

// appendLink seals a new certification link for v inside the caller's
// publish transaction. Reading the chain head keeps concurrent publishes of
// the same paper serialized through the same conflict detection as the head
// pointer.
func (s *Store) appendLink(txn *badger.Txn, v *Version, sealedAt int64) (chain.Link, error) {
	prevHash := ""
	seq := 1

	var h chainHead
	switch err := storage.GetJSON(txn, chainHeadKey(v.PaperID), &h); {
	case err == nil:
		prevHash = h.Hash
		seq = h.Seq + 1
	case errors.Is(err, badger.ErrKeyNotFound):
		// First publish of this paper.
	default:
		return chain.Link{}, err
	}

	link := chain.Seal(s.hasher, canonicalDigest(s.hasher, v), sealedAt, prevHash)
	rec := ChainLink{Seq: seq, VersionID: v.ID, Number: v.Number, Link: link}

	if err := storage.PutJSON(txn, chainLinkKey(v.PaperID, seq), &rec); err != nil {
		return chain.Link{}, err
	}
	if err := storage.PutJSON(txn, chainHeadKey(v.PaperID), &chainHead{Seq: seq, Hash: link.Hash}); err != nil {
		return chain.Link{}, err
	}
	return link, nil
}

// Links returns a paper's certification chain in sequence order.
func (s *Store) Links(ctx context.Context, paperID string) ([]ChainLink, error) {
	var out []ChainLink
	err := s.db.ForEachPrefix(ctx, chainLinkPrefix(paperID), func(key, val []byte) error {
		var rec ChainLink
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("decode chain link %s: %w", key, err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyChain re-verifies a paper's certification chain: hash linkage,
// sequence continuity, and every link's content digest against the version
// record it certifies.
//
// A broken chain returns ErrChainBroken (an integrity error) together with
// the verification result locating the first bad link. A paper with no
// publishes verifies trivially. Storage failures return a nil result.
func (s *Store) VerifyChain(ctx context.Context, paperID string) (*chain.VerificationResult, error) {
	if _, err := s.GetPaper(ctx, paperID); err != nil {
		return nil, err
	}

	recs, err := s.Links(ctx, paperID)
	if err != nil {
		return nil, err
	}

	broken := func(i int, msg string) (*chain.VerificationResult, error) {
		res := &chain.VerificationResult{
			Valid:        false,
			ChainLength:  len(recs),
			InvalidIndex: i,
			ErrorMessage: msg,
		}
		recordChainVerify(ctx, false)
		return res, fmt.Errorf("%w: paper %s link %d: %s", ErrChainBroken, paperID, i, msg)
	}

	links := make([]chain.Link, len(recs))
	for i, rec := range recs {
		if rec.Seq != i+1 {
			return broken(i, fmt.Sprintf("sequence gap: link holds seq %d, expected %d", rec.Seq, i+1))
		}

		v, err := s.GetVersion(ctx, rec.VersionID)
		if err != nil {
			return broken(i, fmt.Sprintf("certified version %s is missing", rec.VersionID))
		}
		if v.Number != rec.Number {
			return broken(i, fmt.Sprintf("version %s holds number %d, link certifies %d", v.ID, v.Number, rec.Number))
		}
		if digest := canonicalDigest(s.hasher, &v); digest != rec.Content {
			return broken(i, fmt.Sprintf("version %s content digest mismatch", v.ID))
		}
		if v.CertHash != rec.Hash {
			return broken(i, fmt.Sprintf("version %s records cert hash %s, link hash is %s", v.ID, v.CertHash, rec.Hash))
		}
		links[i] = rec.Link
	}

	res := s.verifier.Verify(links)
	if !res.Valid {
		recordChainVerify(ctx, false)
		return res, fmt.Errorf("%w: paper %s link %d: %s", ErrChainBroken, paperID, res.InvalidIndex, res.ErrorMessage)
	}

	// The stored tail must agree with the recomputed chain.
	if len(recs) > 0 {
		var h chainHead
		err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
			return storage.GetJSON(txn, chainHeadKey(paperID), &h)
		})
		if err != nil {
			return broken(len(recs)-1, "chain head record is missing")
		}
		if h.Hash != res.FinalHash || h.Seq != len(recs) {
			return broken(len(recs)-1, "chain head record does not match recomputed tail")
		}
	}

	recordChainVerify(ctx, true)
	return res, nil
}
