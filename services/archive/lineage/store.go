// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lineage owns the append-only version history of every paper.
//
// Each paper is a chain of immutable versions: a version starts as a Draft,
// becomes Published when it wins the head compare-and-swap, and moves to
// Superseded when a later publish replaces it. Version numbers are assigned
// at publish time as parent number + 1 (roots get 1), so the published
// lineage of a paper is always gapless and strictly increasing.
//
// Publish runs inside one Badger transaction that reads the head pointer;
// when two publishers race, serializable snapshot isolation fails the
// loser's commit and the loss surfaces as ErrHeadMoved. The caller rebases
// the draft and retries against the new head. Exactly one publish wins per
// head state.
//
// Every successful publish also appends a link to the paper's certification
// chain (pkg/chain), making the published history tamper-evident.
package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/deeptimelabs/tesseract/pkg/chain"
	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

// Store manages papers, versions and certification chains.
//
// Thread Safety: safe for concurrent use. Publish relies on transaction
// conflicts, not locks.
type Store struct {
	db       *storage.DB
	log      *logging.Logger
	hasher   chain.HashComputer
	verifier chain.Verifier
}

// NewStore wires a lineage store over an open database.
func NewStore(db *storage.DB, log *logging.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Store{
		db:       db,
		log:      log,
		hasher:   chain.NewSHA256HashComputer(),
		verifier: chain.NewFullVerifier(),
	}, nil
}

// CreatePaper creates a paper together with its root Draft (parent null).
// The draft carries the given policy and metadata; its dataset is attached
// later via SetDraftDataset.
func (s *Store) CreatePaper(ctx context.Context, ownerID, title string, policy Policy, meta Metadata) (Paper, Version, error) {
	if ownerID == "" {
		return Paper{}, Version{}, errs.Validationf("owner id must not be empty")
	}
	if title == "" {
		return Paper{}, Version{}, errs.Validationf("paper title must not be empty")
	}
	if !policy.Valid() {
		return Paper{}, Version{}, errs.Validationf("unknown policy %q", policy)
	}
	if meta.Title == "" {
		meta.Title = title
	}

	now := time.Now().UnixMilli()
	paper := Paper{
		ID:        newPaperID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
	}
	root := Version{
		ID:        newVersionID(),
		PaperID:   paper.ID,
		State:     StateDraft,
		Metadata:  meta,
		Policy:    policy,
		CreatedAt: now,
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := storage.PutJSON(txn, paperKey(paper.ID), &paper); err != nil {
			return err
		}
		if err := storage.PutJSON(txn, versionKey(root.ID), &root); err != nil {
			return err
		}
		return txn.Set(draftKey(paper.ID, root.ID), nil)
	})
	if err != nil {
		return Paper{}, Version{}, err
	}

	s.log.Info("created paper", "paper_id", paper.ID, "owner_id", ownerID, "root_version", root.ID)
	return paper, root, nil
}

// NewDraft creates a Draft version of an existing paper.
//
// An empty parentID selects the current head; naming an explicit parent
// permits branching off a superseded version (only one branch can ever win
// the head race at a time). Passing an empty policy inherits the parent's.
func (s *Store) NewDraft(ctx context.Context, paperID, parentID string, policy Policy, meta Metadata) (Version, error) {
	if err := meta.Validate(); err != nil {
		return Version{}, errs.Wrap(errs.ErrValidation, err)
	}

	draft := Version{
		ID:        newVersionID(),
		PaperID:   paperID,
		State:     StateDraft,
		Metadata:  meta,
		CreatedAt: time.Now().UnixMilli(),
	}

	// Resolving the head inside a write transaction can lose an SSI race
	// against a concurrent publish; re-running resolves the fresh head.
	err := s.db.WithTxnRetry(ctx, 3, func(txn *badger.Txn) error {
		if err := storage.GetJSON(txn, paperKey(paperID), &Paper{}); err != nil {
			return asNotFound(err, "paper %s", paperID)
		}

		resolvedParent := parentID
		if resolvedParent == "" {
			var h head
			switch err := storage.GetJSON(txn, headKey(paperID), &h); {
			case err == nil:
				resolvedParent = h.VersionID
			case errors.Is(err, badger.ErrKeyNotFound):
				// No head yet: this draft is a root candidate.
			default:
				return err
			}
		}

		parentPolicy := Policy("")
		if resolvedParent != "" {
			var parent Version
			if err := storage.GetJSON(txn, versionKey(resolvedParent), &parent); err != nil {
				return asNotFound(err, "parent version %s", resolvedParent)
			}
			if parent.PaperID != paperID {
				return errs.Validationf("parent version %s belongs to paper %s, not %s",
					resolvedParent, parent.PaperID, paperID)
			}
			if parent.State == StateDraft {
				return errs.Validationf("parent version %s is an unpublished draft", resolvedParent)
			}
			parentPolicy = parent.Policy
		}

		switch {
		case policy.Valid():
			draft.Policy = policy
		case policy != "":
			return errs.Validationf("unknown policy %q", policy)
		case parentPolicy != "":
			draft.Policy = parentPolicy
		default:
			return errs.Validationf("policy is required for a root draft")
		}

		draft.ParentID = resolvedParent
		if err := storage.PutJSON(txn, versionKey(draft.ID), &draft); err != nil {
			return err
		}
		return txn.Set(draftKey(paperID, draft.ID), nil)
	})
	if err != nil {
		if storage.IsConflict(err) {
			err = fmt.Errorf("%w: paper %s lineage changed during draft creation; retry", ErrHeadMoved, paperID)
		}
		return Version{}, err
	}

	s.log.Debug("created draft", "paper_id", paperID, "version_id", draft.ID, "parent_id", draft.ParentID)
	return draft, nil
}

// SetDraftDataset attaches a dataset to a draft. The caller guarantees the
// id references a committed dataset manifest of the same paper; the facade
// checks this before delegating.
func (s *Store) SetDraftDataset(ctx context.Context, versionID, datasetID string) (Version, error) {
	if datasetID == "" {
		return Version{}, errs.Validationf("dataset id must not be empty")
	}
	return s.updateDraft(ctx, versionID, func(v *Version) error {
		v.DatasetID = datasetID
		return nil
	})
}

// SetDraftPolicy changes a draft's access policy. Published versions reject
// the change; policy is frozen at publish.
func (s *Store) SetDraftPolicy(ctx context.Context, versionID string, policy Policy) (Version, error) {
	if !policy.Valid() {
		return Version{}, errs.Validationf("unknown policy %q", policy)
	}
	return s.updateDraft(ctx, versionID, func(v *Version) error {
		v.Policy = policy
		return nil
	})
}

// SetDraftMetadata replaces a draft's metadata.
func (s *Store) SetDraftMetadata(ctx context.Context, versionID string, meta Metadata) (Version, error) {
	if err := meta.Validate(); err != nil {
		return Version{}, errs.Wrap(errs.ErrValidation, err)
	}
	return s.updateDraft(ctx, versionID, func(v *Version) error {
		v.Metadata = meta
		return nil
	})
}

// RebaseDraft points a draft at the paper's current head, the recovery move
// after a lost publish race. With no head yet the draft becomes a root
// candidate again.
func (s *Store) RebaseDraft(ctx context.Context, versionID string) (Version, error) {
	var out Version
	err := s.db.WithTxnRetry(ctx, 3, func(txn *badger.Txn) error {
		var v Version
		if err := storage.GetJSON(txn, versionKey(versionID), &v); err != nil {
			return asNotFound(err, "version %s", versionID)
		}
		if v.State != StateDraft {
			return fmt.Errorf("%w: %s is %s", ErrNotDraft, versionID, v.State)
		}

		var h head
		switch err := storage.GetJSON(txn, headKey(v.PaperID), &h); {
		case err == nil:
			v.ParentID = h.VersionID
		case errors.Is(err, badger.ErrKeyNotFound):
			v.ParentID = ""
		default:
			return err
		}

		out = v
		return storage.PutJSON(txn, versionKey(versionID), &v)
	})
	if err != nil {
		if storage.IsConflict(err) {
			err = fmt.Errorf("%w: head kept moving while rebasing draft %s; retry", ErrHeadMoved, versionID)
		}
		return Version{}, err
	}
	return out, nil
}

// Publish promotes a draft to the paper's head.
//
// The transaction requires the head pointer to equal the draft's parent
// (absent for roots): the number becomes parent + 1, the previous head
// moves to Superseded, the ordered lineage index and head pointer advance,
// and a certification link seals the publish. A concurrent publish that
// invalidates the read head fails the commit and surfaces as ErrHeadMoved;
// rebase the draft and retry.
func (s *Store) Publish(ctx context.Context, versionID string) (Version, error) {
	var published Version
	var paperID string

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var v Version
		if err := storage.GetJSON(txn, versionKey(versionID), &v); err != nil {
			return asNotFound(err, "version %s", versionID)
		}
		if v.State != StateDraft {
			return fmt.Errorf("%w: %s is %s", ErrNotDraft, versionID, v.State)
		}
		paperID = v.PaperID
		now := time.Now().UnixMilli()

		var h head
		headErr := storage.GetJSON(txn, headKey(v.PaperID), &h)
		switch {
		case v.ParentID == "":
			if headErr == nil {
				return fmt.Errorf("%w: paper %s already has head %s but draft %s is a root; rebase and retry",
					ErrHeadMoved, v.PaperID, h.VersionID, versionID)
			}
			if !errors.Is(headErr, badger.ErrKeyNotFound) {
				return headErr
			}
			v.Number = 1

		case headErr == nil:
			if h.VersionID != v.ParentID {
				return fmt.Errorf("%w: paper %s head is %s, draft %s expects parent %s; rebase and retry",
					ErrHeadMoved, v.PaperID, h.VersionID, versionID, v.ParentID)
			}
			v.Number = h.Number + 1

			var prev Version
			if err := storage.GetJSON(txn, versionKey(h.VersionID), &prev); err != nil {
				return asNotFound(err, "head version %s", h.VersionID)
			}
			prev.State = StateSuperseded
			prev.SupersededAt = now
			if err := storage.PutJSON(txn, versionKey(prev.ID), &prev); err != nil {
				return err
			}

		case errors.Is(headErr, badger.ErrKeyNotFound):
			return fmt.Errorf("%w: paper %s has no head but draft %s expects parent %s; rebase and retry",
				ErrHeadMoved, v.PaperID, versionID, v.ParentID)

		default:
			return headErr
		}

		v.State = StatePublished
		v.PublishedAt = now

		link, err := s.appendLink(txn, &v, now)
		if err != nil {
			return err
		}
		v.CertHash = link.Hash

		if err := storage.PutJSON(txn, versionKey(v.ID), &v); err != nil {
			return err
		}
		if err := txn.Set(numberKey(v.PaperID, v.Number), []byte(v.ID)); err != nil {
			return err
		}
		if err := txn.Delete(draftKey(v.PaperID, v.ID)); err != nil {
			return err
		}
		if err := storage.PutJSON(txn, headKey(v.PaperID), &head{VersionID: v.ID, Number: v.Number}); err != nil {
			return err
		}

		published = v
		return nil
	})
	if err != nil {
		if storage.IsConflict(err) {
			err = fmt.Errorf("%w: concurrent publish on paper %s beat version %s; rebase and retry",
				ErrHeadMoved, paperID, versionID)
		}
		recordPublish(ctx, err)
		return Version{}, err
	}

	recordPublish(ctx, nil)
	s.log.Info("published version",
		"paper_id", published.PaperID,
		"version_id", published.ID,
		"number", published.Number,
		"cert_hash", published.CertHash,
	)
	return published, nil
}

// GetPaper loads one paper record.
func (s *Store) GetPaper(ctx context.Context, paperID string) (Paper, error) {
	var p Paper
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return storage.GetJSON(txn, paperKey(paperID), &p)
	})
	if err != nil {
		return Paper{}, asNotFound(err, "paper %s", paperID)
	}
	return p, nil
}

// GetVersion loads one version record.
func (s *Store) GetVersion(ctx context.Context, versionID string) (Version, error) {
	var v Version
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		return storage.GetJSON(txn, versionKey(versionID), &v)
	})
	if err != nil {
		return Version{}, asNotFound(err, "version %s", versionID)
	}
	return v, nil
}

// Head returns the paper's currently canonical version.
func (s *Store) Head(ctx context.Context, paperID string) (Version, error) {
	var v Version
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := storage.GetJSON(txn, paperKey(paperID), &Paper{}); err != nil {
			return asNotFound(err, "paper %s", paperID)
		}
		var h head
		if err := storage.GetJSON(txn, headKey(paperID), &h); err != nil {
			return asNotFound(err, "published head of paper %s", paperID)
		}
		return storage.GetJSON(txn, versionKey(h.VersionID), &v)
	})
	if err != nil {
		return Version{}, err
	}
	return v, nil
}

// ListVersions returns the published lineage of a paper in ascending number
// order, read from one snapshot. Drafts are not part of the lineage; see
// ListDrafts.
func (s *Store) ListVersions(ctx context.Context, paperID string) ([]Version, error) {
	var out []Version
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := storage.GetJSON(txn, paperKey(paperID), &Paper{}); err != nil {
			return asNotFound(err, "paper %s", paperID)
		}

		prefix := numberPrefix(paperID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var v Version
			if err := storage.GetJSON(txn, versionKey(string(id)), &v); err != nil {
				return fmt.Errorf("lineage index of paper %s names missing version %s: %w", paperID, id, err)
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDrafts returns a paper's unpublished versions, oldest first.
func (s *Store) ListDrafts(ctx context.Context, paperID string) ([]Version, error) {
	var out []Version
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := storage.GetJSON(txn, paperKey(paperID), &Paper{}); err != nil {
			return asNotFound(err, "paper %s", paperID)
		}

		prefix := draftPrefix(paperID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := string(it.Item().Key()[len(prefix):])
			var v Version
			if err := storage.GetJSON(txn, versionKey(id), &v); err != nil {
				return fmt.Errorf("draft index of paper %s names missing version %s: %w", paperID, id, err)
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// ListPapers returns every paper, ordered by id.
func (s *Store) ListPapers(ctx context.Context) ([]Paper, error) {
	var out []Paper
	err := s.db.ForEachPrefix(ctx, paperPrefix(), func(key, val []byte) error {
		var p Paper
		if err := json.Unmarshal(val, &p); err != nil {
			return fmt.Errorf("decode paper record %s: %w", key, err)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// updateDraft loads a version, requires Draft state, applies mutate and
// writes it back, all in one transaction.
func (s *Store) updateDraft(ctx context.Context, versionID string, mutate func(*Version) error) (Version, error) {
	var out Version
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		var v Version
		if err := storage.GetJSON(txn, versionKey(versionID), &v); err != nil {
			return asNotFound(err, "version %s", versionID)
		}
		if v.State != StateDraft {
			return fmt.Errorf("%w: %s is %s", ErrNotDraft, versionID, v.State)
		}
		if err := mutate(&v); err != nil {
			return err
		}
		out = v
		return storage.PutJSON(txn, versionKey(versionID), &v)
	})
	if err != nil {
		return Version{}, err
	}
	return out, nil
}

// ============================================================================
// Record helpers
// ============================================================================

// asNotFound maps Badger's missing-key error into the taxonomy with the
// record's identity; other errors pass through.
func asNotFound(err error, format string, args ...any) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return errs.NotFoundf(format, args...)
	}
	return err
}
