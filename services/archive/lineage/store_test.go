// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lineage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenDB(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := NewStore(db, nil)
	require.NoError(t, err)
	return st
}

func testMeta(title string) Metadata {
	return Metadata{Title: title, AuthorTeam: []string{"alice", "bob"}}
}

func TestCreatePaper(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paper, root, err := st.CreatePaper(ctx, "alice", "Holocene shorelines", PolicyAuthorOnly, testMeta("Holocene shorelines"))
	require.NoError(t, err)

	assert.NotEmpty(t, paper.ID)
	assert.Equal(t, "alice", paper.OwnerID)
	assert.NotZero(t, paper.CreatedAt)

	assert.Equal(t, paper.ID, root.PaperID)
	assert.Equal(t, StateDraft, root.State)
	assert.True(t, root.Root())
	assert.Zero(t, root.Number)
	assert.Equal(t, PolicyAuthorOnly, root.Policy)

	got, err := st.GetPaper(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, paper, got)

	drafts, err := st.ListDrafts(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, root.ID, drafts[0].ID)
}

func TestCreatePaper_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.CreatePaper(ctx, "", "title", PolicyPublic, testMeta("title"))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, _, err = st.CreatePaper(ctx, "alice", "", PolicyPublic, testMeta("title"))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	_, _, err = st.CreatePaper(ctx, "alice", "title", Policy("secret"), testMeta("title"))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestPublishRoot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paper, root, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("title"))
	require.NoError(t, err)

	published, err := st.Publish(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, published.Number)
	assert.Equal(t, StatePublished, published.State)
	assert.NotEmpty(t, published.CertHash)
	assert.NotZero(t, published.PublishedAt)

	headVer, err := st.Head(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, published.ID, headVer.ID)

	versions, err := st.ListVersions(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, 1, versions[0].Number)

	drafts, err := st.ListDrafts(ctx, paper.ID)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestPublishLineage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paper, root, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("v1"))
	require.NoError(t, err)
	v1, err := st.Publish(ctx, root.ID)
	require.NoError(t, err)

	draft, err := st.NewDraft(ctx, paper.ID, "", "", testMeta("v2"))
	require.NoError(t, err)
	assert.Equal(t, v1.ID, draft.ParentID)
	assert.Equal(t, PolicyPublic, draft.Policy, "empty policy inherits the parent's")

	v2, err := st.Publish(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Number)
	assert.Equal(t, v1.ID, v2.ParentID)

	prev, err := st.GetVersion(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSuperseded, prev.State)
	assert.NotZero(t, prev.SupersededAt)

	versions, err := st.ListVersions(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Number, "numbers must be gapless from 1")
	}
}

func TestPublish_NotDraft(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, root, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("title"))
	require.NoError(t, err)
	_, err = st.Publish(ctx, root.ID)
	require.NoError(t, err)

	_, err = st.Publish(ctx, root.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotDraft))
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestPublish_StaleParent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paper, root, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("v1"))
	require.NoError(t, err)
	v1, err := st.Publish(ctx, root.ID)
	require.NoError(t, err)

	draftA, err := st.NewDraft(ctx, paper.ID, v1.ID, "", testMeta("a"))
	require.NoError(t, err)
	draftB, err := st.NewDraft(ctx, paper.ID, v1.ID, "", testMeta("b"))
	require.NoError(t, err)

	v2, err := st.Publish(ctx, draftA.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Number)

	// B still expects v1 as head and must lose.
	_, err = st.Publish(ctx, draftB.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHeadMoved))
	assert.True(t, errors.Is(err, errs.ErrConflict))

	// Rebase onto the new head and retry.
	rebased, err := st.RebaseDraft(ctx, draftB.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, rebased.ParentID)

	v3, err := st.Publish(ctx, draftB.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Number)
	assert.Equal(t, v2.ID, v3.ParentID)
}

func TestPublish_ConcurrentRace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	const publishers = 8

	paper, root, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("v1"))
	require.NoError(t, err)
	_, err = st.Publish(ctx, root.ID)
	require.NoError(t, err)

	drafts := make([]Version, publishers)
	for i := range drafts {
		draft, err := st.NewDraft(ctx, paper.ID, "", "", testMeta(fmt.Sprintf("draft-%d", i)))
		require.NoError(t, err)
		drafts[i] = draft
	}

	var g errgroup.Group
	for i := 0; i < publishers; i++ {
		draft := drafts[i]
		i := i
		g.Go(func() error {
			for attempt := 0; attempt < publishers*4; attempt++ {
				_, err := st.Publish(ctx, draft.ID)
				if err == nil {
					return nil
				}
				if !errors.Is(err, ErrHeadMoved) {
					return err
				}
				// A rebase can itself lose a race; the next publish
				// attempt will find the stale parent and come back here.
				if _, err := st.RebaseDraft(ctx, draft.ID); err != nil && !errors.Is(err, ErrHeadMoved) {
					return err
				}
			}
			return fmt.Errorf("draft %d never won the head race", i)
		})
	}
	require.NoError(t, g.Wait())

	versions, err := st.ListVersions(ctx, paper.ID)
	require.NoError(t, err)
	require.Len(t, versions, publishers+1)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Number, "numbers must be gapless under contention")
	}

	headVer, err := st.Head(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, publishers+1, headVer.Number)
}

func TestNewDraft_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paperA, rootA, err := st.CreatePaper(ctx, "alice", "a", PolicyPublic, testMeta("a"))
	require.NoError(t, err)
	paperB, _, err := st.CreatePaper(ctx, "bob", "b", PolicyPublic, testMeta("b"))
	require.NoError(t, err)

	_, err = st.NewDraft(ctx, "paper-missing", "", PolicyPublic, testMeta("x"))
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	// Parent belonging to another paper.
	v1, err := st.Publish(ctx, rootA.ID)
	require.NoError(t, err)
	_, err = st.NewDraft(ctx, paperB.ID, v1.ID, PolicyPublic, testMeta("x"))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	// Draft parents are not allowed; publish them first.
	draft, err := st.NewDraft(ctx, paperA.ID, "", "", testMeta("draft"))
	require.NoError(t, err)
	_, err = st.NewDraft(ctx, paperA.ID, draft.ID, "", testMeta("x"))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	// Unknown policy.
	_, err = st.NewDraft(ctx, paperA.ID, "", Policy("secret"), testMeta("x"))
	assert.True(t, errors.Is(err, errs.ErrValidation))

	// Missing title.
	_, err = st.NewDraft(ctx, paperA.ID, "", PolicyPublic, Metadata{})
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestDraftMutators(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, root, err := st.CreatePaper(ctx, "alice", "title", PolicyAuthorOnly, testMeta("title"))
	require.NoError(t, err)

	v, err := st.SetDraftDataset(ctx, root.ID, "ds-123")
	require.NoError(t, err)
	assert.Equal(t, "ds-123", v.DatasetID)

	v, err = st.SetDraftPolicy(ctx, root.ID, PolicyStatsPublic)
	require.NoError(t, err)
	assert.Equal(t, PolicyStatsPublic, v.Policy)

	v, err = st.SetDraftMetadata(ctx, root.ID, Metadata{Title: "updated", UpdateReason: "fixed axis"})
	require.NoError(t, err)
	assert.Equal(t, "updated", v.Metadata.Title)

	_, err = st.Publish(ctx, root.ID)
	require.NoError(t, err)

	// Everything is frozen after publish, policy included.
	_, err = st.SetDraftDataset(ctx, root.ID, "ds-456")
	assert.True(t, errors.Is(err, ErrNotDraft))
	_, err = st.SetDraftPolicy(ctx, root.ID, PolicyPublic)
	assert.True(t, errors.Is(err, ErrNotDraft))
	_, err = st.SetDraftMetadata(ctx, root.ID, testMeta("again"))
	assert.True(t, errors.Is(err, ErrNotDraft))
	_, err = st.RebaseDraft(ctx, root.ID)
	assert.True(t, errors.Is(err, ErrNotDraft))
}

func TestHead_NoPublishes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	paper, _, err := st.CreatePaper(ctx, "alice", "title", PolicyPublic, testMeta("title"))
	require.NoError(t, err)

	_, err = st.Head(ctx, paper.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))

	_, err = st.Head(ctx, "paper-missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestListPapers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, _, err := st.CreatePaper(ctx, "alice", "first", PolicyPublic, testMeta("first"))
	require.NoError(t, err)
	_, _, err = st.CreatePaper(ctx, "bob", "second", PolicyAuthorOnly, testMeta("second"))
	require.NoError(t, err)

	papers, err := st.ListPapers(ctx)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}

func TestGetVersion_NotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetVersion(context.Background(), "ver-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Contains(t, err.Error(), "ver-missing")
}
