// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package query

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

type testStack struct {
	db     *storage.DB
	papers *lineage.Store
	chunks *vault.Store
	pipe   *ingest.Pipeline
	engine *Engine
}

// newTestStack wires the full read path with a one-byte chunk target so
// every sample becomes its own chunk.
func newTestStack(t *testing.T) *testStack {
	t.Helper()
	t.Setenv("TESSERACT_ALLOW_INSECURE_KEYRING", "1")

	db, err := storage.OpenDB(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kr, err := vault.NewKeyring(db, filepath.Join(t.TempDir(), "root.key"), false, nil)
	require.NoError(t, err)
	t.Cleanup(kr.Close)

	chunks, err := vault.NewStore(db, kr, nil)
	require.NoError(t, err)
	papers, err := lineage.NewStore(db, nil)
	require.NoError(t, err)
	pipe, err := ingest.NewPipeline(db, chunks, nil, config.IngestConfig{ChunkTargetBytes: 1}, nil)
	require.NoError(t, err)
	engine, err := NewEngine(db, papers, chunks, nil)
	require.NoError(t, err)

	return &testStack{db: db, papers: papers, chunks: chunks, pipe: pipe, engine: engine}
}

func (s *testStack) createPaper(t *testing.T) (lineage.Paper, lineage.Version) {
	t.Helper()
	paper, root, err := s.papers.CreatePaper(context.Background(), "owner-1", "Varve series",
		lineage.PolicyPublic, lineage.Metadata{Title: "Varve series"})
	require.NoError(t, err)
	return paper, root
}

// jsonlPayload renders one sample per entry; x walks with the index so
// spatial filters can cut the set.
func jsonlPayload(t *testing.T, days []int64) []byte {
	t.Helper()
	var out []byte
	for i, d := range days {
		s := ingest.Sample{
			T:     coordinate.Temporal{Days: d, Calendar: coordinate.CalendarGregorian},
			Pos:   coordinate.Spatial{X: float64(i), Y: 0, Z: 0, Frame: coordinate.FrameSiteLocal},
			Value: []byte(fmt.Sprintf("sample-%d", d)),
		}
		b, err := json.Marshal(s)
		require.NoError(t, err)
		out = append(out, b...)
		out = append(out, '\n')
	}
	return out
}

// ingestAndPublish loads one chunk per day into the draft and publishes.
func (s *testStack) ingestAndPublish(t *testing.T, paperID, draftID string, days []int64) lineage.Version {
	t.Helper()
	ctx := context.Background()
	ds, err := s.pipe.Ingest(ctx, paperID, jsonlPayload(t, days), nil)
	require.NoError(t, err)
	_, err = s.papers.SetDraftDataset(ctx, draftID, ds.ID)
	require.NoError(t, err)
	v, err := s.papers.Publish(ctx, draftID)
	require.NoError(t, err)
	return v
}

func (s *testStack) newDraft(t *testing.T, paperID string) lineage.Version {
	t.Helper()
	draft, err := s.papers.NewDraft(context.Background(), paperID, "", "", lineage.Metadata{Title: "next"})
	require.NoError(t, err)
	return draft
}

func dayRange(t *testing.T, start, end int64) *coordinate.Range {
	t.Helper()
	s, err := coordinate.NewTemporal(start, coordinate.CalendarGregorian)
	require.NoError(t, err)
	e, err := coordinate.NewTemporal(end, coordinate.CalendarGregorian)
	require.NoError(t, err)
	r, err := coordinate.NewRange(s, e)
	require.NoError(t, err)
	return &r
}

func xBox(t *testing.T, lo, hi float64) *coordinate.Box {
	t.Helper()
	min, err := coordinate.NewSpatial(lo, -10, -10, coordinate.FrameSiteLocal)
	require.NoError(t, err)
	max, err := coordinate.NewSpatial(hi, 10, 10, coordinate.FrameSiteLocal)
	require.NoError(t, err)
	b, err := coordinate.NewBox(min, max)
	require.NoError(t, err)
	return &b
}

// assertOrdered checks the (version number, chunk hash) walk order.
func assertOrdered(t *testing.T, items []Item) {
	t.Helper()
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if prev.Number == cur.Number {
			assert.Less(t, prev.Chunk.Hash, cur.Chunk.Hash)
		} else {
			assert.Less(t, prev.Number, cur.Number)
		}
	}
}

func TestRun_HeadSelector(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	v1 := s.ingestAndPublish(t, paper.ID, root.ID, []int64{-100, 0, 100})

	draft := s.newDraft(t, paper.ID)
	v2 := s.ingestAndPublish(t, paper.ID, draft.ID, []int64{500, 600})

	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head()})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)

	require.Len(t, items, 2, "head query sees only the head version's chunks")
	for _, item := range items {
		assert.Equal(t, v2.ID, item.VersionID)
		assert.Equal(t, 2, item.Number)
		assert.Equal(t, v2.DatasetID, item.DatasetID)
	}
	assertOrdered(t, items)
	_ = v1
}

func TestRun_AllVersionsOrdered(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	v1 := s.ingestAndPublish(t, paper.ID, root.ID, []int64{-100, 0, 100})
	draft := s.newDraft(t, paper.ID)
	v2 := s.ingestAndPublish(t, paper.ID, draft.ID, []int64{500, 600})

	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: AllVersions()})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)

	require.Len(t, items, 5)
	assert.Equal(t, v1.ID, items[0].VersionID)
	assert.Equal(t, v2.ID, items[4].VersionID)
	assertOrdered(t, items)

	// A second run over the same request is byte-for-byte reproducible.
	cursor2, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: AllVersions()})
	require.NoError(t, err)
	again, err := cursor2.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestRun_SpecificVersion(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	v1 := s.ingestAndPublish(t, paper.ID, root.ID, []int64{-100, 0})

	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Version(v1.ID)})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	// Drafts are never query-visible.
	draft := s.newDraft(t, paper.ID)
	_, err = s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Version(draft.ID)})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// A version cannot be read through another paper's id.
	other, otherRoot, err := s.papers.CreatePaper(ctx, "owner-2", "Other", lineage.PolicyPublic, lineage.Metadata{Title: "Other"})
	require.NoError(t, err)
	_ = otherRoot
	_, err = s.engine.Run(ctx, Request{PaperID: other.ID, Selector: Version(v1.ID)})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestRun_TimeFilterSoundAndComplete(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	days := []int64{-5000, -100, 0, 50, 3000}
	s.ingestAndPublish(t, paper.ID, root.ID, days)

	filter := Filter{Time: dayRange(t, -100, 100)}
	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head(), Filter: filter})
	require.NoError(t, err)
	got, err := cursor.Collect(ctx)
	require.NoError(t, err)

	// Brute force over the unfiltered set proves soundness and
	// completeness of the overlap filter.
	unfiltered, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head()})
	require.NoError(t, err)
	all, err := unfiltered.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(days))

	want := map[string]bool{}
	for _, item := range all {
		if filter.Time.Overlaps(item.Chunk.Bounds.Time) {
			want[item.Chunk.Hash] = true
		}
	}
	require.Len(t, want, 3)

	gotHashes := map[string]bool{}
	for _, item := range got {
		assert.True(t, filter.Time.Overlaps(item.Chunk.Bounds.Time), "sound: every hit overlaps")
		gotHashes[item.Chunk.Hash] = true
	}
	assert.Equal(t, want, gotHashes, "complete: every overlapping chunk is returned")
}

func TestRun_SpaceFilter(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	// Samples sit at x = 0, 1, 2, 3, 4.
	s.ingestAndPublish(t, paper.ID, root.ID, []int64{10, 20, 30, 40, 50})

	cursor, err := s.engine.Run(ctx, Request{
		PaperID:  paper.ID,
		Selector: Head(),
		Filter:   Filter{Space: xBox(t, 2.5, 10)},
	})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)

	require.Len(t, items, 2)
	for _, item := range items {
		assert.GreaterOrEqual(t, item.Chunk.Bounds.Space.Min.X, 3.0)
	}
}

func TestRun_EmptyOverlapIsEmptyCursor(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	s.ingestAndPublish(t, paper.ID, root.ID, []int64{0, 1, 2})

	cursor, err := s.engine.Run(ctx, Request{
		PaperID:  paper.ID,
		Selector: Head(),
		Filter:   Filter{Time: dayRange(t, 100000, 200000)},
	})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRun_MetadataOnlyVersion(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)

	// Publish the root with no dataset attached.
	_, err := s.papers.Publish(ctx, root.ID)
	require.NoError(t, err)

	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: AllVersions()})
	require.NoError(t, err)
	items, err := cursor.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCursor_ResetAndResume(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	paper, root := s.createPaper(t)
	s.ingestAndPublish(t, paper.ID, root.ID, []int64{1, 2, 3, 4, 5})

	cursor, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head()})
	require.NoError(t, err)
	all, err := cursor.Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)

	// Reset rewinds to the start.
	cursor.Reset()
	again, err := cursor.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, all, again)

	// Page through two items, then resume from the position token.
	cursor.Reset()
	_, ok, err := cursor.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := cursor.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	token := cursor.Position()
	require.NotEmpty(t, token)
	assert.Contains(t, token, second.Chunk.Hash)

	resumed, err := s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head(), After: token})
	require.NoError(t, err)
	rest, err := resumed.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, all[2:], rest)
}

func TestRun_Validation(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.engine.Run(ctx, Request{Selector: Head()})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.engine.Run(ctx, Request{PaperID: "paper-x", Selector: Selector{Mode: "sideways"}})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.engine.Run(ctx, Request{PaperID: "paper-x", Selector: Selector{Mode: ModeSpecific}})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = s.engine.Run(ctx, Request{PaperID: "paper-missing", Selector: AllVersions()})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	paper, root := s.createPaper(t)
	_ = root
	_, err = s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: Head()})
	assert.ErrorIs(t, err, errs.ErrNotFound, "no published head yet")

	inverted := coordinate.Range{
		Start: coordinate.Temporal{Days: 10, Calendar: coordinate.CalendarGregorian},
		End:   coordinate.Temporal{Days: -10, Calendar: coordinate.CalendarGregorian},
	}
	_, err = s.engine.Run(ctx, Request{PaperID: paper.ID, Selector: AllVersions(), Filter: Filter{Time: &inverted}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}
