// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
)

type captureExporter struct {
	mu     sync.Mutex
	events []StatEvent
}

func (c *captureExporter) Export(event StatEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureExporter) Close() {}

func (c *captureExporter) snapshot() []StatEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]StatEvent(nil), c.events...)
}

func newTestLedger(t *testing.T) (*Ledger, *captureExporter) {
	t.Helper()
	db, err := storage.OpenDB(storage.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exporter := &captureExporter{}
	l, err := NewLedger(db, exporter, nil)
	require.NoError(t, err)
	return l, exporter
}

func statsVersion() lineage.Version {
	return lineage.Version{
		ID:      "ver-stats",
		PaperID: "paper-stats",
		Number:  3,
		State:   lineage.StatePublished,
		Policy:  lineage.PolicyPublic,
	}
}

func TestRecord_CountsOncePerDay(t *testing.T) {
	l, exporter := newTestLedger(t)
	ctx := context.Background()
	version := statsVersion()
	viewer := Viewer{ID: "reader-1"}

	counter, counted, err := l.Record(ctx, version, viewer, KindView, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(1), counter.Count)

	for i := 0; i < 4; i++ {
		counter, counted, err = l.Record(ctx, version, viewer, KindView, "2026-08-20")
		require.NoError(t, err)
		assert.False(t, counted)
		assert.Equal(t, int64(1), counter.Count)
	}

	counter, counted, err = l.Record(ctx, version, viewer, KindView, "2026-08-21")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(2), counter.Count)
	assert.Equal(t, "2026-08-20", counter.FirstDay)
	assert.Equal(t, "2026-08-21", counter.LastDay)

	events := exporter.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Count)
	assert.Equal(t, int64(2), events[1].Count)
	assert.Equal(t, version.PaperID, events[0].PaperID)
	assert.Equal(t, KindView, events[0].Kind)
}

func TestRecord_DistinctViewers(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	version := statsVersion()

	_, counted, err := l.Record(ctx, version, Viewer{ID: "reader-1"}, KindView, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, counted)

	counter, counted, err := l.Record(ctx, version, Viewer{ID: "reader-2"}, KindView, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(2), counter.Count)
}

func TestRecord_KindsIndependent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	version := statsVersion()
	viewer := Viewer{ID: "reader-1"}

	views, counted, err := l.Record(ctx, version, viewer, KindView, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(1), views.Count)

	downloads, counted, err := l.Record(ctx, version, viewer, KindDownload, "2026-08-20")
	require.NoError(t, err)
	assert.True(t, counted)
	assert.Equal(t, int64(1), downloads.Count)

	summary, err := l.Stats(ctx, version.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Views.Count)
	assert.Equal(t, int64(1), summary.Downloads.Count)
	assert.Equal(t, KindView, summary.Views.Kind)
	assert.Equal(t, KindDownload, summary.Downloads.Kind)
}

func TestRecord_Validation(t *testing.T) {
	l, exporter := newTestLedger(t)
	ctx := context.Background()
	version := statsVersion()
	viewer := Viewer{ID: "reader-1"}

	_, _, err := l.Record(ctx, version, viewer, Kind("export"), "2026-08-20")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, _, err = l.Record(ctx, version, Viewer{}, KindView, "2026-08-20")
	assert.ErrorIs(t, err, errs.ErrValidation)

	for _, day := range []string{"", "20260820", "2026-8-20", "2026-13-40", "yesterday"} {
		_, _, err = l.Record(ctx, version, viewer, KindView, day)
		assert.ErrorIs(t, err, errs.ErrValidation, "day %q", day)
	}

	draft := version
	draft.State = lineage.StateDraft
	_, _, err = l.Record(ctx, draft, viewer, KindView, "2026-08-20")
	assert.ErrorIs(t, err, errs.ErrValidation)

	assert.Empty(t, exporter.snapshot())
}

func TestRecord_ConcurrentDuplicates(t *testing.T) {
	l, exporter := newTestLedger(t)
	version := statsVersion()
	viewer := Viewer{ID: "reader-1"}

	var g errgroup.Group
	var mu sync.Mutex
	countedTotal := 0
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, counted, err := l.Record(context.Background(), version, viewer, KindDownload, "2026-08-20")
			if err != nil {
				return err
			}
			if counted {
				mu.Lock()
				countedTotal++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, countedTotal)
	summary, err := l.Stats(context.Background(), version.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Downloads.Count)
	assert.Len(t, exporter.snapshot(), 1)
}

func TestStats_ZeroWhenUnrecorded(t *testing.T) {
	l, _ := newTestLedger(t)

	summary, err := l.Stats(context.Background(), "ver-quiet")
	require.NoError(t, err)
	assert.Equal(t, "ver-quiet", summary.VersionID)
	assert.Zero(t, summary.Views.Count)
	assert.Zero(t, summary.Downloads.Count)
	assert.Empty(t, summary.Views.FirstDay)

	_, err = l.Stats(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestViewerHash(t *testing.T) {
	a := viewerHash("reader-1")
	b := viewerHash("reader-2")
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, viewerHash("reader-1"))
}
