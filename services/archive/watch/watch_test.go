// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/alert"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
)

type fakeIngestor struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (f *fakeIngestor) Ingest(_ context.Context, _ string, payload []byte, _ *coordinate.Bounds) (ingest.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	if f.err != nil {
		return ingest.Dataset{}, f.err
	}
	return ingest.Dataset{ID: "ds-test", Samples: 1}, nil
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type captureNotifier struct {
	mu     sync.Mutex
	events []alert.Event
}

func (n *captureNotifier) Notify(_ context.Context, event alert.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *captureNotifier) snapshot() []alert.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]alert.Event, len(n.events))
	copy(out, n.events)
	return out
}

// startWatcher runs w.Start in the background and returns its exit channel.
func startWatcher(t *testing.T, w *Watcher) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()
	return done
}

func stopWatcher(t *testing.T, w *Watcher, done <-chan error) {
	t.Helper()
	require.NoError(t, w.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestWatcher_IngestsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngestor{}
	w, err := NewWatcher(dir, "paper-1", ing, nil, nil)
	require.NoError(t, err)
	w.Settle = 20 * time.Millisecond

	done := startWatcher(t, w)
	payload := []byte(`{"t":{"days":0,"calendar":"proleptic_gregorian"},"pos":{"x":0,"y":0,"z":0,"frame":"site_local"}}` + "\n")
	path := filepath.Join(dir, "drop.jsonl")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	require.Eventually(t, func() bool {
		return fileExists(path + doneSuffix)
	}, 5*time.Second, 10*time.Millisecond, "dropped file should be ingested and marked done")
	stopWatcher(t, w, done)

	require.Equal(t, 1, ing.count())
	assert.Equal(t, payload, ing.payloads[0])
	assert.False(t, fileExists(path), "original should be renamed away")
}

func TestWatcher_MarksRejectedFile(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngestor{err: errs.Validationf("line 1: malformed sample")}
	notifier := &captureNotifier{}
	w, err := NewWatcher(dir, "paper-1", ing, notifier, nil)
	require.NoError(t, err)
	w.Settle = 20 * time.Millisecond

	done := startWatcher(t, w)
	path := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o600))

	require.Eventually(t, func() bool {
		return fileExists(path + failedSuffix)
	}, 5*time.Second, 10*time.Millisecond)
	stopWatcher(t, w, done)

	events := notifier.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, alert.KindIngestFailure, events[0].Kind)
	assert.Equal(t, alert.LevelWarning, events[0].Level)
	assert.Equal(t, "paper-1", events[0].Fields["paper_id"])
}

func TestWatcher_PicksUpExistingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "waiting.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	ing := &fakeIngestor{}
	w, err := NewWatcher(dir, "paper-1", ing, nil, nil)
	require.NoError(t, err)
	w.Settle = 20 * time.Millisecond

	done := startWatcher(t, w)
	require.Eventually(t, func() bool {
		return fileExists(path + doneSuffix)
	}, 5*time.Second, 10*time.Millisecond, "files present at start should be ingested")
	stopWatcher(t, w, done)
	assert.Equal(t, 1, ing.count())
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	ing := &fakeIngestor{}
	w, err := NewWatcher(dir, "paper-1", ing, nil, nil)
	require.NoError(t, err)
	w.Settle = 20 * time.Millisecond

	done := startWatcher(t, w)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.jsonl.done"), []byte("x"), 0o600))

	time.Sleep(200 * time.Millisecond)
	stopWatcher(t, w, done)
	assert.Zero(t, ing.count())
}

func TestNewWatcher_Validation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWatcher(dir, "", &fakeIngestor{}, nil, nil)
	assert.Error(t, err)

	_, err = NewWatcher(dir, "paper-1", nil, nil, nil)
	assert.Error(t, err)

	_, err = NewWatcher(filepath.Join(dir, "missing"), "paper-1", &fakeIngestor{}, nil, nil)
	assert.Error(t, err)

	file := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = NewWatcher(file, "paper-1", &fakeIngestor{}, nil, nil)
	assert.Error(t, err)
}
