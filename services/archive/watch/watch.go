// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch ingests payload files dropped into a directory. Every
// *.jsonl file that appears is handed to the ingestion pipeline once it
// has settled; the file is renamed *.jsonl.done on success and
// *.jsonl.failed on rejection so a drop folder never re-ingests.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/alert"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
)

const (
	payloadSuffix = ".jsonl"
	doneSuffix    = ".done"
	failedSuffix  = ".failed"

	// defaultSettle is how long a file must stay quiet before it is
	// considered fully written.
	defaultSettle = 500 * time.Millisecond
)

// Ingestor accepts one payload for a paper. *ingest.Pipeline satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, paperID string, payload []byte, declared *coordinate.Bounds) (ingest.Dataset, error)
}

// Watcher feeds a drop folder into the ingestion pipeline.
//
// # Description
//
// Watches dir for *.jsonl files. Each file is ingested for the
// configured paper after it stops changing for the settle window.
// Files already present when Start is called are picked up too.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	dir      string
	paperID  string
	ingestor Ingestor
	notifier alert.Notifier
	log      *logging.Logger
	watcher  *fsnotify.Watcher

	// Settle is how long a file must stay quiet before ingestion.
	// Adjust before Start; defaults to half a second.
	Settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

// NewWatcher creates a drop-folder watcher. The directory must exist.
func NewWatcher(dir, paperID string, ingestor Ingestor, notifier alert.Notifier, log *logging.Logger) (*Watcher, error) {
	if paperID == "" {
		return nil, errors.New("paper id must not be empty")
	}
	if ingestor == nil {
		return nil, errors.New("ingestor must not be nil")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat drop folder %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("drop folder %s is not a directory", dir)
	}
	if log == nil {
		log = logging.Default()
	}
	if notifier == nil {
		notifier = alert.NewLogNotifier(log)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		dir:      dir,
		paperID:  paperID,
		ingestor: ingestor,
		notifier: notifier,
		log:      log,
		watcher:  fsw,
		Settle:   defaultSettle,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Blocks until the context is cancelled or Stop
// is called; run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch drop folder %s: %w", w.dir, err)
	}
	if err := w.sweepExisting(ctx); err != nil {
		return err
	}

	w.log.Info("watching drop folder", "dir", w.dir, "paper_id", w.paperID)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("drop folder watcher error", "error", err)

		case <-ctx.Done():
			w.log.Debug("drop folder watcher stopping")
			return ctx.Err()
		}
	}
}

// Stop halts the watcher and cancels files still waiting to settle.
// In-flight ingestions are not interrupted.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

// sweepExisting schedules files already sitting in the folder.
func (w *Watcher) sweepExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("list drop folder %s: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), payloadSuffix) {
			continue
		}
		w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if !strings.HasSuffix(event.Name, payloadSuffix) {
		return
	}
	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule arms (or re-arms) the settle timer for a file. The file is
// ingested once no event has touched it for the settle window.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.process(ctx, path)
	})
}

func (w *Watcher) process(ctx context.Context, path string) {
	payload, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn("drop folder file vanished before ingestion", "path", path, "error", err)
		return
	}

	ds, err := w.ingestor.Ingest(ctx, w.paperID, payload, nil)
	if err != nil {
		// A shutdown mid-ingest leaves the file for the next start.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			w.log.Info("ingestion interrupted, leaving file in place", "path", path)
			return
		}
		w.fail(ctx, path, err)
		return
	}

	if err := os.Rename(path, path+doneSuffix); err != nil {
		w.log.Error("could not mark ingested file", "path", path, "error", err)
	}
	w.log.Info("ingested drop folder file",
		"path", path,
		"paper_id", w.paperID,
		"dataset_id", ds.ID,
		"samples", ds.Samples)
}

func (w *Watcher) fail(ctx context.Context, path string, ingestErr error) {
	if err := os.Rename(path, path+failedSuffix); err != nil {
		w.log.Error("could not mark failed file", "path", path, "error", err)
	}
	w.notifier.Notify(ctx, alert.Event{
		Level:   alert.LevelWarning,
		Kind:    alert.KindIngestFailure,
		Message: fmt.Sprintf("drop folder ingestion failed: %v", ingestErr),
		Fields: map[string]string{
			"paper_id": w.paperID,
			"path":     path,
		},
	})
}
