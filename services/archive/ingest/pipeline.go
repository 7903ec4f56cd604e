// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ingest turns raw jsonl payloads into encrypted, bounded
// datasets.
//
// A payload is decoded into samples, packed into chunks at record
// boundaries, bounds-checked against the declared dataset extent and
// sealed through the vault in parallel. The dataset manifest is written
// only after every chunk is stored; any failure discards every chunk
// this attempt created, so no orphaned ciphertext survives a partial
// ingestion.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/alert"
	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

// Pipeline ingests payloads for papers.
type Pipeline struct {
	db       *storage.DB
	store    *vault.Store
	notifier alert.Notifier
	log      *logging.Logger
	cfg      config.IngestConfig
}

// NewPipeline builds an ingestion pipeline over the vault. A nil
// notifier logs alerts; a nil log falls back to the process default.
func NewPipeline(db *storage.DB, store *vault.Store, notifier alert.Notifier, cfg config.IngestConfig, log *logging.Logger) (*Pipeline, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if store == nil {
		return nil, errors.New("store must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	if notifier == nil {
		notifier = alert.NewLogNotifier(log)
	}
	if cfg.ChunkTargetBytes <= 0 {
		cfg.ChunkTargetBytes = 256 * 1024
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 1024 * 1024
	}
	return &Pipeline{db: db, store: store, notifier: notifier, log: log, cfg: cfg}, nil
}

type sealResult struct {
	chunk   vault.Chunk
	created bool
}

// Ingest validates, chunks and encrypts payload for paperID and persists
// the dataset manifest. declared is the extent the caller claims for the
// whole dataset; nil derives the extent from the payload itself
// (watch-folder mode). Every chunk's computed bounds must be covered by
// the declared extent.
//
// Chunks are sealed in parallel. On any failure, including cancellation,
// chunks created by this attempt are discarded; dedup hits against
// previously stored chunks are left untouched.
func (p *Pipeline) Ingest(ctx context.Context, paperID string, payload []byte, declared *coordinate.Bounds) (Dataset, error) {
	start := time.Now()
	ds, created, dedup, err := p.run(ctx, paperID, payload, declared)
	recordIngest(ctx, time.Since(start), created, dedup, err)
	return ds, err
}

func (p *Pipeline) run(ctx context.Context, paperID string, payload []byte, declared *coordinate.Bounds) (Dataset, int, int, error) {
	if paperID == "" {
		return Dataset{}, 0, 0, errs.Validationf("paper id must not be empty")
	}
	if declared != nil {
		if err := declared.Validate(); err != nil {
			return Dataset{}, 0, 0, fmt.Errorf("declared bounds: %w", err)
		}
	}

	lines, err := decodePayload(payload, p.cfg.MaxLineBytes)
	if err != nil {
		return Dataset{}, 0, 0, err
	}
	specs := packChunks(lines, p.cfg.ChunkTargetBytes)

	// Bounds are checked before anything is sealed, so a violating chunk
	// aborts the ingestion with nothing to roll back.
	bounds := make([]coordinate.Bounds, len(specs))
	for i, spec := range specs {
		b, err := boundsOf(spec.samples)
		if err != nil {
			return Dataset{}, 0, 0, fmt.Errorf("chunk %d (lines %d-%d): %w", i, spec.firstLine, spec.lastLine, err)
		}
		if declared != nil {
			covered, err := declared.Covers(b)
			if err != nil {
				return Dataset{}, 0, 0, fmt.Errorf("chunk %d (lines %d-%d): %w", i, spec.firstLine, spec.lastLine, err)
			}
			if !covered {
				hash := vault.HashBytes(spec.plaintext)
				return Dataset{}, 0, 0, fmt.Errorf("chunk %d %s: %w: %s outside %s", i, hash, ErrBoundsExceeded, b, *declared)
			}
		}
		bounds[i] = b
	}
	effective, err := unionBounds(bounds)
	if err != nil {
		return Dataset{}, 0, 0, err
	}

	results := make([]sealResult, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers())
	for i, spec := range specs {
		g.Go(func() error {
			chunk, created, err := p.store.Seal(gctx, paperID, spec.plaintext, bounds[i], len(spec.samples))
			if err != nil {
				return fmt.Errorf("chunk %d (lines %d-%d): %w", i, spec.firstLine, spec.lastLine, err)
			}
			results[i] = sealResult{chunk: chunk, created: created}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.rollback(ctx, paperID, results)
		return Dataset{}, 0, 0, err
	}

	var (
		hashes       = make([]string, len(results))
		createdCount int
		dedupCount   int
		totalBytes   int64
	)
	for i, r := range results {
		hashes[i] = r.chunk.Hash
		totalBytes += r.chunk.Size
		if r.created {
			createdCount++
		} else {
			dedupCount++
		}
	}

	ds := Dataset{
		ID:          newDatasetID(),
		PaperID:     paperID,
		Codec:       CodecJSONLv1,
		ChunkHashes: hashes,
		Declared:    effective,
		Effective:   effective,
		Samples:     len(lines),
		Bytes:       totalBytes,
		DedupChunks: dedupCount,
		CreatedAt:   time.Now().UnixMilli(),
	}
	if declared != nil {
		ds.Declared = *declared
	}
	err = p.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return storage.PutJSON(txn, datasetKey(ds.ID), &ds)
	})
	if err != nil {
		p.rollback(ctx, paperID, results)
		return Dataset{}, createdCount, dedupCount, fmt.Errorf("persist dataset manifest: %w", err)
	}

	if dedupCount > 0 {
		p.notifier.Notify(ctx, alert.Event{
			Level:   alert.LevelInfo,
			Kind:    alert.KindDuplicateUpload,
			Message: "ingestion deduplicated previously stored chunks",
			Fields: map[string]string{
				"paper_id":   paperID,
				"dataset_id": ds.ID,
				"dedup":      strconv.Itoa(dedupCount),
				"chunks":     strconv.Itoa(len(specs)),
			},
		})
	}
	p.log.Info("ingested dataset",
		"dataset_id", ds.ID,
		"paper_id", paperID,
		"chunks", len(specs),
		"dedup", dedupCount,
		"samples", ds.Samples,
		"bytes", ds.Bytes,
	)
	return ds, createdCount, dedupCount, nil
}

// rollback discards every chunk this attempt created; dedup hits are
// shared with prior datasets and stay. Runs detached from the caller's
// context so cancellation cannot strand ciphertext.
func (p *Pipeline) rollback(ctx context.Context, paperID string, results []sealResult) {
	var created []string
	for _, r := range results {
		if r.created {
			created = append(created, r.chunk.Hash)
		}
	}
	if len(created) == 0 {
		return
	}
	if err := p.store.Discard(context.WithoutCancel(ctx), paperID, created); err != nil {
		p.log.Error("ingest rollback failed", "paper_id", paperID, "chunks", len(created), "error", err)
		return
	}
	p.log.Warn("rolled back partial ingestion", "paper_id", paperID, "chunks", len(created))
}

// GetDataset loads a dataset manifest by id.
func (p *Pipeline) GetDataset(ctx context.Context, datasetID string) (Dataset, error) {
	return LoadDataset(ctx, p.db, datasetID)
}

// LoadDataset loads a dataset manifest straight from storage, for
// readers that do not hold a pipeline.
func LoadDataset(ctx context.Context, db *storage.DB, datasetID string) (Dataset, error) {
	if datasetID == "" {
		return Dataset{}, errs.Validationf("dataset id must not be empty")
	}
	var ds Dataset
	err := db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		if err := storage.GetJSON(txn, datasetKey(datasetID), &ds); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w %s", ErrDatasetNotFound, datasetID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Dataset{}, err
	}
	return ds, nil
}
