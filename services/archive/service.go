// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package archive is the facade over the versioned, encrypted
// spatio-temporal store.
//
// A Service owns one embedded database plus every component built on it:
// key custody, chunk vault, ingestion pipeline, version lineage,
// statistics ledger, query engine and the background integrity scanner.
// Callers reach papers, versions and chunks only through explicit ids on
// request structs; there is no ambient registry. Every gated operation
// validates its request, then checks the actor's capability before any
// state is read or written.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/alert"
	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/ledger"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	"github.com/deeptimelabs/tesseract/services/archive/query"
	"github.com/deeptimelabs/tesseract/services/archive/scan"
	"github.com/deeptimelabs/tesseract/services/archive/snapshot"
	storage "github.com/deeptimelabs/tesseract/services/archive/storage/badger"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

const dayLayout = "2006-01-02"

// Service is the archive's single entry point. Construct with New, release
// with Close.
//
// Thread Safety: safe for concurrent use. Same-paper ingestions and
// publishes are serialized by a per-paper mutex on top of the storage
// layer's optimistic transactions, so a rollback can never race a sibling
// ingestion's dedup reference.
type Service struct {
	cfg config.Config
	log *logging.Logger

	db       *storage.DB
	keyring  *vault.Keyring
	chunks   *vault.Store
	pipeline *ingest.Pipeline
	papers   *lineage.Store
	stats    *ledger.Ledger
	engine   *query.Engine
	notifier alert.Notifier
	scanner  sweeper

	paperLocks *keyedMutex
	closeOnce  sync.Once
	closeErr   error
}

// sweeper decouples the facade from the scanner so tests can build a
// Service without background sweeps.
type sweeper interface {
	Start(ctx context.Context)
	Stop()
}

// Option adjusts Service construction.
type Option func(*options)

type options struct {
	notifier alert.Notifier
	exporter ledger.Exporter
	scanner  sweeper
}

// WithNotifier replaces the alert notifier built from config.
func WithNotifier(n alert.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithExporter replaces the statistics exporter built from config.
func WithExporter(e ledger.Exporter) Option {
	return func(o *options) { o.exporter = e }
}

// WithScanner replaces the background integrity scanner built from config.
func WithScanner(s sweeper) Option {
	return func(o *options) { o.scanner = s }
}

// New builds a Service from cfg and starts its background work (value-log
// GC and, when enabled, the integrity scanner). The caller owns the
// returned Service and must Close it.
//
// Telemetry is process-wide and is not initialized here; see the
// telemetry package.
func New(ctx context.Context, cfg config.Config, log *logging.Logger, opts ...Option) (*Service, error) {
	if log == nil {
		log = logging.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	storeCfg := storage.Config{
		Path:              cfg.Storage.Path,
		InMemory:          cfg.Storage.InMemory,
		SyncWrites:        cfg.Storage.SyncWrites,
		NumVersionsToKeep: 1,
		GCInterval:        cfg.Storage.GCInterval(),
		GCDiscardRatio:    cfg.Storage.GCDiscardRatio,
		Logger:            log.Slog(),
	}
	db, err := storage.OpenDB(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	svc := &Service{
		cfg:        cfg,
		log:        log.With("component", "archive"),
		db:         db,
		paperLocks: newKeyedMutex(),
	}

	fail := func(err error) (*Service, error) {
		svc.Close()
		return nil, err
	}

	svc.keyring, err = vault.NewKeyring(db, cfg.Vault.RootKeyFile, cfg.Vault.AllowInsecureKeyring, log)
	if err != nil {
		return fail(fmt.Errorf("open keyring: %w", err))
	}
	svc.chunks, err = vault.NewStore(db, svc.keyring, log)
	if err != nil {
		return fail(fmt.Errorf("open vault: %w", err))
	}

	svc.notifier = o.notifier
	if svc.notifier == nil {
		svc.notifier = alert.NewThrottled(
			alert.NewLogNotifier(log),
			cfg.Alerts.EventsPerMinute,
			cfg.Alerts.Burst,
		)
	}

	svc.pipeline, err = ingest.NewPipeline(db, svc.chunks, svc.notifier, cfg.Ingest, log)
	if err != nil {
		return fail(fmt.Errorf("build ingestion pipeline: %w", err))
	}
	svc.papers, err = lineage.NewStore(db, log)
	if err != nil {
		return fail(fmt.Errorf("open lineage store: %w", err))
	}

	exporter := o.exporter
	if exporter == nil {
		exporter, err = buildExporter(cfg.Stats, log)
		if err != nil {
			return fail(fmt.Errorf("build stats exporter: %w", err))
		}
	}
	svc.stats, err = ledger.NewLedger(db, exporter, log)
	if err != nil {
		return fail(fmt.Errorf("open statistics ledger: %w", err))
	}

	svc.engine, err = query.NewEngine(db, svc.papers, svc.chunks, log)
	if err != nil {
		return fail(fmt.Errorf("build query engine: %w", err))
	}

	svc.scanner = o.scanner
	if svc.scanner == nil && cfg.Scan.Enabled {
		sc, err := scan.NewScanner(svc.papers, svc.chunks, svc.notifier, cfg.Scan, log)
		if err != nil {
			return fail(fmt.Errorf("build scanner: %w", err))
		}
		svc.scanner = sc
	}
	if svc.scanner != nil {
		svc.scanner.Start(ctx)
	}

	return svc, nil
}

// buildExporter maps the stats config onto a ledger exporter.
func buildExporter(cfg config.StatsConfig, log *logging.Logger) (ledger.Exporter, error) {
	switch cfg.Exporter {
	case "", "none":
		return ledger.NopExporter{}, nil
	case "influx":
		return ledger.NewInfluxExporter(
			cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket, log)
	default:
		return nil, errs.Validationf("unknown stats exporter %q", cfg.Exporter)
	}
}

// Close stops background work and releases every resource. Safe to call
// more than once.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.scanner != nil {
			s.scanner.Stop()
		}
		if s.stats != nil {
			s.stats.Close()
		}
		if s.keyring != nil {
			s.keyring.Close()
		}
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}

// Pipeline exposes the ingestion pipeline for the watch-folder feeder,
// which needs direct Ingestor access.
func (s *Service) Pipeline() *ingest.Pipeline { return s.pipeline }

// Notifier exposes the alert notifier for components layered on the
// service (watchers).
func (s *Service) Notifier() alert.Notifier { return s.notifier }

// ============================================================================
// Papers and drafts
// ============================================================================

// CreatePaper initializes a paper with a root draft owned by the actor.
func (s *Service) CreatePaper(ctx context.Context, req datatypes.CreatePaperRequest) (datatypes.CreatePaperResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.CreatePaperResponse{}, err
	}
	policy := lineage.Policy(req.Policy)
	if policy == "" {
		policy = lineage.PolicyAuthorOnly
	}
	meta := req.Metadata
	if meta.Title == "" {
		meta.Title = req.Title
	}
	paper, root, err := s.papers.CreatePaper(ctx, req.Actor.ID, req.Title, policy, meta)
	if err != nil {
		return datatypes.CreatePaperResponse{}, err
	}
	return datatypes.CreatePaperResponse{Paper: paper, Root: root}, nil
}

// NewDraft opens a draft version; an empty parent selects the head.
// Authors only.
func (s *Service) NewDraft(ctx context.Context, req datatypes.NewDraftRequest) (lineage.Version, error) {
	if err := req.Validate(); err != nil {
		return lineage.Version{}, err
	}
	paper, err := s.papers.GetPaper(ctx, req.PaperID)
	if err != nil {
		return lineage.Version{}, err
	}
	if err := s.requireOwner(req.Actor, paper, "create drafts"); err != nil {
		return lineage.Version{}, err
	}
	policy := lineage.Policy(req.Policy)
	if policy == "" {
		policy = lineage.PolicyAuthorOnly
	}
	return s.papers.NewDraft(ctx, req.PaperID, req.ParentID, policy, req.Metadata)
}

// SetDraft applies the request's non-zero fields to a draft.
func (s *Service) SetDraft(ctx context.Context, req datatypes.SetDraftRequest) (lineage.Version, error) {
	if err := req.Validate(); err != nil {
		return lineage.Version{}, err
	}
	v, err := s.authorizeVersionOwner(ctx, req.Actor, req.VersionID, "edit drafts")
	if err != nil {
		return lineage.Version{}, err
	}
	if req.DatasetID != "" {
		// The dataset must exist and belong to the same paper.
		ds, err := s.pipeline.GetDataset(ctx, req.DatasetID)
		if err != nil {
			return lineage.Version{}, err
		}
		if ds.PaperID != v.PaperID {
			return lineage.Version{}, errs.Validationf(
				"dataset %s belongs to paper %s, not %s", ds.ID, ds.PaperID, v.PaperID)
		}
		if v, err = s.papers.SetDraftDataset(ctx, req.VersionID, req.DatasetID); err != nil {
			return lineage.Version{}, err
		}
	}
	if req.Policy != "" {
		if v, err = s.papers.SetDraftPolicy(ctx, req.VersionID, lineage.Policy(req.Policy)); err != nil {
			return lineage.Version{}, err
		}
	}
	if req.Metadata != nil {
		if v, err = s.papers.SetDraftMetadata(ctx, req.VersionID, *req.Metadata); err != nil {
			return lineage.Version{}, err
		}
	}
	return v, nil
}

// RebaseDraft re-parents a draft onto the current head after a lost
// publish race.
func (s *Service) RebaseDraft(ctx context.Context, actor datatypes.Actor, versionID string) (lineage.Version, error) {
	if versionID == "" {
		return lineage.Version{}, errs.Validationf("version id must not be empty")
	}
	if _, err := s.authorizeVersionOwner(ctx, actor, versionID, "rebase drafts"); err != nil {
		return lineage.Version{}, err
	}
	return s.papers.RebaseDraft(ctx, versionID)
}

// Publish promotes a draft to the paper's new head. A lost race returns
// ConflictError with the refreshed head attached to the response, so the
// caller can rebase and retry without a second read.
func (s *Service) Publish(ctx context.Context, req datatypes.PublishRequest) (datatypes.PublishResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.PublishResponse{}, err
	}
	v, err := s.authorizeVersionOwner(ctx, req.Actor, req.VersionID, "publish")
	if err != nil {
		return datatypes.PublishResponse{}, err
	}

	unlock := s.paperLocks.Lock(v.PaperID)
	defer unlock()

	published, err := s.papers.Publish(ctx, req.VersionID)
	if err != nil {
		resp := datatypes.PublishResponse{}
		if errors.Is(err, errs.ErrConflict) {
			if head, headErr := s.papers.Head(ctx, v.PaperID); headErr == nil {
				resp.Head = &head
			}
		}
		return resp, err
	}
	return datatypes.PublishResponse{Version: published}, nil
}

// ============================================================================
// Ingestion
// ============================================================================

// Ingest validates, chunks and encrypts one payload for a paper. Authors
// only. Same-paper ingestions are serialized so a failed attempt's
// rollback cannot race a sibling's dedup reference.
func (s *Service) Ingest(ctx context.Context, req datatypes.IngestRequest) (datatypes.IngestResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.IngestResponse{}, err
	}
	paper, err := s.papers.GetPaper(ctx, req.PaperID)
	if err != nil {
		return datatypes.IngestResponse{}, err
	}
	if err := s.requireOwner(req.Actor, paper, "ingest data"); err != nil {
		return datatypes.IngestResponse{}, err
	}

	unlock := s.paperLocks.Lock(req.PaperID)
	defer unlock()

	ds, err := s.pipeline.Ingest(ctx, req.PaperID, req.Payload, req.Declared)
	if err != nil {
		return datatypes.IngestResponse{}, err
	}
	return datatypes.IngestResponse{Dataset: ds}, nil
}

// ============================================================================
// Reads
// ============================================================================

// Fetch decrypts one chunk of a version's dataset after a Download
// capability check, recording an idempotent download statistic.
func (s *Service) Fetch(ctx context.Context, req datatypes.FetchRequest) (datatypes.FetchResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.FetchResponse{}, err
	}
	paper, err := s.papers.GetPaper(ctx, req.PaperID)
	if err != nil {
		return datatypes.FetchResponse{}, err
	}

	var version lineage.Version
	if req.VersionID == "" {
		version, err = s.papers.Head(ctx, req.PaperID)
	} else {
		version, err = s.papers.GetVersion(ctx, req.VersionID)
	}
	if err != nil {
		return datatypes.FetchResponse{}, err
	}
	if version.PaperID != req.PaperID {
		return datatypes.FetchResponse{}, errs.Validationf(
			"version %s belongs to paper %s, not %s", version.ID, version.PaperID, req.PaperID)
	}

	if err := ledger.Check(req.Actor.Viewer(), paper, version, ledger.CapDownload); err != nil {
		return datatypes.FetchResponse{}, err
	}

	if version.DatasetID == "" {
		return datatypes.FetchResponse{}, errs.NotFoundf(
			"version %s carries no dataset", version.ID)
	}
	ds, err := ingest.LoadDataset(ctx, s.db, version.DatasetID)
	if err != nil {
		return datatypes.FetchResponse{}, err
	}
	if !containsHash(ds.ChunkHashes, req.ChunkHash) {
		return datatypes.FetchResponse{}, errs.NotFoundf(
			"chunk %s is not part of version %s", req.ChunkHash, version.ID)
	}

	plaintext, chunk, err := s.chunks.Open(ctx, req.PaperID, req.ChunkHash)
	if err != nil {
		if errors.Is(err, errs.ErrIntegrity) {
			s.notifier.Notify(ctx, alert.Event{
				Level:   alert.LevelCritical,
				Kind:    alert.KindIntegrityFailure,
				Message: "chunk failed authentication on fetch",
				Fields:  map[string]string{"paper_id": req.PaperID, "chunk": req.ChunkHash},
			})
		}
		return datatypes.FetchResponse{}, err
	}

	resp := datatypes.FetchResponse{Plaintext: plaintext, Chunk: chunk}

	// Drafts carry no statistics; published and superseded versions do.
	if version.Readable() {
		counter, counted, err := s.stats.Record(ctx, version, req.Actor.Viewer(), ledger.KindDownload, defaultDay(req.Day))
		if err != nil {
			// The fetch already succeeded; a stats failure is logged,
			// not surfaced.
			s.log.Warn("download stat not recorded",
				"version_id", version.ID, "error", err)
		} else {
			resp.Counter = counter
			resp.Counted = counted
		}
	}
	return resp, nil
}

// Query resolves the selected versions, checks ViewData on each, and
// returns a lazy cursor over matching chunk descriptors. A version the
// viewer may not read fails the whole query before any chunk record is
// touched.
func (s *Service) Query(ctx context.Context, req datatypes.QueryRequest) (*query.Cursor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	paper, err := s.papers.GetPaper(ctx, req.PaperID)
	if err != nil {
		return nil, err
	}

	var selector query.Selector
	var selected []lineage.Version
	switch req.Mode {
	case "head":
		selector = query.Head()
		head, err := s.papers.Head(ctx, req.PaperID)
		if err != nil {
			return nil, err
		}
		selected = []lineage.Version{head}
	case "all":
		selector = query.AllVersions()
		selected, err = s.papers.ListVersions(ctx, req.PaperID)
		if err != nil {
			return nil, err
		}
	case "version":
		selector = query.Version(req.VersionID)
		v, err := s.papers.GetVersion(ctx, req.VersionID)
		if err != nil {
			return nil, err
		}
		if v.PaperID != req.PaperID {
			return nil, errs.Validationf(
				"version %s belongs to paper %s, not %s", v.ID, v.PaperID, req.PaperID)
		}
		selected = []lineage.Version{v}
	}

	viewer := req.Actor.Viewer()
	for _, v := range selected {
		if err := ledger.Check(viewer, paper, v, ledger.CapViewData); err != nil {
			return nil, err
		}
	}

	return s.engine.Run(ctx, query.Request{
		PaperID:  req.PaperID,
		Selector: selector,
		Filter:   query.Filter{Time: req.Time, Space: req.Space},
		After:    req.After,
	})
}

// ============================================================================
// Statistics
// ============================================================================

// RecordView counts a view of a published version, at most once per
// (version, viewer, day).
func (s *Service) RecordView(ctx context.Context, req datatypes.ViewRequest) (datatypes.StatsResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.StatsResponse{}, err
	}
	paper, version, err := s.versionWithPaper(ctx, req.VersionID)
	if err != nil {
		return datatypes.StatsResponse{}, err
	}
	if err := ledger.Check(req.Actor.Viewer(), paper, version, ledger.CapViewMetadata); err != nil {
		return datatypes.StatsResponse{}, err
	}
	counter, counted, err := s.stats.Record(ctx, version, req.Actor.Viewer(), ledger.KindView, defaultDay(req.Day))
	if err != nil {
		return datatypes.StatsResponse{}, err
	}
	summary, err := s.stats.Stats(ctx, req.VersionID)
	if err != nil {
		return datatypes.StatsResponse{}, err
	}
	return datatypes.StatsResponse{Summary: summary, Counter: &counter, Counted: counted}, nil
}

// Stats reads a version's aggregate counters. Requires ViewMetadata.
func (s *Service) Stats(ctx context.Context, req datatypes.StatsRequest) (datatypes.StatsResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.StatsResponse{}, err
	}
	paper, version, err := s.versionWithPaper(ctx, req.VersionID)
	if err != nil {
		return datatypes.StatsResponse{}, err
	}
	if err := ledger.Check(req.Actor.Viewer(), paper, version, ledger.CapViewMetadata); err != nil {
		return datatypes.StatsResponse{}, err
	}
	summary, err := s.stats.Stats(ctx, req.VersionID)
	if err != nil {
		return datatypes.StatsResponse{}, err
	}
	return datatypes.StatsResponse{Summary: summary}, nil
}

// ============================================================================
// Administration
// ============================================================================

// RotateKey rotates a paper's master key and re-wraps every chunk's data
// key under the new version. Owner or admin only.
func (s *Service) RotateKey(ctx context.Context, req datatypes.RotateRequest) (datatypes.RotateResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.RotateResponse{}, err
	}
	paper, err := s.papers.GetPaper(ctx, req.PaperID)
	if err != nil {
		return datatypes.RotateResponse{}, err
	}
	if err := s.requireOwner(req.Actor, paper, "rotate keys"); err != nil {
		return datatypes.RotateResponse{}, err
	}

	unlock := s.paperLocks.Lock(req.PaperID)
	defer unlock()

	rewrapped, err := s.chunks.RotateMasterKey(ctx, req.PaperID)
	if err != nil {
		return datatypes.RotateResponse{}, err
	}
	keyVersion, err := s.keyring.ActiveVersion(ctx, req.PaperID)
	if err != nil {
		return datatypes.RotateResponse{}, err
	}
	return datatypes.RotateResponse{KeyVersion: keyVersion, Rewrapped: rewrapped}, nil
}

// VerifyPaper decrypt-checks every chunk of a paper and re-walks its
// certification chain. Defects are reported as findings, alerted, and do
// not abort the sweep.
func (s *Service) VerifyPaper(ctx context.Context, req datatypes.VerifyRequest) (datatypes.VerifyResponse, error) {
	if err := req.Validate(); err != nil {
		return datatypes.VerifyResponse{}, err
	}
	if _, err := s.papers.GetPaper(ctx, req.PaperID); err != nil {
		return datatypes.VerifyResponse{}, err
	}

	resp := datatypes.VerifyResponse{PaperID: req.PaperID}

	err := s.chunks.ForEach(ctx, req.PaperID, func(c vault.Chunk) error {
		resp.ChunksChecked++
		if verr := s.chunks.Verify(ctx, req.PaperID, c.Hash); verr != nil {
			resp.Findings = append(resp.Findings, datatypes.VerifyFinding{
				Kind:      "chunk",
				ChunkHash: c.Hash,
				Detail:    verr.Error(),
			})
			s.notifier.Notify(ctx, alert.Event{
				Level:   alert.LevelCritical,
				Kind:    alert.KindIntegrityFailure,
				Message: "chunk failed verification",
				Fields:  map[string]string{"paper_id": req.PaperID, "chunk": c.Hash},
			})
		}
		return nil
	})
	if err != nil {
		return resp, err
	}

	chainRes, chainErr := s.papers.VerifyChain(ctx, req.PaperID)
	if chainRes != nil {
		resp.LinksChecked = chainRes.ChainLength
	}
	if chainErr != nil {
		if !errors.Is(chainErr, errs.ErrIntegrity) {
			return resp, chainErr
		}
		resp.Findings = append(resp.Findings, datatypes.VerifyFinding{
			Kind:   "chain",
			Detail: chainErr.Error(),
		})
		s.notifier.Notify(ctx, alert.Event{
			Level:   alert.LevelCritical,
			Kind:    alert.KindChainBroken,
			Message: "certification chain broken",
			Fields:  map[string]string{"paper_id": req.PaperID},
		})
	}
	return resp, nil
}

// Sweep runs one synchronous integrity sweep over every paper,
// independent of the background scanner.
func (s *Service) Sweep(ctx context.Context) (scan.Report, error) {
	sc, err := scan.NewScanner(s.papers, s.chunks, s.notifier, s.cfg.Scan, s.log)
	if err != nil {
		return scan.Report{}, err
	}
	return sc.Sweep(ctx)
}

// Snapshot streams a consistent backup of the whole archive into sink.
func (s *Service) Snapshot(ctx context.Context, sink snapshot.Sink) (snapshot.Manifest, error) {
	snap, err := snapshot.New(s.db, s.log)
	if err != nil {
		return snapshot.Manifest{}, err
	}
	return snap.Export(ctx, sink)
}

// Restore loads a snapshot into this archive. The archive must be empty.
func (s *Service) Restore(ctx context.Context, sink snapshot.Sink, name string) (snapshot.Manifest, error) {
	snap, err := snapshot.New(s.db, s.log)
	if err != nil {
		return snapshot.Manifest{}, err
	}
	return snap.Restore(ctx, sink, name)
}

// ============================================================================
// Operational reads (CLI / TUI)
// ============================================================================

// ListPapers returns every paper in the archive.
func (s *Service) ListPapers(ctx context.Context) ([]lineage.Paper, error) {
	return s.papers.ListPapers(ctx)
}

// ListVersions returns a paper's published lineage, number ascending.
func (s *Service) ListVersions(ctx context.Context, paperID string) ([]lineage.Version, error) {
	return s.papers.ListVersions(ctx, paperID)
}

// ListDrafts returns a paper's open drafts.
func (s *Service) ListDrafts(ctx context.Context, paperID string) ([]lineage.Version, error) {
	return s.papers.ListDrafts(ctx, paperID)
}

// GetPaper returns one paper record.
func (s *Service) GetPaper(ctx context.Context, paperID string) (lineage.Paper, error) {
	return s.papers.GetPaper(ctx, paperID)
}

// Head returns a paper's current head version.
func (s *Service) Head(ctx context.Context, paperID string) (lineage.Version, error) {
	return s.papers.Head(ctx, paperID)
}

// DescribeVersion returns one version together with its dataset manifest
// when it has one.
func (s *Service) DescribeVersion(ctx context.Context, versionID string) (lineage.Version, *ingest.Dataset, error) {
	v, err := s.papers.GetVersion(ctx, versionID)
	if err != nil {
		return lineage.Version{}, nil, err
	}
	if v.DatasetID == "" {
		return v, nil, nil
	}
	ds, err := ingest.LoadDataset(ctx, s.db, v.DatasetID)
	if err != nil {
		return v, nil, err
	}
	return v, &ds, nil
}

// ============================================================================
// Helpers
// ============================================================================

// requireOwner gates write-side operations: paper owner or admin role.
func (s *Service) requireOwner(actor datatypes.Actor, paper lineage.Paper, action string) error {
	viewer := actor.Viewer()
	if viewer.ID == paper.OwnerID || viewer.HasRole(ledger.RoleAdmin) {
		return nil
	}
	return errs.Permissionf("only the owner of paper %s may %s", paper.ID, action)
}

// authorizeVersionOwner loads a version and gates it on paper ownership.
func (s *Service) authorizeVersionOwner(ctx context.Context, actor datatypes.Actor, versionID, action string) (lineage.Version, error) {
	v, err := s.papers.GetVersion(ctx, versionID)
	if err != nil {
		return lineage.Version{}, err
	}
	paper, err := s.papers.GetPaper(ctx, v.PaperID)
	if err != nil {
		return lineage.Version{}, err
	}
	if err := s.requireOwner(actor, paper, action); err != nil {
		return lineage.Version{}, err
	}
	return v, nil
}

// versionWithPaper loads a version and its paper.
func (s *Service) versionWithPaper(ctx context.Context, versionID string) (lineage.Paper, lineage.Version, error) {
	v, err := s.papers.GetVersion(ctx, versionID)
	if err != nil {
		return lineage.Paper{}, lineage.Version{}, err
	}
	paper, err := s.papers.GetPaper(ctx, v.PaperID)
	if err != nil {
		return lineage.Paper{}, lineage.Version{}, err
	}
	return paper, v, nil
}

// defaultDay substitutes today's UTC civil day for an empty day.
func defaultDay(day string) string {
	if day != "" {
		return day
	}
	return time.Now().UTC().Format(dayLayout)
}

func containsHash(hashes []string, hash string) bool {
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}
	return false
}
