// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scan re-verifies the archive in the background. Each sweep
// decrypt-checks every stored chunk and re-walks every certification
// chain; anything that no longer authenticates becomes a finding and an
// alert. Findings never abort a sweep, only storage failures do.
package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/services/archive/alert"
	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	"github.com/deeptimelabs/tesseract/services/archive/vault"
)

// Finding is one integrity defect located by a sweep.
type Finding struct {
	PaperID string `json:"paper_id"`
	Hash    string `json:"hash,omitempty"` // failing chunk; empty for chain findings
	Kind    string `json:"kind"`
	Detail  string `json:"detail"`
}

// Report summarizes one sweep.
type Report struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Papers   int           `json:"papers"`
	Chunks   int           `json:"chunks"`
	Findings []Finding     `json:"findings,omitempty"`
}

// Clean reports whether the sweep found nothing wrong.
func (r Report) Clean() bool { return len(r.Findings) == 0 }

// Scanner owns the periodic integrity sweep.
//
// # Description
//
// Start launches a goroutine that sweeps once immediately and then on
// every interval tick. Stop halts it and waits for the in-flight sweep
// to return. Sweep can also be called directly (the CLI's --once path).
//
// # Thread Safety
//
// Safe for concurrent use. Start must only be called once.
type Scanner struct {
	papers   *lineage.Store
	chunks   *vault.Store
	notifier alert.Notifier
	log      *logging.Logger
	cfg      config.ScanConfig

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScanner wires a scanner over the lineage and chunk stores. A nil
// notifier falls back to the structured log; a nil logger falls back to
// the process default.
func NewScanner(papers *lineage.Store, chunks *vault.Store, notifier alert.Notifier, cfg config.ScanConfig, log *logging.Logger) (*Scanner, error) {
	if papers == nil {
		return nil, errors.New("lineage store must not be nil")
	}
	if chunks == nil {
		return nil, errors.New("chunk store must not be nil")
	}
	if log == nil {
		log = logging.Default()
	}
	if notifier == nil {
		notifier = alert.NewLogNotifier(log)
	}
	return &Scanner{
		papers:   papers,
		chunks:   chunks,
		notifier: notifier,
		log:      log,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins periodic sweeps in a goroutine.
func (s *Scanner) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the sweep goroutine to stop and waits for it to finish.
func (s *Scanner) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.doneCh)

	// Sweep once up front so a freshly started archive is verified
	// without waiting out the first interval.
	s.sweepAndLog(ctx)

	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scanner) sweepAndLog(ctx context.Context) {
	report, err := s.Sweep(ctx)
	switch {
	case err != nil:
		s.log.Error("integrity sweep aborted", "error", err)
	case !report.Clean():
		s.log.Warn("integrity sweep found defects",
			"findings", len(report.Findings),
			"papers", report.Papers,
			"chunks", report.Chunks)
	}
}

// Sweep verifies every chunk and every certification chain once.
//
// Failed verifications become Report findings and alerts; they do not
// fail the sweep. The returned error covers the sweep machinery itself:
// storage failures and context cancellation.
func (s *Scanner) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{Started: start.UTC()}

	papers, err := s.papers.ListPapers(ctx)
	if err != nil {
		recordSweep(ctx, time.Since(start), 0, err)
		return report, fmt.Errorf("list papers: %w", err)
	}
	report.Papers = len(papers)

	for _, paper := range papers {
		if err := s.sweepPaper(ctx, paper.ID, &report); err != nil {
			recordSweep(ctx, time.Since(start), len(report.Findings), err)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	recordSweep(ctx, report.Duration, len(report.Findings), nil)
	if report.Clean() {
		s.log.Info("integrity sweep clean",
			"papers", report.Papers,
			"chunks", report.Chunks,
			"duration_ms", report.Duration.Milliseconds())
	}
	return report, nil
}

func (s *Scanner) sweepPaper(ctx context.Context, paperID string, report *Report) error {
	if _, err := s.papers.VerifyChain(ctx, paperID); err != nil {
		if !errors.Is(err, errs.ErrIntegrity) {
			return fmt.Errorf("verify chain of paper %s: %w", paperID, err)
		}
		s.finding(ctx, report, Finding{
			PaperID: paperID,
			Kind:    alert.KindChainBroken,
			Detail:  err.Error(),
		})
	}

	var chunks []vault.Chunk
	err := s.chunks.ForEach(ctx, paperID, func(c vault.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return fmt.Errorf("list chunks of paper %s: %w", paperID, err)
	}
	report.Chunks += len(chunks)

	// Integrity failures land in results; anything else aborts the group.
	results := make([]error, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, chunk := range chunks {
		g.Go(func() error {
			err := s.chunks.Verify(gctx, paperID, chunk.Hash)
			if err != nil && !errors.Is(err, errs.ErrIntegrity) {
				return fmt.Errorf("chunk %s: %w", chunk.Hash, err)
			}
			results[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("paper %s: %w", paperID, err)
	}

	for i, verr := range results {
		if verr == nil {
			continue
		}
		s.finding(ctx, report, Finding{
			PaperID: paperID,
			Hash:    chunks[i].Hash,
			Kind:    alert.KindIntegrityFailure,
			Detail:  verr.Error(),
		})
	}
	return nil
}

// finding records one defect and pushes it to the alert channel.
func (s *Scanner) finding(ctx context.Context, report *Report, f Finding) {
	report.Findings = append(report.Findings, f)
	fields := map[string]string{"paper_id": f.PaperID}
	if f.Hash != "" {
		fields["hash"] = f.Hash
	}
	s.notifier.Notify(ctx, alert.Event{
		Level:   alert.LevelCritical,
		Kind:    f.Kind,
		Message: f.Detail,
		Fields:  fields,
	})
	recordFinding(ctx, f.Kind)
}

func (s *Scanner) workers() int {
	if s.cfg.Parallelism < 1 {
		return 1
	}
	return s.cfg.Parallelism
}

func (s *Scanner) interval() time.Duration {
	if s.cfg.IntervalSec < 1 {
		return time.Hour
	}
	return s.cfg.Interval()
}
