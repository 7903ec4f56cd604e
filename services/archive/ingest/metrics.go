// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/deeptimelabs/tesseract/services/archive/errs"
)

// Package-level meter for ingestion metrics.
var meter = otel.Meter("tesseract.ingest")

// Metric instruments for ingestion operations.
var (
	ingestTotal    metric.Int64Counter
	ingestDuration metric.Float64Histogram
	ingestChunks   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
// Set by the archive service on initialization.
//
// Thread Safety: Uses atomic operations for safe concurrent access.
var metricsEnabled atomic.Bool

func init() {
	metricsEnabled.Store(true)
}

// SetMetricsEnabled controls whether metrics are recorded.
//
// Thread Safety: Safe for concurrent use.
func SetMetricsEnabled(enabled bool) {
	metricsEnabled.Store(enabled)
}

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		ingestTotal, err = meter.Int64Counter(
			"ingest_total",
			metric.WithDescription("Total number of ingestion attempts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		ingestDuration, err = meter.Float64Histogram(
			"ingest_duration_seconds",
			metric.WithDescription("Duration of ingestion attempts in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		ingestChunks, err = meter.Int64Counter(
			"ingest_chunks_total",
			metric.WithDescription("Chunks processed by successful ingestions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordIngest records one ingestion attempt.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the attempt took.
//   - created: Newly sealed chunks (successful attempts only).
//   - dedup: Chunks that were dedup hits.
//   - opErr: Error if the attempt failed (nil on success).
func recordIngest(ctx context.Context, duration time.Duration, created, dedup int, opErr error) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	switch {
	case errors.Is(opErr, errs.ErrValidation):
		status = "validation"
	case opErr != nil:
		status = "error"
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	ingestTotal.Add(ctx, 1, attrs)
	ingestDuration.Record(ctx, duration.Seconds(), attrs)
	if opErr == nil {
		ingestChunks.Add(ctx, int64(created), metric.WithAttributes(attribute.String("result", "created")))
		ingestChunks.Add(ctx, int64(dedup), metric.WithAttributes(attribute.String("result", "dedup")))
	}
}
