// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package vault

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for chunk store metrics.
var meter = otel.Meter("tesseract.vault")

// Metric instruments for vault operations.
var (
	sealTotal          metric.Int64Counter
	sealBytes          metric.Int64Histogram
	sealDuration       metric.Float64Histogram
	openTotal          metric.Int64Counter
	integrityFailTotal metric.Int64Counter
	discardTotal       metric.Int64Counter
	rotationTotal      metric.Int64Counter
	rotationRewrapped  metric.Int64Histogram

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

		sealTotal, err = meter.Int64Counter(
			"vault_seal_total",
			metric.WithDescription("Total number of chunk seal operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sealBytes, err = meter.Int64Histogram(
			"vault_seal_bytes",
			metric.WithDescription("Plaintext size of newly sealed chunks in bytes"),
			metric.WithUnit("By"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sealDuration, err = meter.Float64Histogram(
			"vault_seal_duration_seconds",
			metric.WithDescription("Duration of chunk seal operations in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		openTotal, err = meter.Int64Counter(
			"vault_open_total",
			metric.WithDescription("Total number of successful chunk decryptions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		integrityFailTotal, err = meter.Int64Counter(
			"vault_integrity_failures_total",
			metric.WithDescription("Total number of chunks that failed an integrity check"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		discardTotal, err = meter.Int64Counter(
			"vault_discard_total",
			metric.WithDescription("Total number of chunks discarded by ingestion rollback"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rotationTotal, err = meter.Int64Counter(
			"vault_rotation_total",
			metric.WithDescription("Total number of completed master key rotations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rotationRewrapped, err = meter.Int64Histogram(
			"vault_rotation_chunks_rewrapped",
			metric.WithDescription("Number of chunk keys re-wrapped per rotation"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSeal records one seal operation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the seal took.
//   - size: Plaintext size in bytes.
//   - created: Whether a new chunk was written (false means dedup hit).
//   - opErr: Error if the seal failed (nil on success).
func recordSeal(ctx context.Context, duration time.Duration, size int, created bool, opErr error) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "dedup"
	if created {
		status = "created"
	}
	if opErr != nil {
		status = "error"
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	sealTotal.Add(ctx, 1, attrs)
	sealDuration.Record(ctx, duration.Seconds(), attrs)
	if opErr == nil && created {
		sealBytes.Record(ctx, int64(size))
	}
}

// recordOpen records one successful chunk decryption.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func recordOpen(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	openTotal.Add(ctx, 1)
}

// recordIntegrityFailure records a chunk that failed an integrity check.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - stage: Which check failed (unwrap, authenticate, hash).
func recordIntegrityFailure(ctx context.Context, stage string) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	integrityFailTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", normalizeStage(stage)),
	))
}

// normalizeStage normalizes integrity failure stages to a bounded set.
func normalizeStage(stage string) string {
	switch stage {
	case "unwrap", "authenticate", "hash":
		return stage
	default:
		return "other"
	}
}

// recordDiscard records one chunk removal.
//
// # Inputs
//
//   - ctx: Context for metric recording.
func recordDiscard(ctx context.Context) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	discardTotal.Add(ctx, 1)
}

// recordRotation records one completed master key rotation.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - rewrapped: How many chunk keys were re-wrapped.
func recordRotation(ctx context.Context, rewrapped int) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	rotationTotal.Add(ctx, 1)
	rotationRewrapped.Record(ctx, int64(rewrapped))
}
