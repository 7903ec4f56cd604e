// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scan

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for sweep metrics.
var meter = otel.Meter("tesseract.scan")

// Metric instruments for integrity sweeps.
var (
	sweepTotal    metric.Int64Counter
	sweepDuration metric.Float64Histogram
	findingsTotal metric.Int64Counter

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

		sweepTotal, err = meter.Int64Counter(
			"scan_sweeps_total",
			metric.WithDescription("Total number of integrity sweeps"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sweepDuration, err = meter.Float64Histogram(
			"scan_sweep_duration_seconds",
			metric.WithDescription("Duration of integrity sweeps in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsTotal, err = meter.Int64Counter(
			"scan_findings_total",
			metric.WithDescription("Integrity defects located by sweeps"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSweep records one sweep outcome.
//
// # Inputs
//
//   - ctx: Context for metric recording.
//   - duration: How long the sweep took.
//   - findings: Defects located before the sweep ended.
//   - opErr: Error if the sweep aborted (nil on completion).
func recordSweep(ctx context.Context, duration time.Duration, findings int, opErr error) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "clean"
	switch {
	case opErr != nil:
		status = "error"
	case findings > 0:
		status = "findings"
	}

	attrs := metric.WithAttributes(attribute.String("status", status))
	sweepTotal.Add(ctx, 1, attrs)
	sweepDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordFinding records one located defect by kind.
func recordFinding(ctx context.Context, kind string) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	findingsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
