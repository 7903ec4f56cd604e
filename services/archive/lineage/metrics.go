// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package lineage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for lineage metrics.
var meter = otel.Meter("tesseract.lineage")

// Metric instruments. Publish is the one contended operation of the whole
// archive, so its win/conflict split is worth watching.
var (
	publishTotal     metric.Int64Counter
	chainVerifyTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// metricsEnabled controls whether metrics are recorded.
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

		publishTotal, err = meter.Int64Counter(
			"lineage_publish_total",
			metric.WithDescription("Total number of publish attempts by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		chainVerifyTotal, err = meter.Int64Counter(
			"lineage_chain_verify_total",
			metric.WithDescription("Total number of certification chain verifications by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPublish records one publish attempt.
func recordPublish(ctx context.Context, opErr error) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	status := "success"
	switch {
	case errors.Is(opErr, ErrHeadMoved):
		status = "conflict"
	case opErr != nil:
		status = "error"
	}

	publishTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// recordChainVerify records one chain verification.
func recordChainVerify(ctx context.Context, valid bool) {
	if !metricsEnabled.Load() {
		return
	}
	if err := initMetrics(); err != nil {
		return
	}

	result := "valid"
	if !valid {
		result = "broken"
	}

	chainVerifyTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
