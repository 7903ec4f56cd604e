// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package alert delivers out-of-band operational events: integrity
// failures, duplicate uploads, scan findings. Delivery is best effort
// and never fails the operation that raised the event.
package alert

import (
	"context"
	"sort"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/deeptimelabs/tesseract/pkg/logging"
)

// Level grades an event's urgency.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Well-known event kinds raised by the archive.
const (
	KindDuplicateUpload  = "duplicate_upload"
	KindIntegrityFailure = "integrity_failure"
	KindChainBroken      = "chain_broken"
	KindScanFailure      = "scan_failure"
	KindIngestFailure    = "ingest_failure"
)

// Event is one alertable occurrence. Fields carry identifying context
// (paper id, chunk hash) for the receiving channel.
type Event struct {
	Level   Level             `json:"level"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Notifier delivers events out of band. Implementations must be safe for
// concurrent use and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the structured log.
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier builds a notifier over log; nil falls back to the
// process default.
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	args := []any{"kind", event.Kind}
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, k, event.Fields[k])
	}
	switch event.Level {
	case LevelCritical:
		n.log.Error(event.Message, args...)
	case LevelWarning:
		n.log.Warn(event.Message, args...)
	default:
		n.log.Info(event.Message, args...)
	}
}

// Throttled wraps a Notifier with a token bucket so an alert storm (a
// corrupted store failing every read) cannot flood the channel. Events
// over the limit are dropped and counted.
type Throttled struct {
	next    Notifier
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewThrottled limits next to eventsPerMinute with the given burst.
// Non-positive inputs fall back to one event per second, burst 1.
func NewThrottled(next Notifier, eventsPerMinute float64, burst int) *Throttled {
	if eventsPerMinute <= 0 {
		eventsPerMinute = 60
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(eventsPerMinute/60.0), burst),
	}
}

func (t *Throttled) Notify(ctx context.Context, event Event) {
	if !t.limiter.Allow() {
		t.dropped.Add(1)
		return
	}
	t.next.Notify(ctx, event)
}

// Dropped reports how many events the throttle has discarded.
func (t *Throttled) Dropped() int64 {
	return t.dropped.Load()
}
