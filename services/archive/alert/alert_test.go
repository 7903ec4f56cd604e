// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package alert

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Notify(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	n.Notify(context.Background(), Event{
		Level:   LevelWarning,
		Kind:    KindDuplicateUpload,
		Message: "duplicate chunk upload",
		Fields:  map[string]string{"paper_id": "paper-1", "hash": "abc"},
	})
	n.Notify(context.Background(), Event{Level: LevelCritical, Kind: KindIntegrityFailure, Message: "chunk failed authentication"})
	n.Notify(context.Background(), Event{Message: "no level, no fields"})
}

func TestThrottled_DropsOverBurst(t *testing.T) {
	capture := &captureNotifier{}
	throttled := NewThrottled(capture, 0.0001, 3)

	for i := 0; i < 10; i++ {
		throttled.Notify(context.Background(), Event{Kind: KindScanFailure, Message: "sweep found a bad chunk"})
	}

	assert.Equal(t, 3, capture.count())
	assert.Equal(t, int64(7), throttled.Dropped())
}

func TestThrottled_Defaults(t *testing.T) {
	capture := &captureNotifier{}
	throttled := NewThrottled(capture, 0, 0)

	throttled.Notify(context.Background(), Event{Message: "first"})
	assert.Equal(t, 1, capture.count())
}
