// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSpinnerStartStopPlain verifies the spinner lifecycle in plain mode,
// where no animation goroutine runs.
func TestSpinnerStartStopPlain(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	s := NewSpinner("working")
	s.Start()
	s.Start() // double start is a no-op
	s.UpdateMessage("still working")
	s.Stop()
	s.Stop() // double stop is a no-op
}

// TestWithSpinnerPropagatesError verifies the wrapped function's error
// comes back to the caller.
func TestWithSpinnerPropagatesError(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	sentinel := errors.New("boom")
	err := WithSpinner("task", func() error { return sentinel })
	require.ErrorIs(t, err, sentinel)

	err = WithSpinner("task", func() error { return nil })
	assert.NoError(t, err)
}

// TestProgressSpinnerCounts verifies increment and set both advance the
// counter.
func TestProgressSpinnerCounts(t *testing.T) {
	orig := Plain()
	defer SetPlain(orig)
	SetPlain(true)

	p := NewProgressSpinner("ingest", 5)
	p.Increment()
	p.Increment()
	assert.Equal(t, 2, p.current)

	p.SetProgress(4)
	assert.Equal(t, 4, p.current)
}
