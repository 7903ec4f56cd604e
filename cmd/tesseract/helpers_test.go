// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
)

// boundsCmd builds a throwaway command carrying the shared bounds flags.
func boundsTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	boundsT0, boundsT1 = 0, 0
	boundsMin, boundsMax = "", ""
	boundsCalendar = "proleptic_gregorian"
	boundsFrame = "site_local"
	deriveBounds = false

	cmd := &cobra.Command{Use: "test", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().Int64Var(&boundsT0, "t0", 0, "")
	cmd.Flags().Int64Var(&boundsT1, "t1", 0, "")
	cmd.Flags().StringVar(&boundsMin, "min", "", "")
	cmd.Flags().StringVar(&boundsMax, "max", "", "")
	cmd.Flags().BoolVar(&deriveBounds, "derive-bounds", false, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

// TestParseVec parses coordinate triples.
func TestParseVec(t *testing.T) {
	x, y, z, err := parseVec("1.5, -2, 3")
	require.NoError(t, err)
	assert.Equal(t, 1.5, x)
	assert.Equal(t, -2.0, y)
	assert.Equal(t, 3.0, z)

	_, _, _, err = parseVec("1,2")
	assert.Error(t, err)

	_, _, _, err = parseVec("a,b,c")
	assert.Error(t, err)
}

// TestTimeWindow requires both endpoints and orders them.
func TestTimeWindow(t *testing.T) {
	cmd := boundsTestCmd(t)
	rng, err := timeWindow(cmd)
	require.NoError(t, err)
	assert.Nil(t, rng)

	cmd = boundsTestCmd(t, "--t0=-1000", "--t1=0")
	rng, err = timeWindow(cmd)
	require.NoError(t, err)
	require.NotNil(t, rng)
	assert.Equal(t, int64(-1000), rng.Start.Days)
	assert.Equal(t, coordinate.CalendarGregorian, rng.Start.Calendar)

	cmd = boundsTestCmd(t, "--t0=5")
	_, err = timeWindow(cmd)
	assert.Error(t, err)
}

// TestDeclaredBounds needs both windows unless deriving.
func TestDeclaredBounds(t *testing.T) {
	cmd := boundsTestCmd(t)
	bounds, err := declaredBounds(cmd)
	require.NoError(t, err)
	assert.Nil(t, bounds)

	cmd = boundsTestCmd(t, "--t0=-10", "--t1=10", "--min=0,0,0", "--max=1,1,1")
	bounds, err = declaredBounds(cmd)
	require.NoError(t, err)
	require.NotNil(t, bounds)

	cmd = boundsTestCmd(t, "--t0=-10", "--t1=10")
	_, err = declaredBounds(cmd)
	assert.Error(t, err)

	cmd = boundsTestCmd(t, "--t0=-10", "--t1=10", "--derive-bounds")
	bounds, err = declaredBounds(cmd)
	require.NoError(t, err)
	assert.Nil(t, bounds)
}

// TestActorFallback falls back to the OS user, then "anonymous".
func TestActorFallback(t *testing.T) {
	viewerID = "curator-7"
	viewerRoles = []string{"admin"}
	a := actor()
	assert.Equal(t, "curator-7", a.ID)
	assert.Equal(t, []string{"admin"}, a.Roles)

	viewerID = ""
	viewerRoles = nil
	t.Setenv("USER", "")
	a = actor()
	assert.Equal(t, "anonymous", a.ID)
}

// TestCommandTree checks the top-level command wiring.
func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"paper", "ingest", "draft", "publish", "query", "fetch",
		"view", "stats", "verify", "keys", "scan", "snapshot", "browse",
	} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
