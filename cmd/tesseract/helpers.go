// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/coordinate"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
)

// exit flushes telemetry and logs before terminating, since os.Exit skips
// deferred functions in main.
func exit(code int) {
	if telemetryShutdown != nil {
		_ = telemetryShutdown(context.Background())
		telemetryShutdown = nil
	}
	if appLog != nil {
		_ = appLog.Close()
	}
	os.Exit(code)
}

func outputCfg() OutputConfig {
	return OutputConfig{JSON: jsonOutput, Quiet: quietOutput}
}

// actor resolves the acting viewer from the global flags, falling back to
// the OS user.
func actor() datatypes.Actor {
	id := viewerID
	if id == "" {
		id = os.Getenv("USER")
	}
	if id == "" {
		id = "anonymous"
	}
	return datatypes.Actor{ID: id, Roles: viewerRoles}
}

// withService opens the archive, runs fn, and turns its outcome into an
// exit code. Never returns.
func withService(name string, fn func(ctx context.Context, svc *archive.Service) (interface{}, bool, error)) {
	start := time.Now()
	ctx := context.Background()

	svc, err := archive.New(ctx, config.Global, appLog)
	if err != nil {
		exit(OutputResult(outputCfg(), name, start, nil, false, err))
	}

	data, findings, err := fn(ctx, svc)
	if closeErr := svc.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	exit(OutputResult(outputCfg(), name, start, data, findings, err))
}

// readPayload reads a whole payload from a file path, or stdin for "-" or
// an empty argument.
func readPayload(arg string) ([]byte, error) {
	if arg == "" || arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}

// parseVec parses "x,y,z" into three floats.
func parseVec(s string) (x, y, z float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected x,y,z, got %q", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("coordinate %q: %w", p, err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

// timeWindow builds a Range from the --t0/--t1 flags, or nil when neither
// was given.
func timeWindow(cmd *cobra.Command) (*coordinate.Range, error) {
	if !cmd.Flags().Changed("t0") && !cmd.Flags().Changed("t1") {
		return nil, nil
	}
	if !cmd.Flags().Changed("t0") || !cmd.Flags().Changed("t1") {
		return nil, fmt.Errorf("--t0 and --t1 must be given together")
	}
	calendar := coordinate.Calendar(boundsCalendar)
	start, err := coordinate.NewTemporal(boundsT0, calendar)
	if err != nil {
		return nil, err
	}
	end, err := coordinate.NewTemporal(boundsT1, calendar)
	if err != nil {
		return nil, err
	}
	rng, err := coordinate.NewRange(start, end)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}

// spaceWindow builds a Box from the --min/--max flags, or nil when
// neither was given.
func spaceWindow(cmd *cobra.Command) (*coordinate.Box, error) {
	if boundsMin == "" && boundsMax == "" {
		return nil, nil
	}
	if boundsMin == "" || boundsMax == "" {
		return nil, fmt.Errorf("--min and --max must be given together")
	}
	x0, y0, z0, err := parseVec(boundsMin)
	if err != nil {
		return nil, fmt.Errorf("--min: %w", err)
	}
	x1, y1, z1, err := parseVec(boundsMax)
	if err != nil {
		return nil, fmt.Errorf("--max: %w", err)
	}
	frame := coordinate.Frame(boundsFrame)
	lo, err := coordinate.NewSpatial(x0, y0, z0, frame)
	if err != nil {
		return nil, err
	}
	hi, err := coordinate.NewSpatial(x1, y1, z1, frame)
	if err != nil {
		return nil, err
	}
	box, err := coordinate.NewBox(lo, hi)
	if err != nil {
		return nil, err
	}
	return &box, nil
}

// declaredBounds builds the declared extent for an ingestion, or nil
// under --derive-bounds (or when no bounds flags were given).
func declaredBounds(cmd *cobra.Command) (*coordinate.Bounds, error) {
	rng, err := timeWindow(cmd)
	if err != nil {
		return nil, err
	}
	box, err := spaceWindow(cmd)
	if err != nil {
		return nil, err
	}
	if deriveBounds || (rng == nil && box == nil) {
		return nil, nil
	}
	if rng == nil || box == nil {
		return nil, fmt.Errorf("a declared extent needs --t0/--t1 and --min/--max; use --derive-bounds to skip it")
	}
	bounds, err := coordinate.NewBounds(*rng, *box)
	if err != nil {
		return nil, err
	}
	return &bounds, nil
}
