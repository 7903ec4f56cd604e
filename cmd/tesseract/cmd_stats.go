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

	"github.com/spf13/cobra"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
)

// runView records one view of a published version.
func runView(cmd *cobra.Command, args []string) {
	versionID := args[0]
	withService("view", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		resp, err := svc.RecordView(ctx, datatypes.ViewRequest{
			Actor:     actor(),
			VersionID: versionID,
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			if resp.Counted {
				ux.Success(fmt.Sprintf("View recorded (%d total)", resp.Summary.Views.Count))
			} else {
				ux.Info(fmt.Sprintf("Already counted today (%d total)", resp.Summary.Views.Count))
			}
		}
		return resp, false, nil
	})
}

// runStats prints a version's counters.
func runStats(cmd *cobra.Command, args []string) {
	versionID := args[0]
	withService("stats", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		resp, err := svc.Stats(ctx, datatypes.StatsRequest{
			Actor:     actor(),
			VersionID: versionID,
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Title(fmt.Sprintf("Statistics for %s", versionID))
			ux.Field("views", fmt.Sprintf("%d", resp.Summary.Views.Count))
			ux.Field("downloads", fmt.Sprintf("%d", resp.Summary.Downloads.Count))
			if resp.Summary.Views.LastDay != "" {
				ux.Field("last viewed", resp.Summary.Views.LastDay)
			}
		}
		return resp, false, nil
	})
}
