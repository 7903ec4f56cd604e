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
	"os"

	"github.com/spf13/cobra"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
)

// runQuery walks a paper's chunks across the selected versions and windows.
func runQuery(cmd *cobra.Command, args []string) {
	paperID := args[0]

	mode, versionID := "head", ""
	switch queryVersions {
	case "head":
	case "all":
		mode = "all"
	default:
		mode, versionID = "version", queryVersions
	}

	timeFilter, err := timeWindow(cmd)
	if err != nil {
		OutputError(jsonOutput, "bad time window", err)
		exit(CLIExitError)
	}
	spaceFilter, err := spaceWindow(cmd)
	if err != nil {
		OutputError(jsonOutput, "bad spatial window", err)
		exit(CLIExitError)
	}

	withService("query", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		cursor, err := svc.Query(ctx, datatypes.QueryRequest{
			Actor:     actor(),
			PaperID:   paperID,
			Mode:      mode,
			VersionID: versionID,
			Time:      timeFilter,
			Space:     spaceFilter,
			After:     queryAfter,
		})
		if err != nil {
			return nil, false, err
		}
		items, err := cursor.Collect(ctx)
		if err != nil {
			return nil, false, err
		}

		result := QueryResultOutput{
			PaperID:  paperID,
			Count:    len(items),
			Position: cursor.Position(),
		}
		for _, item := range items {
			result.Items = append(result.Items, QueryItemResult{
				VersionID:     item.VersionID,
				VersionNumber: item.Number,
				ChunkHash:     item.Chunk.Hash,
				Size:          item.Chunk.Size,
				Samples:       item.Chunk.Samples,
				Bounds:        item.Chunk.Bounds.String(),
			})
		}

		if !jsonOutput && !quietOutput {
			if len(items) == 0 {
				ux.Info("No chunks matched")
			}
			for _, row := range result.Items {
				fmt.Printf("v%-3d %s  %7d bytes  %5d samples  %s\n",
					row.VersionNumber, row.ChunkHash, row.Size, row.Samples, row.Bounds)
			}
		}
		return result, false, nil
	})
}

// runFetch decrypts one chunk to stdout or a file.
func runFetch(cmd *cobra.Command, args []string) {
	paperID, chunkHash := args[0], args[1]

	withService("fetch", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		resp, err := svc.Fetch(ctx, datatypes.FetchRequest{
			Actor:     actor(),
			PaperID:   paperID,
			VersionID: fetchVersion,
			ChunkHash: chunkHash,
		})
		if err != nil {
			return nil, false, err
		}

		if fetchOutput != "" {
			if err := os.WriteFile(fetchOutput, resp.Plaintext, 0o600); err != nil {
				return nil, false, fmt.Errorf("write %s: %w", fetchOutput, err)
			}
			if !jsonOutput && !quietOutput {
				ux.Success(fmt.Sprintf("Wrote %d bytes to %s", len(resp.Plaintext), fetchOutput))
			}
		} else if !jsonOutput && !quietOutput {
			os.Stdout.Write(resp.Plaintext)
		}

		// The JSON path reports the chunk descriptor, not the payload.
		return map[string]interface{}{
			"chunk":   resp.Chunk,
			"bytes":   len(resp.Plaintext),
			"counted": resp.Counted,
		}, false, nil
	})
}
