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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
	"github.com/deeptimelabs/tesseract/services/archive/snapshot"
)

// runVerify sweeps one paper's chunks and certification chain. Findings
// set exit code 1.
func runVerify(cmd *cobra.Command, args []string) {
	paperID := args[0]
	withService("verify", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		var resp datatypes.VerifyResponse
		err := ux.WithSpinner("Verifying paper", func() error {
			var err error
			resp, err = svc.VerifyPaper(ctx, datatypes.VerifyRequest{PaperID: paperID})
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			if resp.Clean() {
				ux.Success(fmt.Sprintf("Verified %d chunks and %d chain links",
					resp.ChunksChecked, resp.LinksChecked))
			} else {
				ux.Error(fmt.Sprintf("%d findings", len(resp.Findings)))
				for _, f := range resp.Findings {
					if f.ChunkHash != "" {
						fmt.Printf("  %-5s %s  %s\n", f.Kind, f.ChunkHash, f.Detail)
					} else {
						fmt.Printf("  %-5s %s\n", f.Kind, f.Detail)
					}
				}
			}
		}
		return resp, !resp.Clean(), nil
	})
}

// runKeysRotate rotates a paper's master key.
func runKeysRotate(cmd *cobra.Command, args []string) {
	paperID := args[0]
	withService("keys rotate", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		var resp datatypes.RotateResponse
		err := ux.WithSpinner("Rotating master key", func() error {
			var err error
			resp, err = svc.RotateKey(ctx, datatypes.RotateRequest{Actor: actor(), PaperID: paperID})
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Rotated to key version %d (%d chunks re-wrapped)",
				resp.KeyVersion, resp.Rewrapped))
		}
		return resp, false, nil
	})
}

// runScan runs the archive-wide integrity sweep: once with --once,
// otherwise on the configured schedule until interrupted.
func runScan(cmd *cobra.Command, args []string) {
	withService("scan", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		if scanOnce {
			report, err := svc.Sweep(ctx)
			if err != nil {
				return nil, false, err
			}
			if !jsonOutput && !quietOutput {
				if report.Clean() {
					ux.Success(fmt.Sprintf("Scanned %d papers, %d chunks: clean",
						report.Papers, report.Chunks))
				} else {
					ux.Error(fmt.Sprintf("%d findings", len(report.Findings)))
				}
			}
			return report, !report.Clean(), nil
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		if !jsonOutput && !quietOutput {
			ux.Info("Scanning on the configured schedule (ctrl-c to stop)")
		}
		<-ctx.Done()
		return map[string]string{"stopped": "interrupt"}, false, nil
	})
}

// snapshotSink builds the sink selected by the --dir/--gcs flags.
func snapshotSink(ctx context.Context) (snapshot.Sink, error) {
	switch {
	case snapshotDir != "" && snapshotGCSBucket != "":
		return nil, fmt.Errorf("--dir and --gcs are mutually exclusive")
	case snapshotDir != "":
		return snapshot.NewDirSink(snapshotDir)
	case snapshotGCSBucket != "":
		return snapshot.NewGCSSink(ctx, snapshotGCSBucket, snapshotGCSPrefix, "")
	default:
		return nil, fmt.Errorf("a snapshot destination is required: --dir or --gcs")
	}
}

// runSnapshotExport streams a consistent backup to the selected sink.
func runSnapshotExport(cmd *cobra.Command, args []string) {
	withService("snapshot export", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		sink, err := snapshotSink(ctx)
		if err != nil {
			return nil, false, err
		}
		var manifest snapshot.Manifest
		err = ux.WithSpinner("Exporting snapshot", func() error {
			var err error
			manifest, err = svc.Snapshot(ctx, sink)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Exported snapshot %s (%d bytes)", manifest.Name, manifest.Bytes))
		}
		return manifest, false, nil
	})
}

// runSnapshotRestore loads a snapshot into an empty archive.
func runSnapshotRestore(cmd *cobra.Command, args []string) {
	name := args[0]
	withService("snapshot restore", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		sink, err := snapshotSink(ctx)
		if err != nil {
			return nil, false, err
		}
		var manifest snapshot.Manifest
		err = ux.WithSpinner("Restoring snapshot", func() error {
			var err error
			manifest, err = svc.Restore(ctx, sink, name)
			return err
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Restored snapshot %s", manifest.Name))
		}
		return manifest, false, nil
	})
}
