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
	"github.com/deeptimelabs/tesseract/services/archive/watch"
)

// runIngest ingests one payload, or watches a drop folder under --watch.
func runIngest(cmd *cobra.Command, args []string) {
	if ingestWatchDir != "" {
		runIngestWatch(cmd)
		return
	}

	if len(args) < 1 {
		OutputError(jsonOutput, "bad arguments", fmt.Errorf("ingest needs a paper id (or --watch)"))
		exit(CLIExitError)
	}
	paperID := args[0]
	source := ""
	if len(args) > 1 {
		source = args[1]
	}

	declared, err := declaredBounds(cmd)
	if err != nil {
		OutputError(jsonOutput, "bad bounds", err)
		exit(CLIExitError)
	}
	payload, err := readPayload(source)
	if err != nil {
		OutputError(jsonOutput, "read payload", err)
		exit(CLIExitError)
	}

	withService("ingest", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		var resp datatypes.IngestResponse
		err := ux.WithSpinner("Ingesting payload", func() error {
			var err error
			resp, err = svc.Ingest(ctx, datatypes.IngestRequest{
				Actor:    actor(),
				PaperID:  paperID,
				Payload:  payload,
				Declared: declared,
			})
			return err
		})
		if err != nil {
			return nil, false, err
		}
		ds := resp.Dataset
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Ingested dataset %s", ds.ID))
			ux.Field("samples", fmt.Sprintf("%d", ds.Samples))
			ux.Field("chunks", fmt.Sprintf("%d (%d deduplicated)", len(ds.ChunkHashes), ds.DedupChunks))
			ux.Field("extent", ds.Effective.String())
		}
		return resp, false, nil
	})
}

// runIngestWatch feeds a drop folder into the pipeline until interrupted.
func runIngestWatch(cmd *cobra.Command) {
	if ingestPaperFlag == "" {
		OutputError(jsonOutput, "bad arguments", fmt.Errorf("--watch needs --paper"))
		exit(CLIExitError)
	}

	withService("ingest watch", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		watcher, err := watch.NewWatcher(ingestWatchDir, ingestPaperFlag, svc.Pipeline(), svc.Notifier(), appLog)
		if err != nil {
			return nil, false, err
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if !jsonOutput && !quietOutput {
			ux.Info(fmt.Sprintf("Watching %s for *.jsonl payloads (ctrl-c to stop)", ingestWatchDir))
		}
		if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
			return nil, false, err
		}
		_ = watcher.Stop()
		return map[string]string{"watched": ingestWatchDir}, false, nil
	})
}
