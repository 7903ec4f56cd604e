// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	jsonOutput  bool
	quietOutput bool
	viewerID    string
	viewerRoles []string

	// paper create
	paperTitle       string
	paperPolicy      string
	paperAbstract    string
	paperAuthors     []string
	paperInteractive bool

	// ingest
	ingestWatchDir  string
	ingestPaperFlag string
	boundsT0        int64
	boundsT1        int64
	boundsMin       string
	boundsMax       string
	boundsCalendar  string
	boundsFrame     string
	deriveBounds    bool

	// draft
	draftParent  string
	draftDataset string
	draftPolicy  string
	draftTitle   string
	draftReason  string

	// publish
	publishRetries int

	// query
	queryVersions string
	queryAfter    string

	// fetch
	fetchVersion string
	fetchOutput  string

	// scan
	scanOnce bool

	// snapshot
	snapshotDir       string
	snapshotGCSBucket string
	snapshotGCSPrefix string

	rootCmd = &cobra.Command{
		Use:   "tesseract",
		Short: "A cli for the Tesseract versioned spatio-temporal archive",
		Long: `Tesseract stores academic papers with their 4D datasets: every
				published revision is immutable, encrypted at rest, certified in a
				hash chain, and queryable across deep time and space.`,
		SilenceUsage: true,
	}

	// --- Papers ---
	paperCmd = &cobra.Command{
		Use:   "paper",
		Short: "Manage papers and their lineages",
	}
	paperCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a new paper with an empty root draft",
		Run:   runPaperCreate, // Defined in cmd_paper.go
	}
	paperListCmd = &cobra.Command{
		Use:   "list",
		Short: "List every paper in the archive",
		Run:   runPaperList, // Defined in cmd_paper.go
	}
	paperShowCmd = &cobra.Command{
		Use:   "show [paper-id]",
		Short: "Show one paper, its head and its published lineage",
		Args:  cobra.ExactArgs(1),
		Run:   runPaperShow, // Defined in cmd_paper.go
	}

	// --- Ingestion ---
	ingestCmd = &cobra.Command{
		Use:   "ingest [paper-id] [file|-]",
		Short: "Ingest a jsonl.v1 payload into a paper, or watch a drop folder",
		Run:   runIngest, // Defined in cmd_ingest.go
	}

	// --- Drafts / Publish ---
	draftCmd = &cobra.Command{
		Use:   "draft",
		Short: "Open and edit draft versions",
	}
	draftNewCmd = &cobra.Command{
		Use:   "new [paper-id]",
		Short: "Open a new draft on a paper (default parent: current head)",
		Args:  cobra.ExactArgs(1),
		Run:   runDraftNew, // Defined in cmd_draft.go
	}
	draftSetCmd = &cobra.Command{
		Use:   "set [version-id]",
		Short: "Set a draft's dataset, policy or metadata",
		Args:  cobra.ExactArgs(1),
		Run:   runDraftSet, // Defined in cmd_draft.go
	}
	publishCmd = &cobra.Command{
		Use:   "publish [version-id]",
		Short: "Publish a draft as the paper's new head",
		Args:  cobra.ExactArgs(1),
		Run:   runPublish, // Defined in cmd_draft.go
	}

	// --- Reads ---
	queryCmd = &cobra.Command{
		Use:   "query [paper-id]",
		Short: "Query a paper's chunks across time and space",
		Args:  cobra.ExactArgs(1),
		Run:   runQuery, // Defined in cmd_query.go
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch [paper-id] [chunk-hash]",
		Short: "Decrypt and download one chunk of a version's dataset",
		Args:  cobra.ExactArgs(2),
		Run:   runFetch, // Defined in cmd_query.go
	}

	// --- Statistics ---
	viewCmd = &cobra.Command{
		Use:   "view [version-id]",
		Short: "Record a view of a published version",
		Args:  cobra.ExactArgs(1),
		Run:   runView, // Defined in cmd_stats.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats [version-id]",
		Short: "Show a version's view and download counters",
		Args:  cobra.ExactArgs(1),
		Run:   runStats, // Defined in cmd_stats.go
	}

	// --- Administration ---
	verifyCmd = &cobra.Command{
		Use:   "verify [paper-id]",
		Short: "Verify every chunk and the certification chain of a paper",
		Args:  cobra.ExactArgs(1),
		Run:   runVerify, // Defined in cmd_admin.go
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Manage paper master keys",
	}
	keysRotateCmd = &cobra.Command{
		Use:   "rotate [paper-id]",
		Short: "Rotate a paper's master key and re-wrap its data keys",
		Args:  cobra.ExactArgs(1),
		Run:   runKeysRotate, // Defined in cmd_admin.go
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Run the archive-wide integrity sweep",
		Run:   runScan, // Defined in cmd_admin.go
	}
	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Export and restore consistent archive backups",
	}
	snapshotExportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export a snapshot to a directory or a GCS bucket",
		Run:   runSnapshotExport, // Defined in cmd_admin.go
	}
	snapshotRestoreCmd = &cobra.Command{
		Use:   "restore [snapshot-name]",
		Short: "Restore a snapshot into an empty archive",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotRestore, // Defined in cmd_admin.go
	}

	// --- Browser ---
	browseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Browse papers, versions and datasets interactively",
		Run:   runBrowse, // Defined in cmd_browse.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default: ~/.tesseract/tesseract.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output results as JSON")
	rootCmd.PersistentFlags().BoolVar(&quietOutput, "quiet", false,
		"No output, exit code only")
	rootCmd.PersistentFlags().StringVar(&viewerID, "viewer", "",
		"Acting viewer id (default: $USER)")
	rootCmd.PersistentFlags().StringSliceVar(&viewerRoles, "role", nil,
		"Roles granted to the viewer (e.g. admin); repeatable")

	// Papers
	rootCmd.AddCommand(paperCmd)
	paperCmd.AddCommand(paperCreateCmd)
	paperCmd.AddCommand(paperListCmd)
	paperCmd.AddCommand(paperShowCmd)
	paperCreateCmd.Flags().StringVar(&paperTitle, "title", "", "Paper title")
	paperCreateCmd.Flags().StringVar(&paperPolicy, "policy", "author_only",
		"Access policy: public, author_only, stats_public_data_private")
	paperCreateCmd.Flags().StringVar(&paperAbstract, "abstract", "", "Initial abstract")
	paperCreateCmd.Flags().StringSliceVar(&paperAuthors, "author", nil,
		"Author team member ids; repeatable")
	paperCreateCmd.Flags().BoolVarP(&paperInteractive, "interactive", "i", false,
		"Fill in the paper details through an interactive form")

	// Ingestion
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestWatchDir, "watch", "",
		"Watch a drop folder for *.jsonl payloads instead of ingesting once")
	ingestCmd.Flags().StringVar(&ingestPaperFlag, "paper", "",
		"Paper id for --watch mode")
	ingestCmd.Flags().Int64Var(&boundsT0, "t0", 0, "Declared start day (days relative to epoch)")
	ingestCmd.Flags().Int64Var(&boundsT1, "t1", 0, "Declared end day (days relative to epoch)")
	ingestCmd.Flags().StringVar(&boundsMin, "min", "", "Declared spatial minimum as x,y,z")
	ingestCmd.Flags().StringVar(&boundsMax, "max", "", "Declared spatial maximum as x,y,z")
	ingestCmd.Flags().StringVar(&boundsCalendar, "calendar", "proleptic_gregorian",
		"Calendar for --t0/--t1")
	ingestCmd.Flags().StringVar(&boundsFrame, "frame", "site_local",
		"Reference frame for --min/--max")
	ingestCmd.Flags().BoolVar(&deriveBounds, "derive-bounds", false,
		"Derive the dataset extent from the payload instead of declaring it")

	// Drafts / publish
	rootCmd.AddCommand(draftCmd)
	draftCmd.AddCommand(draftNewCmd)
	draftCmd.AddCommand(draftSetCmd)
	draftNewCmd.Flags().StringVar(&draftParent, "parent", "",
		"Parent version id (default: current head)")
	draftNewCmd.Flags().StringVar(&draftDataset, "dataset", "", "Dataset id to bind")
	draftSetCmd.Flags().StringVar(&draftDataset, "dataset", "", "Dataset id to bind")
	draftSetCmd.Flags().StringVar(&draftPolicy, "policy", "", "Access policy override")
	draftSetCmd.Flags().StringVar(&draftTitle, "title", "", "Version title")
	draftSetCmd.Flags().StringVar(&draftReason, "reason", "", "Update reason")

	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().IntVar(&publishRetries, "retry", 0,
		"Rebase and retry up to N times when the head moves")

	// Reads
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Int64Var(&boundsT0, "t0", 0, "Window start day")
	queryCmd.Flags().Int64Var(&boundsT1, "t1", 0, "Window end day")
	queryCmd.Flags().StringVar(&boundsMin, "min", "", "Spatial minimum as x,y,z")
	queryCmd.Flags().StringVar(&boundsMax, "max", "", "Spatial maximum as x,y,z")
	queryCmd.Flags().StringVar(&boundsCalendar, "calendar", "proleptic_gregorian",
		"Calendar for --t0/--t1")
	queryCmd.Flags().StringVar(&boundsFrame, "frame", "site_local",
		"Reference frame for --min/--max")
	queryCmd.Flags().StringVar(&queryVersions, "versions", "head",
		"Versions to cover: head, all, or a version id")
	queryCmd.Flags().StringVar(&queryAfter, "after", "",
		"Resume after a position token from a previous page")

	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchVersion, "version", "",
		"Version whose dataset the chunk must belong to (default: head)")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "",
		"Write the plaintext to a file instead of stdout")

	// Statistics
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(statsCmd)

	// Administration
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysRotateCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanOnce, "once", false,
		"Run one sweep and exit instead of honoring the configured schedule")
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotExportCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotExportCmd.Flags().StringVar(&snapshotDir, "dir", "", "Local snapshot directory")
	snapshotExportCmd.Flags().StringVar(&snapshotGCSBucket, "gcs", "", "GCS bucket name")
	snapshotExportCmd.Flags().StringVar(&snapshotGCSPrefix, "prefix", "", "GCS object prefix")
	snapshotRestoreCmd.Flags().StringVar(&snapshotDir, "dir", "", "Local snapshot directory")
	snapshotRestoreCmd.Flags().StringVar(&snapshotGCSBucket, "gcs", "", "GCS bucket name")
	snapshotRestoreCmd.Flags().StringVar(&snapshotGCSPrefix, "prefix", "", "GCS object prefix")

	// Browser
	rootCmd.AddCommand(browseCmd)
}
