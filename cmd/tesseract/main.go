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

	"github.com/deeptimelabs/tesseract/pkg/logging"
	"github.com/deeptimelabs/tesseract/pkg/ux"
	"github.com/deeptimelabs/tesseract/services/archive/config"
	"github.com/deeptimelabs/tesseract/services/archive/telemetry"
)

// Version is stamped by the release build.
var Version = "dev"

var (
	appLog            *logging.Logger
	telemetryShutdown func(context.Context) error
)

func main() {
	defer func() {
		if telemetryShutdown != nil {
			_ = telemetryShutdown(context.Background())
		}
		if appLog != nil {
			_ = appLog.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.Load(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg := config.Global

		logCfg := logging.Config{
			Level:   logging.ParseLevel(cfg.Logging.Level),
			LogDir:  cfg.Logging.Dir,
			Service: "cli",
			JSON:    cfg.Logging.JSON,
			Quiet:   cfg.Logging.Quiet || quietOutput || jsonOutput,
		}
		appLog = logging.New(logCfg)

		// Structured output modes own stdout.
		if jsonOutput || quietOutput {
			ux.SetPlain(true)
		}

		shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry, Version)
		if err != nil {
			appLog.Warn("telemetry disabled", "error", err)
		} else {
			telemetryShutdown = shutdown
		}
		return nil
	}
}
