// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
	"github.com/deeptimelabs/tesseract/services/archive/ingest"
	"github.com/deeptimelabs/tesseract/services/archive/ledger"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
	"github.com/deeptimelabs/tesseract/services/archive/tui"
)

// serviceProvider adapts the archive facade to the browser, binding the
// acting viewer once.
type serviceProvider struct {
	svc   *archive.Service
	actor datatypes.Actor
}

func (p *serviceProvider) Papers(ctx context.Context) ([]lineage.Paper, error) {
	return p.svc.ListPapers(ctx)
}

func (p *serviceProvider) Versions(ctx context.Context, paperID string) ([]lineage.Version, error) {
	return p.svc.ListVersions(ctx, paperID)
}

func (p *serviceProvider) Describe(ctx context.Context, versionID string) (lineage.Version, *ingest.Dataset, error) {
	return p.svc.DescribeVersion(ctx, versionID)
}

func (p *serviceProvider) Stats(ctx context.Context, versionID string) (ledger.Summary, error) {
	resp, err := p.svc.Stats(ctx, datatypes.StatsRequest{Actor: p.actor, VersionID: versionID})
	if err != nil {
		return ledger.Summary{}, err
	}
	return resp.Summary, nil
}

// runBrowse opens the interactive archive browser.
func runBrowse(cmd *cobra.Command, args []string) {
	withService("browse", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		provider := &serviceProvider{svc: svc, actor: actor()}
		model := tui.NewBrowserModel(provider, tui.DefaultBrowserConfig())

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	})
}
