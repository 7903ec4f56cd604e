// Copyright (C) 2026 Deep Time Labs (engineering@deeptimelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

// runPaperCreate creates a paper with an empty root draft.
func runPaperCreate(cmd *cobra.Command, args []string) {
	if paperInteractive {
		if err := paperCreateForm(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				exit(CLIExitSuccess)
			}
			OutputError(jsonOutput, "form failed", err)
			exit(CLIExitError)
		}
	}

	withService("paper create", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		resp, err := svc.CreatePaper(ctx, datatypes.CreatePaperRequest{
			Actor:  actor(),
			Title:  paperTitle,
			Policy: paperPolicy,
			Metadata: lineage.Metadata{
				Title:        paperTitle,
				AbstractDiff: paperAbstract,
				AuthorTeam:   paperAuthors,
			},
		})
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Created paper %s", resp.Paper.ID))
			ux.Field("root draft", resp.Root.ID)
			ux.Field("policy", string(resp.Root.Policy))
		}
		return resp, false, nil
	})
}

// paperCreateForm fills the create flags through an interactive form.
func paperCreateForm() error {
	var authors string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("The paper's working title.").
				Value(&paperTitle).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("a title is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Access policy").
				Description("Who may read the published data.").
				Options(
					huh.NewOption("Public", string(lineage.PolicyPublic)),
					huh.NewOption("Authors only", string(lineage.PolicyAuthorOnly)),
					huh.NewOption("Stats public, data private", string(lineage.PolicyStatsPublic)),
				).
				Value(&paperPolicy),
			huh.NewText().
				Title("Abstract").
				Description("Optional initial abstract.").
				Value(&paperAbstract),
			huh.NewInput().
				Title("Author team").
				Description("Comma-separated viewer ids with author access.").
				Value(&authors),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	paperAuthors = paperAuthors[:0]
	for _, a := range strings.Split(authors, ",") {
		if a = strings.TrimSpace(a); a != "" {
			paperAuthors = append(paperAuthors, a)
		}
	}
	return nil
}

// runPaperList lists every paper.
func runPaperList(cmd *cobra.Command, args []string) {
	withService("paper list", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		papers, err := svc.ListPapers(ctx)
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			if len(papers) == 0 {
				ux.Info("No papers yet")
			}
			for _, p := range papers {
				fmt.Printf("%s  %s\n", p.ID, p.Title)
			}
		}
		return papers, false, nil
	})
}

// runPaperShow prints one paper with its head, lineage and open drafts.
func runPaperShow(cmd *cobra.Command, args []string) {
	paperID := args[0]
	withService("paper show", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		paper, err := svc.GetPaper(ctx, paperID)
		if err != nil {
			return nil, false, err
		}
		result := PaperShowResult{Paper: paper}

		head, err := svc.Head(ctx, paperID)
		switch {
		case err == nil:
			result.Head = head
		case !errors.Is(err, errs.ErrNotFound):
			return nil, false, err
		}

		versions, err := svc.ListVersions(ctx, paperID)
		if err != nil {
			return nil, false, err
		}
		for _, v := range versions {
			result.Versions = append(result.Versions, v)
		}
		drafts, err := svc.ListDrafts(ctx, paperID)
		if err != nil {
			return nil, false, err
		}
		for _, d := range drafts {
			result.Drafts = append(result.Drafts, d)
		}

		if !jsonOutput && !quietOutput {
			ux.Title(paper.Title)
			ux.Field("id", paper.ID)
			ux.Field("owner", paper.OwnerID)
			if result.Head != nil {
				ux.Field("head", fmt.Sprintf("v%d (%s)", head.Number, head.ID))
			}
			for _, v := range versions {
				fmt.Printf("  v%-3d %s  %s\n", v.Number, v.ID, v.Metadata.Title)
			}
			for _, d := range drafts {
				fmt.Printf("  draft %s  %s\n", d.ID, d.Metadata.Title)
			}
		}
		return result, false, nil
	})
}
