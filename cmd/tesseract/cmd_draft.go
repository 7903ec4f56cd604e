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

	"github.com/spf13/cobra"

	"github.com/deeptimelabs/tesseract/pkg/ux"
	archive "github.com/deeptimelabs/tesseract/services/archive"
	"github.com/deeptimelabs/tesseract/services/archive/datatypes"
	"github.com/deeptimelabs/tesseract/services/archive/errs"
	"github.com/deeptimelabs/tesseract/services/archive/lineage"
)

// runDraftNew opens a new draft on a paper.
func runDraftNew(cmd *cobra.Command, args []string) {
	paperID := args[0]
	withService("draft new", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		draft, err := svc.NewDraft(ctx, datatypes.NewDraftRequest{
			Actor:    actor(),
			PaperID:  paperID,
			ParentID: draftParent,
		})
		if err != nil {
			return nil, false, err
		}
		if draftDataset != "" {
			draft, err = svc.SetDraft(ctx, datatypes.SetDraftRequest{
				Actor:     actor(),
				VersionID: draft.ID,
				DatasetID: draftDataset,
			})
			if err != nil {
				return nil, false, err
			}
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Opened draft %s", draft.ID))
			if draft.ParentID != "" {
				ux.Field("parent", draft.ParentID)
			}
		}
		return draft, false, nil
	})
}

// runDraftSet applies dataset, policy and metadata changes to a draft.
func runDraftSet(cmd *cobra.Command, args []string) {
	versionID := args[0]
	withService("draft set", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		req := datatypes.SetDraftRequest{
			Actor:     actor(),
			VersionID: versionID,
			DatasetID: draftDataset,
			Policy:    draftPolicy,
		}
		if draftTitle != "" || draftReason != "" {
			draft, _, err := svc.DescribeVersion(ctx, versionID)
			meta := lineage.Metadata{}
			if err == nil {
				meta = draft.Metadata
			}
			if draftTitle != "" {
				meta.Title = draftTitle
			}
			if draftReason != "" {
				meta.UpdateReason = draftReason
			}
			req.Metadata = &meta
		}
		draft, err := svc.SetDraft(ctx, req)
		if err != nil {
			return nil, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Updated draft %s", draft.ID))
		}
		return draft, false, nil
	})
}

// runPublish promotes a draft; --retry rebases onto the moved head and
// tries again.
func runPublish(cmd *cobra.Command, args []string) {
	versionID := args[0]
	withService("publish", func(ctx context.Context, svc *archive.Service) (interface{}, bool, error) {
		var resp datatypes.PublishResponse
		var err error
		for attempt := 0; ; attempt++ {
			resp, err = svc.Publish(ctx, datatypes.PublishRequest{Actor: actor(), VersionID: versionID})
			if err == nil || !errors.Is(err, errs.ErrConflict) || attempt >= publishRetries {
				break
			}
			if !jsonOutput && !quietOutput {
				ux.Warning(fmt.Sprintf("Head moved, rebasing draft (attempt %d/%d)", attempt+1, publishRetries))
			}
			if _, rerr := svc.RebaseDraft(ctx, actor(), versionID); rerr != nil {
				return nil, false, rerr
			}
		}
		if err != nil {
			return resp, false, err
		}
		if !jsonOutput && !quietOutput {
			ux.Success(fmt.Sprintf("Published v%d of paper %s", resp.Version.Number, resp.Version.PaperID))
			ux.Field("version", resp.Version.ID)
			ux.Field("cert hash", resp.Version.CertHash)
		}
		return resp, false, nil
	})
}
