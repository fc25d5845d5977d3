// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/models"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := models.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Import a source file in the foreground and wait for every run to finish",
		Long: `Import a JSON export or an archive of exports. Batches run in this
process until each payload reaches a terminal phase. Interrupting leaves the
remaining batches scheduled; "serve" or another "run" picks them up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runImport(ctx, cmd, a, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.ForceIDs, "force-ids", opts.ForceIDs, "keep source ids when the destination slot is free")
	cmd.Flags().BoolVar(&opts.HandleAttachments, "attachments", opts.HandleAttachments, "download and re-host referenced media")
	cmd.Flags().BoolVar(&opts.ForceAuthor, "force-author", opts.ForceAuthor, "assign every item to the default author")
	cmd.Flags().BoolVar(&opts.GenerateThumbnails, "thumbnails", opts.GenerateThumbnails, "request thumbnail generation for re-hosted media")
	cmd.Flags().BoolVar(&opts.ImportOnlyMissing, "only-missing", opts.ImportOnlyMissing, "skip items whose title and type already exist")
	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, a *app, source string, opts models.Options) error {
	handles, err := a.orch.Start(ctx, source, opts)
	if err != nil {
		return err
	}
	ids := lo.Map(handles, func(h models.RunHandle, _ int) string { return h.RunID })

	var finishErr error
	err = a.sched.Drain(ctx, func() bool {
		done, err := a.orch.Finished(ctx, ids...)
		if err != nil {
			finishErr = err
			return true
		}
		return done
	})
	if err != nil {
		return err
	}
	if finishErr != nil {
		return finishErr
	}

	records := make([]*models.ProgressRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := a.orch.Progress(ctx, id)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := printJSON(cmd.OutOrStdout(), records); err != nil {
		return err
	}

	failed := lo.CountBy(records, func(r *models.ProgressRecord) bool { return r.Status == models.PhaseFailed })
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(records))
	}
	logging.Info().Int("runs", len(records)).Msg("Import finished")
	return nil
}
