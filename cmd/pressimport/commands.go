// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/pressimport/internal/orchestrator"
)

// withLocalApp runs fn against a pipeline opened in this process.
func withLocalApp(ctx context.Context, root *rootOptions, fn func(*app) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newPreviewCmd(root *rootOptions) *cobra.Command {
	var items int
	cmd := &cobra.Command{
		Use:   "preview <source>",
		Short: "Summarize a source without importing it",
		Long: `Summarize each payload in a source and list its first items.
With --server the source is the id returned by an upload.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var previews []orchestrator.Preview
			if root.server != "" {
				body := map[string]any{"source_id": args[0], "items": items}
				if err := newAPIClient(root.server).post(ctx, "/imports/preview", body, &previews); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), previews)
			}
			return withLocalApp(ctx, root, func(a *app) error {
				var err error
				if previews, err = a.orch.Preview(ctx, args[0], items); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), previews)
			})
		},
	}
	cmd.Flags().IntVarP(&items, "items", "n", 5, "items to list per payload")
	return cmd
}

func newStopCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [run-id]",
		Short: "Stop one run, or every run when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			if root.server != "" {
				if err := newAPIClient(root.server).post(ctx, "/imports/stop", map[string]string{"run_id": runID}, nil); err != nil {
					return err
				}
			} else if err := withLocalApp(ctx, root, func(a *app) error { return a.orch.Stop(ctx, runID) }); err != nil {
				return err
			}
			if runID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "stop requested for all runs")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "stop requested for %s\n", runID)
			}
			return nil
		},
	}
}

func newCleanupCmd(root *rootOptions) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stored payloads and media queue rows past their TTL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var res orchestrator.CleanupResult
			if root.server != "" {
				body := map[string]string{}
				if olderThan > 0 {
					body["older_than"] = olderThan.String()
				}
				if err := newAPIClient(root.server).post(ctx, "/maintenance/cleanup", body, &res); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}
			return withLocalApp(ctx, root, func(a *app) error {
				ttl := olderThan
				if ttl <= 0 {
					ttl = a.cfg.Import.PayloadTTL
				}
				var err error
				if res, err = a.orch.Cleanup(ctx, ttl); err != nil {
					return err
				}
				if err := a.state.RunGC(); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (default: import.payload_ttl)")
	return cmd
}
