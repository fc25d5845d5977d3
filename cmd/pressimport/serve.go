// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/pressimport/internal/api"
	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/supervisor"
	"github.com/tomtom215/pressimport/internal/supervisor/services"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var maintenance time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, batch scheduler and maintenance under a supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, maintenance)
		},
	}
	cmd.Flags().DurationVar(&maintenance, "maintenance-interval", time.Hour, "interval between payload cleanup and state GC passes")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, maintenance time.Duration) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Info().Str("version", version).Msg("Starting pressimport with supervisor tree")

	maxUpload, err := cfg.Server.MaxUploadBytes()
	if err != nil {
		return err
	}
	var runLog api.RunLog
	if a.runLog != nil {
		runLog = a.runLog
	}
	handler := api.NewHandler(a.orch, runLog, a.db, api.HandlerConfig{
		UploadDir:     cfg.Import.UploadDir,
		MaxUploadSize: maxUpload,
		PayloadTTL:    cfg.Import.PayloadTTL,
		Version:       version,
	})
	server := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.NewRouter(handler, api.RouterConfig{
			CORSOrigins:     cfg.Server.CORSOrigins,
			UploadRateLimit: cfg.Server.UploadRateLimit,
			RequestTimeout:  cfg.Server.Timeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddStateService(services.NewMaintenanceService(maintenance,
		services.Task{Name: "state-gc", Run: func(context.Context) error {
			return a.state.RunGC()
		}},
		services.Task{Name: "payload-cleanup", Run: func(ctx context.Context) error {
			res, err := a.orch.Cleanup(ctx, cfg.Import.PayloadTTL)
			if err == nil && (res.Payloads > 0 || res.QueueRows > 0) {
				logging.Ctx(ctx).Info().Int("payloads", res.Payloads).Int64("queue_rows", res.QueueRows).Msg("Expired import data removed")
			}
			return err
		}},
	))
	tree.AddWorkerService(services.NewSchedulerService(a.sched))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // report only
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("pressimport stopped gracefully")
	return nil
}
