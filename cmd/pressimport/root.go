// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/pressimport/internal/config"
	"github.com/tomtom215/pressimport/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "pressimport",
		Short:         "Bulk content import pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (overrides "+config.ConfigPathEnvVar+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.server, "server", "", "base URL of a running pressimport server, e.g. http://localhost:8087")

	cmd.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newPreviewCmd(opts),
		newStopCmd(opts),
		newCleanupCmd(opts),
	)
	return cmd
}

// loadConfig loads configuration and applies the global flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		if _, err := os.Stat(o.configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := os.Setenv(config.ConfigPathEnvVar, o.configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// initLogging configures the global logger, mirroring events into runLog
// when it is set.
func initLogging(cfg *config.Config, runLog io.Writer) {
	logging.Init(loggingConfig(cfg, runLog))
}

// loggingConfig overlays the configured logging settings on the defaults.
// Empty level and format keep the default.
func loggingConfig(cfg *config.Config, runLog io.Writer) logging.Config {
	lc := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		lc.Level = cfg.Logging.Level
	}
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Caller = cfg.Logging.Caller
	lc.RunLog = runLog
	return lc
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
