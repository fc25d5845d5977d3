// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateImport(),
		c.validateMedia(),
		c.validateDatabase(),
		c.validateScheduler(),
		c.validateServer(),
		c.validateLogging(),
	)
}

func (c *Config) validateImport() error {
	var errs []error
	if c.Import.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("import.batch_size must be at least 1, got %d", c.Import.BatchSize))
	}
	if c.Import.MaxExecutionTime < 0 {
		errs = append(errs, errors.New("import.max_execution_time must not be negative"))
	}
	if c.Import.BatchTimeCap <= 0 {
		errs = append(errs, errors.New("import.batch_time_cap must be positive"))
	}
	if _, err := c.Import.MemoryLimitBytes(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Import.ContentTypes) == 0 {
		errs = append(errs, errors.New("import.content_types must name at least one type"))
	}
	if !slices.Contains([]string{"dedup", "always"}, c.Import.CommentPolicy) {
		errs = append(errs, fmt.Errorf("import.comment_policy must be dedup or always, got %q", c.Import.CommentPolicy))
	}
	if c.Import.SiteURL != "" {
		if u, err := url.Parse(c.Import.SiteURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("import.site_url is not an absolute URL: %q", c.Import.SiteURL))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validateMedia() error {
	var errs []error
	switch c.Media.Backend {
	case "local":
		if c.Media.LocalDir == "" {
			errs = append(errs, errors.New("media.local_dir is required for the local backend"))
		}
	case "s3":
		if c.Media.S3.Bucket == "" {
			errs = append(errs, errors.New("media.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.backend must be local or s3, got %q", c.Media.Backend))
	}
	if c.Media.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("media.download_timeout must be positive"))
	}
	if _, err := c.Media.MaxDownloadBytes(); err != nil {
		errs = append(errs, err)
	}
	if c.Media.MaxAttempts < 1 {
		errs = append(errs, errors.New("media.max_attempts must be at least 1"))
	}
	if c.Media.QueueBatchSize < 1 {
		errs = append(errs, errors.New("media.queue_batch_size must be at least 1"))
	}
	if c.Media.RateLimit <= 0 {
		errs = append(errs, errors.New("media.rate_limit must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	var errs []error
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("scheduler.poll_interval must be positive"))
	}
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, errors.New("scheduler.max_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateServer() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if _, err := c.Server.MaxUploadBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"json", "console"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
