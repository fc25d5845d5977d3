// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package config loads pressimport configuration with koanf: struct defaults,
// then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"
)

// Config is the root configuration.
type Config struct {
	Import    ImportConfig    `koanf:"import"`
	Media     MediaConfig     `koanf:"media"`
	Database  DatabaseConfig  `koanf:"database"`
	State     StateConfig     `koanf:"state"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ImportConfig controls batch sizing and the run lifecycle.
type ImportConfig struct {
	// BatchSize is the number of content items per posts-phase chunk.
	BatchSize int `koanf:"batch_size"`

	// MaxExecutionTime is the execution ceiling of the surrounding worker
	// environment. Zero means the environment imposes none.
	MaxExecutionTime time.Duration `koanf:"max_execution_time"`

	// BatchTimeCap bounds a single batch even when MaxExecutionTime is larger.
	BatchTimeCap time.Duration `koanf:"batch_time_cap"`

	// MemoryLimit is the process memory ceiling ("512MB"). Empty uses GOMEMLIMIT.
	MemoryLimit string `koanf:"memory_limit"`

	ContentTypes       []string      `koanf:"content_types"`
	DefaultAuthor      string        `koanf:"default_author"`
	CommentPolicy      string        `koanf:"comment_policy"` // dedup or always
	CommentDedupWindow time.Duration `koanf:"comment_dedup_window"`

	// SiteURL is the public base URL of the destination site.
	SiteURL string `koanf:"site_url"`

	UploadDir         string        `koanf:"upload_dir"`
	PayloadTTL        time.Duration `koanf:"payload_ttl"`
	StopSignalTTL     time.Duration `koanf:"stop_signal_ttl"`
	ContinuationDelay time.Duration `koanf:"continuation_delay"`
}

// MemoryLimitBytes parses MemoryLimit. Zero means "not configured".
func (c *ImportConfig) MemoryLimitBytes() (int64, error) {
	if c.MemoryLimit == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(c.MemoryLimit)
	if err != nil {
		return 0, fmt.Errorf("import.memory_limit: %w", err)
	}
	return n, nil
}

// MediaConfig controls media acquisition and storage.
type MediaConfig struct {
	Backend         string        `koanf:"backend"` // local or s3
	LocalDir        string        `koanf:"local_dir"`
	BaseURL         string        `koanf:"base_url"`
	DownloadTimeout time.Duration `koanf:"download_timeout"`
	MaxDownloadSize string        `koanf:"max_download_size"`
	UserAgent       string        `koanf:"user_agent"`
	MaxAttempts     int           `koanf:"max_attempts"`
	QueueBatchSize  int           `koanf:"queue_batch_size"`

	// RateLimit is the sustained download rate in requests per second.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`

	S3 S3Config `koanf:"s3"`
}

// MaxDownloadBytes parses MaxDownloadSize.
func (c *MediaConfig) MaxDownloadBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxDownloadSize)
	if err != nil {
		return 0, fmt.Errorf("media.max_download_size: %w", err)
	}
	return n, nil
}

// S3Config configures the S3-compatible media backend.
type S3Config struct {
	Bucket    string `koanf:"bucket"`
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Prefix    string `koanf:"prefix"`
	PathStyle bool   `koanf:"path_style"`
}

// DatabaseConfig configures the DuckDB destination store.
type DatabaseConfig struct {
	Path        string `koanf:"path"`
	MaxMemory   string `koanf:"max_memory"`
	Threads     int    `koanf:"threads"`      // 0 = use NumCPU
	SkipIndexes bool   `koanf:"skip_indexes"` // fast test setup
}

// StateConfig configures the Badger state store (progress, payloads, jobs).
type StateConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// SchedulerConfig configures the durable job dispatcher.
type SchedulerConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxAttempts  int           `koanf:"max_attempts"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// ServerConfig holds operator HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	UploadRateLimit int           `koanf:"upload_rate_limit"` // uploads per minute per client
	MaxUploadSize   string        `koanf:"max_upload_size"`
}

// MaxUploadBytes parses MaxUploadSize.
func (c *ServerConfig) MaxUploadBytes() (int64, error) {
	n, err := units.RAMInBytes(c.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("server.max_upload_size: %w", err)
	}
	return n, nil
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Caller     bool   `koanf:"caller"`
	RunLogPath string `koanf:"run_log_path"`
}
