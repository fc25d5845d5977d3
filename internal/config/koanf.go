// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"pressimport.yaml",
	"pressimport.yml",
	"/etc/pressimport/config.yaml",
	"/etc/pressimport/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Default returns a Config populated with default values only.
func Default() *Config {
	return &Config{
		Import: ImportConfig{
			BatchSize:          10,
			MaxExecutionTime:   0,
			BatchTimeCap:       300 * time.Second,
			MemoryLimit:        "",
			ContentTypes:       []string{"post", "page"},
			DefaultAuthor:      "admin",
			CommentPolicy:      "dedup",
			CommentDedupWindow: 60 * time.Second,
			SiteURL:            "http://localhost:8087",
			UploadDir:          "/data/uploads",
			PayloadTTL:         72 * time.Hour,
			StopSignalTTL:      time.Hour,
			ContinuationDelay:  time.Second,
		},
		Media: MediaConfig{
			Backend:         "local",
			LocalDir:        "/data/media",
			BaseURL:         "http://localhost:8087/media",
			DownloadTimeout: 30 * time.Second,
			MaxDownloadSize: "50MB",
			UserAgent:       "pressimport/1.0",
			MaxAttempts:     3,
			QueueBatchSize:  10,
			RateLimit:       5,
			RateBurst:       5,
			BreakerFailures: 5,
			BreakerTimeout:  60 * time.Second,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "media/",
			},
		},
		Database: DatabaseConfig{
			Path:      "/data/pressimport.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		State: StateConfig{
			Path:       "/data/state",
			SyncWrites: true,
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Second,
			MaxAttempts:  5,
			RetryBackoff: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8087,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			UploadRateLimit: 10,
			MaxUploadSize:   "512MB",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			RunLogPath: "/data/logs/import.log",
		},
	}
}

// LoadWithKoanf loads configuration using koanf with layered sources:
//  1. Default values (lowest priority)
//  2. Config file (if exists)
//  3. Environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns CONFIG_PATH if it exists, else the first default path found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated values when set from the environment.
var sliceConfigPaths = []string{
	"import.content_types",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"import_batch_size":           "import.batch_size",
	"import_max_execution_time":   "import.max_execution_time",
	"import_batch_time_cap":       "import.batch_time_cap",
	"import_memory_limit":         "import.memory_limit",
	"import_content_types":        "import.content_types",
	"import_default_author":       "import.default_author",
	"import_comment_policy":       "import.comment_policy",
	"import_comment_dedup_window": "import.comment_dedup_window",
	"site_url":                    "import.site_url",
	"upload_dir":                  "import.upload_dir",
	"payload_ttl":                 "import.payload_ttl",
	"stop_signal_ttl":             "import.stop_signal_ttl",
	"continuation_delay":          "import.continuation_delay",

	"media_backend":           "media.backend",
	"media_local_dir":         "media.local_dir",
	"media_base_url":          "media.base_url",
	"media_download_timeout":  "media.download_timeout",
	"media_max_download_size": "media.max_download_size",
	"media_user_agent":        "media.user_agent",
	"media_max_attempts":      "media.max_attempts",
	"media_queue_batch_size":  "media.queue_batch_size",
	"media_rate_limit":        "media.rate_limit",
	"media_rate_burst":        "media.rate_burst",
	"media_breaker_failures":  "media.breaker_failures",
	"media_breaker_timeout":   "media.breaker_timeout",
	"s3_bucket":               "media.s3.bucket",
	"s3_region":               "media.s3.region",
	"s3_endpoint":             "media.s3.endpoint",
	"s3_access_key":           "media.s3.access_key",
	"s3_secret_key":           "media.s3.secret_key",
	"s3_prefix":               "media.s3.prefix",
	"s3_path_style":           "media.s3.path_style",

	"duckdb_path":         "database.path",
	"duckdb_max_memory":   "database.max_memory",
	"duckdb_threads":      "database.threads",
	"duckdb_skip_indexes": "database.skip_indexes",

	"state_path":        "state.path",
	"state_in_memory":   "state.in_memory",
	"state_sync_writes": "state.sync_writes",

	"scheduler_poll_interval": "scheduler.poll_interval",
	"scheduler_max_attempts":  "scheduler.max_attempts",
	"scheduler_retry_backoff": "scheduler.retry_backoff",

	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"cors_origins":      "server.cors_origins",
	"upload_rate_limit": "server.upload_rate_limit",
	"max_upload_size":   "server.max_upload_size",

	"log_level":    "logging.level",
	"log_format":   "logging.format",
	"log_caller":   "logging.caller",
	"run_log_path": "logging.run_log_path",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unknown variables map to "" and are ignored.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
