// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Import.BatchSize != 10 {
		t.Errorf("Import.BatchSize = %d, want 10", cfg.Import.BatchSize)
	}
	if cfg.Import.BatchTimeCap != 300*time.Second {
		t.Errorf("Import.BatchTimeCap = %v, want 5m", cfg.Import.BatchTimeCap)
	}
	if cfg.Import.CommentPolicy != "dedup" {
		t.Errorf("Import.CommentPolicy = %q, want dedup", cfg.Import.CommentPolicy)
	}
	if cfg.Media.MaxAttempts != 3 {
		t.Errorf("Media.MaxAttempts = %d, want 3", cfg.Media.MaxAttempts)
	}
}

func TestLoadWithKoanf_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pressimport.yaml")
	yamlContent := `
import:
  batch_size: 25
  memory_limit: 256MB
media:
  backend: local
  local_dir: /tmp/media
database:
  path: /tmp/test.duckdb
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("IMPORT_BATCH_SIZE", "40")
	t.Setenv("IMPORT_CONTENT_TYPES", "post, page ,product")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Import.BatchSize != 40 {
		t.Errorf("env should override file: BatchSize = %d, want 40", cfg.Import.BatchSize)
	}
	if cfg.Media.LocalDir != "/tmp/media" {
		t.Errorf("Media.LocalDir = %q, want /tmp/media", cfg.Media.LocalDir)
	}
	if got := strings.Join(cfg.Import.ContentTypes, "|"); got != "post|page|product" {
		t.Errorf("ContentTypes = %q, want post|page|product", got)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	limit, err := cfg.Import.MemoryLimitBytes()
	if err != nil {
		t.Fatalf("MemoryLimitBytes: %v", err)
	}
	if limit != 256*1024*1024 {
		t.Errorf("MemoryLimitBytes = %d, want %d", limit, 256*1024*1024)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero batch size", func(c *Config) { c.Import.BatchSize = 0 }, "import.batch_size"},
		{"bad comment policy", func(c *Config) { c.Import.CommentPolicy = "sometimes" }, "import.comment_policy"},
		{"bad memory limit", func(c *Config) { c.Import.MemoryLimit = "lots" }, "import.memory_limit"},
		{"s3 without bucket", func(c *Config) { c.Media.Backend = "s3" }, "media.s3.bucket"},
		{"unknown backend", func(c *Config) { c.Media.Backend = "ftp" }, "media.backend"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"relative site url", func(c *Config) { c.Import.SiteURL = "example.com" }, "import.site_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Import.BatchSize = 0
	cfg.Server.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"import.batch_size", "server.port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err.Error(), want)
		}
	}
}

func TestEnvTransformFunc(t *testing.T) {
	if got := envTransformFunc("DUCKDB_PATH"); got != "database.path" {
		t.Errorf("envTransformFunc(DUCKDB_PATH) = %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unknown variables should be ignored, got %q", got)
	}
}
