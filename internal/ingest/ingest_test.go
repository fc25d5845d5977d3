// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package ingest

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatalf("zip create %s: %v", e.name, err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatalf("zip write %s: %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func buildTarGz(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		header := &tar.Header{Name: e.name, Mode: 0o600, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(header); err != nil {
			t.Fatalf("tar header %s: %v", e.name, err)
		}
		if _, err := tw.Write([]byte(e.body)); err != nil {
			t.Fatalf("tar write %s: %v", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

const completePayload = `{
  "site_info": {"url": "https://source.example", "name": "Source"},
  "posts": [
    {"id": 1, "type": "post", "title": "Hello", "slug": "hello"},
    {"id": 2, "type": "page", "title": "About", "slug": "about"}
  ],
  "categories": [{"id": 3, "name": "News", "slug": "news"}],
  "tags": [{"id": 4, "name": "Go", "slug": "go"}]
}`

func TestRead_SingleFile(t *testing.T) {
	t.Parallel()

	payloads, err := Read("export.json", []byte(completePayload))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	p := payloads[0]
	if p.SiteInfo == nil || p.SiteInfo.URL != "https://source.example" {
		t.Errorf("unexpected site info: %+v", p.SiteInfo)
	}
	if len(p.Posts) != 2 || p.Posts[1].Slug != "about" {
		t.Errorf("unexpected posts: %+v", p.Posts)
	}
	if len(p.Categories) != 1 || len(p.Tags) != 1 {
		t.Errorf("unexpected terms: categories=%d tags=%d", len(p.Categories), len(p.Tags))
	}
}

func TestRead_SingleFileMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t"},
		{"truncated", `{"posts": [`},
		{"not json", "<rss></rss>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read("export.json", []byte(tt.data))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestRead_ZipStandalonePayloads(t *testing.T) {
	t.Parallel()

	data := buildZip(t, []testEntry{
		{"site-a/export.json", completePayload},
		{"site-b/export.json", completePayload},
		{"manifest.json", `{"site_info": {"url": "https://ignored.example"}}`},
		{"posts-1.json", `[{"id": 9, "type": "post", "title": "Shard", "slug": "shard"}]`},
		{"readme.txt", "not json"},
	})

	payloads, err := Read("bundle.zip", data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("standalone payloads should be returned as-is, got %d", len(payloads))
	}
	for i, p := range payloads {
		if len(p.Posts) != 2 {
			t.Errorf("payload %d: expected 2 posts, got %d", i, len(p.Posts))
		}
	}
}

func TestRead_ZipManifestAndShards(t *testing.T) {
	t.Parallel()

	data := buildZip(t, []testEntry{
		{"export/posts-10.json", `{"posts": [{"id": 30, "type": "post", "title": "C", "slug": "c"}], "tags": [{"id": 8, "name": "Later", "slug": "later"}]}`},
		{"export/export-report.json", `{"site_info": {"url": "https://source.example", "name": "Source"}}`},
		{"export/posts-2.json", `{"posts": [{"id": 20, "type": "post", "title": "B", "slug": "b"}], "categories": [], "tags": [{"id": 7, "name": "First", "slug": "first"}]}`},
		{"export/posts-1.json", `[{"id": 10, "type": "post", "title": "A", "slug": "a"}]`},
		{"export/content-3.json", `{"posts": [{"id": 25, "type": "page", "title": "P", "slug": "p"}], "categories": [{"id": 5, "name": "Cat", "slug": "cat"}]}`},
	})

	payloads, err := Read("bundle.zip", data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected one merged payload, got %d", len(payloads))
	}
	p := payloads[0]
	if p.SiteInfo == nil || p.SiteInfo.Name != "Source" {
		t.Errorf("expected manifest site info, got %+v", p.SiteInfo)
	}

	wantIDs := []int64{10, 20, 25, 30}
	if len(p.Posts) != len(wantIDs) {
		t.Fatalf("expected %d posts, got %d", len(wantIDs), len(p.Posts))
	}
	for i, id := range wantIDs {
		if p.Posts[i].ID != id {
			t.Errorf("post %d: id = %d, want %d (shard order)", i, p.Posts[i].ID, id)
		}
	}
	if len(p.Tags) != 1 || p.Tags[0].Slug != "first" {
		t.Errorf("expected first non-empty tags list, got %+v", p.Tags)
	}
	if len(p.Categories) != 1 || p.Categories[0].Slug != "cat" {
		t.Errorf("expected first non-empty categories list, got %+v", p.Categories)
	}
}

func TestRead_TarGzManifestAndShards(t *testing.T) {
	t.Parallel()

	data := buildTarGz(t, []testEntry{
		{"manifest.json", `{"site_info": {"url": "https://source.example"}}`},
		{"posts_1.json", `[{"id": 1, "type": "post", "title": "A", "slug": "a"}]`},
	})

	payloads, err := Read("bundle.tar.gz", data)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(payloads) != 1 || len(payloads[0].Posts) != 1 {
		t.Fatalf("unexpected payloads: %+v", payloads)
	}
}

func TestRead_ArchiveWithoutValidPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []testEntry
	}{
		{"shards without manifest", []testEntry{
			{"posts-1.json", `[{"id": 1, "type": "post", "title": "A", "slug": "a"}]`},
		}},
		{"manifest without shards", []testEntry{
			{"manifest.json", `{"site_info": {"url": "https://source.example"}}`},
		}},
		{"only unrelated files", []testEntry{
			{"notes.json", `{"hello": "world"}`},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Read("bundle.zip", buildZip(t, tt.entries))
			if !errors.Is(err, ErrNoValidPayload) {
				t.Errorf("expected ErrNoValidPayload, got %v", err)
			}
		})
	}
}

func TestReadFileAndSummarize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(completePayload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	payloads, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	s := Summarize(&payloads[0])
	if s.Posts != 2 || s.Categories != 1 || s.Tags != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.Types["post"] != 1 || s.Types["page"] != 1 {
		t.Errorf("unexpected type counts: %+v", s.Types)
	}
}
