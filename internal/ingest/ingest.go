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
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pressimport/internal/models"
)

var (
	// ErrNoValidPayload means an archive held neither standalone payloads nor
	// a manifest with post shards.
	ErrNoValidPayload = errors.New("no valid payload found in archive")

	// ErrMalformed means a single-file source is empty or not valid JSON.
	ErrMalformed = errors.New("malformed import file")
)

// MaxEntrySize bounds the decompressed size of one archive entry.
const MaxEntrySize = 512 << 20

var (
	manifestPattern = regexp.MustCompile(`(?i)(^|[-_])(manifest|export[-_]?report|report)\.json$`)
	shardPattern    = regexp.MustCompile(`(?i)^(posts?|content)([-_](\d+))?\.json$`)
)

// ReadFile reads the source at path.
func ReadFile(filePath string) ([]models.Payload, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // operator-supplied source path
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", filePath, err)
	}
	return Read(path.Base(filePath), data)
}

// Read parses source bytes; name is used only for diagnostics.
func Read(name string, data []byte) ([]models.Payload, error) {
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		entries, err := zipEntries(data)
		if err != nil {
			return nil, fmt.Errorf("read zip %s: %w", name, err)
		}
		return fromEntries(entries)
	case len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b:
		entries, err := tarGzEntries(data)
		if err != nil {
			return nil, fmt.Errorf("read tar.gz %s: %w", name, err)
		}
		return fromEntries(entries)
	default:
		p, err := parseSingle(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return []models.Payload{p}, nil
	}
}

func parseSingle(data []byte) (models.Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.Payload{}, fmt.Errorf("%w: empty content", ErrMalformed)
	}
	if trimmed[0] == '[' {
		var posts []models.ContentItem
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return models.Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return models.Payload{Posts: posts}, nil
	}
	var p models.Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return models.Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

type entry struct {
	name string
	data []byte
}

func zipEntries(data []byte) ([]entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	entries := make([]entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isJSONEntry(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		body, err := readLimited(rc)
		rc.Close() //nolint:errcheck // read-only entry
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		entries = append(entries, entry{name: f.Name, data: body})
	}
	return entries, nil
}

func tarGzEntries(data []byte) ([]entry, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	var entries []entry
	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg || !isJSONEntry(header.Name) {
			continue
		}
		body, err := readLimited(tr)
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", header.Name, err)
		}
		entries = append(entries, entry{name: header.Name, data: body})
	}
	return entries, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, MaxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", MaxEntrySize)
	}
	return body, nil
}

func isJSONEntry(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(strings.ToLower(base), ".json") && !strings.HasPrefix(base, ".")
}

type shard struct {
	name  string
	index int
	doc   models.Payload
}

// fromEntries applies the standalone-first, then manifest+shards strategy.
func fromEntries(entries []entry) ([]models.Payload, error) {
	var (
		standalone []models.Payload
		manifest   *models.SiteInfo
		shards     []shard
	)

	for _, e := range entries {
		base := path.Base(e.name)
		doc, ok := decodeEntry(e.data)
		if !ok {
			continue
		}

		switch {
		case doc.SiteInfo != nil && len(doc.Posts) > 0:
			standalone = append(standalone, doc)
		case manifestPattern.MatchString(base) || (doc.SiteInfo != nil && len(doc.Posts) == 0):
			if manifest == nil && doc.SiteInfo != nil {
				manifest = doc.SiteInfo
			}
		default:
			if m := shardPattern.FindStringSubmatch(base); m != nil {
				idx, _ := strconv.Atoi(m[3]) //nolint:errcheck // missing index sorts first
				shards = append(shards, shard{name: e.name, index: idx, doc: doc})
			}
		}
	}

	if len(standalone) > 0 {
		return standalone, nil
	}

	sort.SliceStable(shards, func(i, j int) bool {
		if shards[i].index != shards[j].index {
			return shards[i].index < shards[j].index
		}
		return shards[i].name < shards[j].name
	})

	merged := models.Payload{SiteInfo: manifest}
	for _, s := range shards {
		merged.Posts = append(merged.Posts, s.doc.Posts...)
		if len(merged.Categories) == 0 && len(s.doc.Categories) > 0 {
			merged.Categories = s.doc.Categories
		}
		if len(merged.Tags) == 0 && len(s.doc.Tags) > 0 {
			merged.Tags = s.doc.Tags
		}
	}

	if manifest == nil || len(merged.Posts) == 0 {
		return nil, ErrNoValidPayload
	}
	return []models.Payload{merged}, nil
}

// decodeEntry accepts an object payload or a bare array of posts.
func decodeEntry(data []byte) (models.Payload, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.Payload{}, false
	}
	if trimmed[0] == '[' {
		var posts []models.ContentItem
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return models.Payload{}, false
		}
		return models.Payload{Posts: posts}, true
	}
	var doc models.Payload
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return models.Payload{}, false
	}
	return doc, true
}

// Summary describes a payload for previews.
type Summary struct {
	SiteInfo   *models.SiteInfo `json:"site_info,omitempty"`
	Posts      int              `json:"posts"`
	Categories int              `json:"categories"`
	Tags       int              `json:"tags"`
	Types      map[string]int   `json:"types"`
}

// Summarize counts the contents of a payload.
func Summarize(p *models.Payload) Summary {
	s := Summary{
		SiteInfo:   p.SiteInfo,
		Posts:      len(p.Posts),
		Categories: len(p.Categories),
		Tags:       len(p.Tags),
		Types:      make(map[string]int),
	}
	for i := range p.Posts {
		s.Types[p.Posts[i].Type]++
	}
	return s
}
