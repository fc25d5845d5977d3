// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

// Package remap maps source identifiers to destination identifiers for one
// import run.
//
// Terms are namespaced by taxonomy ("category_12"); content items use the
// unprefixed namespace. Term mappings are also recorded under their bare
// numeric key so callers that do not prefix still resolve. Content and term
// mappings live in separate tables, so a bare term key never shadows a
// content id.
package remap

import (
	"strconv"
	"strings"
	"sync"
)

// ContentNamespace is the namespace of content item ids.
const ContentNamespace = ""

// TermNamespace returns the namespace for a taxonomy.
func TermNamespace(taxonomy string) string {
	return taxonomy + "_"
}

// Snapshot is the serializable state of a Remapper.
type Snapshot struct {
	Content map[string]int64 `json:"content"`
	Terms   map[string]int64 `json:"terms"`
}

// Remapper is safe for concurrent use. Entries are never evicted.
type Remapper struct {
	mu      sync.RWMutex
	content map[string]int64
	terms   map[string]int64
}

// New returns an empty Remapper.
func New() *Remapper {
	return &Remapper{
		content: make(map[string]int64),
		terms:   make(map[string]int64),
	}
}

// Restore returns a Remapper seeded from a snapshot.
func Restore(s Snapshot) *Remapper {
	r := New()
	for k, v := range s.Content {
		r.content[k] = v
	}
	for k, v := range s.Terms {
		r.terms[k] = v
	}
	return r
}

// Snapshot copies the current mappings.
func (r *Remapper) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Snapshot{
		Content: make(map[string]int64, len(r.content)),
		Terms:   make(map[string]int64, len(r.terms)),
	}
	for k, v := range r.content {
		s.Content[k] = v
	}
	for k, v := range r.terms {
		s.Terms[k] = v
	}
	return s
}

// Remember records sourceID -> destID in namespace.
func (r *Remapper) Remember(namespace string, sourceID, destID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strconv.FormatInt(sourceID, 10)
	if namespace == ContentNamespace {
		r.content[key] = destID
		return
	}
	r.terms[namespace+key] = destID
}

// RememberTerms folds a term importer mapping in under both the prefixed and
// the bare key.
func (r *Remapper) RememberTerms(taxonomy string, mapping map[int64]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := TermNamespace(taxonomy)
	for src, dst := range mapping {
		key := strconv.FormatInt(src, 10)
		r.terms[ns+key] = dst
		r.terms[key] = dst
	}
}

// ResolveID resolves a numeric source id.
func (r *Remapper) ResolveID(namespace string, sourceID int64) (int64, bool) {
	return r.Resolve(namespace, strconv.FormatInt(sourceID, 10))
}

// Resolve looks up sourceKey in namespace. It tries the namespaced key, then
// the bare key, then, when sourceKey is itself prefixed ("category_12"),
// strips the prefix and retries both.
func (r *Remapper) Resolve(namespace, sourceKey string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if namespace == ContentNamespace {
		id, ok := r.content[sourceKey]
		return id, ok
	}

	if id, ok := r.terms[namespace+sourceKey]; ok {
		return id, true
	}
	if id, ok := r.terms[sourceKey]; ok {
		return id, true
	}

	stripped := strings.TrimPrefix(sourceKey, namespace)
	if stripped == sourceKey {
		idx := strings.LastIndexByte(sourceKey, '_')
		if idx < 0 {
			return 0, false
		}
		stripped = sourceKey[idx+1:]
	}
	if id, ok := r.terms[namespace+stripped]; ok {
		return id, true
	}
	id, ok := r.terms[stripped]
	return id, ok
}

// Len returns the number of content and term entries.
func (r *Remapper) Len() (content, terms int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.content), len(r.terms)
}
