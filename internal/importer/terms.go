// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/pressimport/internal/database"
	"github.com/tomtom215/pressimport/internal/logging"
	"github.com/tomtom215/pressimport/internal/metrics"
	"github.com/tomtom215/pressimport/internal/models"
)

// TermImporter creates or updates taxonomy terms with their source ids.
type TermImporter struct {
	store TermStore
}

// NewTermImporter creates a term importer.
func NewTermImporter(store TermStore) *TermImporter {
	return &TermImporter{store: store}
}

// ImportTerms imports terms into taxonomy and returns source id to
// destination id for every term it placed. Malformed terms are skipped.
func (ti *TermImporter) ImportTerms(ctx context.Context, terms []models.TermItem, taxonomy string) (map[int64]int64, models.Totals) {
	mapping := make(map[int64]int64, len(terms))
	var totals models.Totals

	for i := range terms {
		totals.Total++
		destID, action, err := ti.importTerm(ctx, &terms[i], taxonomy, mapping)
		logger := logging.Ctx(ctx).With().
			Int64("source_id", terms[i].ID).
			Str("name", terms[i].Name).
			Str("taxonomy", taxonomy).
			Str("action", string(action)).
			Logger()

		switch {
		case err != nil:
			logger.Warn().Err(err).Msg("Term not imported")
			if action == ActionFailed {
				totals.Failed++
			} else {
				totals.Skipped++
			}
			continue
		case action == ActionUpdated || action == ActionExisting:
			totals.Updated++
		default:
			totals.New++
		}
		mapping[terms[i].ID] = destID
		logger.Debug().Int64("dest_id", destID).Msg("Term imported")
	}

	metrics.RecordItems("term", "new", totals.New)
	metrics.RecordItems("term", "updated", totals.Updated)
	metrics.RecordItems("term", "skipped", totals.Skipped)
	metrics.RecordItems("term", "failed", totals.Failed)
	return mapping, totals
}

func (ti *TermImporter) importTerm(ctx context.Context, src *models.TermItem, taxonomy string, mapping map[int64]int64) (int64, Action, error) {
	slug := strings.TrimSpace(src.Slug)
	if src.ID <= 0 || src.Name == "" || slug == "" {
		return 0, ActionSkipped, fmt.Errorf("invalid term: id %d, name %q, slug %q", src.ID, src.Name, src.Slug)
	}

	t := &database.Term{
		ID:          src.ID,
		Name:        src.Name,
		Slug:        slug,
		Taxonomy:    taxonomy,
		Description: src.Description,
		Parent:      src.Parent,
	}
	if p, ok := mapping[src.Parent]; ok {
		t.Parent = p
	}

	var (
		destID int64
		action Action
	)
	existing, err := ti.store.GetTerm(ctx, src.ID)
	switch {
	case err == nil && existing.Taxonomy == taxonomy:
		if err := ti.store.UpdateTerm(ctx, t); err != nil {
			return 0, ActionFailed, fmt.Errorf("update term: %w", err)
		}
		destID, action = src.ID, ActionUpdated

	case err == nil:
		// The id belongs to another taxonomy.
		t.ID = 0
		id, cerr := ti.store.CreateTerm(ctx, t)
		var slugErr *database.SlugExistsError
		switch {
		case errors.As(cerr, &slugErr):
			destID, action = slugErr.ID, ActionExisting
		case cerr != nil:
			return 0, ActionFailed, fmt.Errorf("create term: %w", cerr)
		default:
			destID, action = id, ActionCreated
		}

	case errors.Is(err, database.ErrNotFound):
		id, ferr := ti.store.ForceInsertTerm(ctx, t)
		if ferr != nil {
			return 0, ActionFailed, fmt.Errorf("force insert term: %w", ferr)
		}
		destID, action = id, ActionForceInsert

	default:
		return 0, ActionFailed, fmt.Errorf("look up term: %w", err)
	}

	if src.SEO != nil {
		ti.applySEO(ctx, destID, src.SEO)
	}
	return destID, action, nil
}

// applySEO writes both plugin key sets so either consumer finds them.
func (ti *TermImporter) applySEO(ctx context.Context, termID int64, seo *models.SEOMeta) {
	pairs := [][2]string{
		{MetaYoastTitle, seo.Title},
		{MetaYoastDesc, seo.Description},
		{MetaRankMathTitle, seo.Title},
		{MetaRankMathDesc, seo.Description},
	}
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		if err := ti.store.SetTermMeta(ctx, termID, kv[0], kv[1]); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("term_id", termID).Str("key", kv[0]).Msg("Failed to set term SEO meta")
		}
	}
}
