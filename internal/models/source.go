// Pressimport - Bulk Content Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pressimport

package models

// Payload is one logical import unit produced by the ingestor.
type Payload struct {
	SiteInfo   *SiteInfo     `json:"site_info,omitempty"`
	Posts      []ContentItem `json:"posts"`
	Categories []TermItem    `json:"categories,omitempty"`
	Tags       []TermItem    `json:"tags,omitempty"`
}

// SiteInfo describes the site an export was taken from.
type SiteInfo struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Version     string `json:"version,omitempty"`
	ExportedAt  string `json:"export_date,omitempty"`
}

// ContentItem is a source post, page or other recognized content type.
type ContentItem struct {
	ID            int64              `json:"id"`
	Type          string             `json:"type"`
	Title         string             `json:"title"`
	Slug          string             `json:"slug"`
	Content       string             `json:"content"`
	Excerpt       string             `json:"excerpt,omitempty"`
	Status        string             `json:"status,omitempty"`
	Author        string             `json:"author,omitempty"`
	Date          string             `json:"date,omitempty"`
	Modified      string             `json:"modified,omitempty"`
	ParentID      int64              `json:"parent,omitempty"`
	MenuOrder     int                `json:"menu_order,omitempty"`
	Categories    []int64            `json:"categories,omitempty"`
	Tags          []int64            `json:"tags,omitempty"`
	Terms         map[string][]int64 `json:"terms,omitempty"`
	Meta          map[string]any     `json:"meta,omitempty"`
	FeaturedImage *ImageRef          `json:"featured_image,omitempty"`
	Images        []ImageRef         `json:"images,omitempty"`
	Comments      []Comment          `json:"comments,omitempty"`
	SEO           *SEOMeta           `json:"seo,omitempty"`
}

// TermItem is a source taxonomy term. Taxonomy is implied by the list the
// term came from unless set explicitly.
type TermItem struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description,omitempty"`
	Parent      int64    `json:"parent,omitempty"`
	Taxonomy    string   `json:"taxonomy,omitempty"`
	SEO         *SEOMeta `json:"seo,omitempty"`
}

// Comment is a source comment attached to a content item.
type Comment struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parent,omitempty"`
	Author      string `json:"author"`
	AuthorEmail string `json:"author_email,omitempty"`
	AuthorURL   string `json:"author_url,omitempty"`
	Date        string `json:"date,omitempty"`
	Content     string `json:"content"`
	Approved    bool   `json:"approved"`
}

// ImageRef references external media by URL.
type ImageRef struct {
	URL   string `json:"url"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// SEOMeta carries search metadata for items and terms.
type SEOMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Taxonomy names for the two built-in term lists.
const (
	TaxonomyCategory = "category"
	TaxonomyTag      = "post_tag"
)
