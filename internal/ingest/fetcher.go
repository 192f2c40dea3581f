// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package ingest fetches configured sources, normalizes feed items, runs
// them through enrichment, and persists the results. One worker serves one
// source type; all workers share the fetcher contract below.
package ingest

import (
	"context"
	"time"

	"github.com/meridianops/meridian/internal/models"
)

// RawItem is one normalized feed entry before ingestion.
type RawItem struct {
	Title       string
	Link        string
	Description string
	PublishedAt time.Time

	// LocationHint is a feed-level location string when the format carries
	// one (gov and crisis feeds); empty for plain RSS.
	LocationHint string

	// GUID is the feed-provided identity, if any. Deduplication uses the
	// link and published time, not the GUID.
	GUID string
}

// SourceFetcher retrieves items from one source. Implementations bound
// their own network timeouts; items older than since may be skipped.
type SourceFetcher interface {
	Fetch(ctx context.Context, source *models.Source, since time.Time) ([]RawItem, error)
}
