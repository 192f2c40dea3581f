// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/meridianops/meridian/internal/models"
)

// RSSFetcher retrieves RSS and Atom feeds. It also serves the gov and NGO
// feed types, which publish standard RSS with category metadata.
type RSSFetcher struct {
	client  *http.Client
	timeout time.Duration
}

var _ SourceFetcher = (*RSSFetcher)(nil)

// NewRSSFetcher creates a fetcher with a bounded per-request timeout.
func NewRSSFetcher(timeout time.Duration) *RSSFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RSSFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch retrieves and parses the source's feed. Items without a usable
// timestamp are stamped with the fetch time; items published before since
// are skipped.
func (f *RSSFetcher) Fetch(ctx context.Context, source *models.Source, since time.Time) ([]RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.Client = f.client

	feed, err := parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", source.URL, err)
	}

	now := time.Now().UTC()
	items := make([]RawItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		published := itemTime(entry, now)
		if !since.IsZero() && published.Before(since) {
			continue
		}
		items = append(items, RawItem{
			Title:       strings.TrimSpace(entry.Title),
			Link:        strings.TrimSpace(entry.Link),
			Description: itemBody(entry),
			PublishedAt: published,
			GUID:        entry.GUID,
		})
	}
	return items, nil
}

// itemTime prefers the published timestamp, then updated, then fetch time.
func itemTime(entry *gofeed.Item, now time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return now
}

// itemBody prefers full content over the description.
func itemBody(entry *gofeed.Item) string {
	if body := strings.TrimSpace(entry.Content); body != "" {
		return body
	}
	return strings.TrimSpace(entry.Description)
}
