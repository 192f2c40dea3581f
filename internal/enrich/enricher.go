// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package enrich turns raw feed items into enriched events: entity
// extraction, summarization, sentiment, categorization, geocoding, and the
// derived scores. Each subpass can be served by a remote LLM or by the
// deterministic fallback; the pipeline itself never fails visibly.
package enrich

import (
	"context"

	"github.com/meridianops/meridian/internal/models"
)

// Enricher provides the four text subpasses. Implementations may call a
// remote model or compute locally; errors make the pipeline fall back for
// that subpass only.
type Enricher interface {
	// ExtractEntities produces the five axis lists. Empty lists are valid.
	ExtractEntities(ctx context.Context, title, text string) (models.EntityBag, error)

	// Summarize produces one to two neutral sentences, at most 320
	// characters.
	Summarize(ctx context.Context, title, text string) (string, error)

	// Sentiment classifies the text as positive, neutral, or negative.
	Sentiment(ctx context.Context, title, text string) (models.Sentiment, error)

	// Categorize maps the text onto one of the twelve categories.
	Categorize(ctx context.Context, title, text string) (models.Category, error)
}

// SummaryMaxChars bounds summaries regardless of which subpass produced
// them.
const SummaryMaxChars = 320
