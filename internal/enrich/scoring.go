// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"time"

	"github.com/meridianops/meridian/internal/models"
)

// Scoring weights and saturation points.
const (
	textLengthSaturation = 600
	entityDensityDivisor = 8.0

	relevanceBase          = 0.4
	relevanceSafetyBoost   = 0.3
	relevanceNegativeBoost = 0.1

	recencyHorizonHours     = 72.0
	multiSourceDivisor      = 3.0
	fallbackConfidenceScale = 0.65
)

// Confidence computes the confidence score from text length, entity count,
// category specificity, and source trust. degraded marks that at least one
// subpass used the deterministic fallback; the result is scaled down so
// fallback-only events stay clearly below LLM-enriched ones.
func Confidence(textLen, totalEntities int, category models.Category, sourceTrust float64, degraded bool) float64 {
	lengthFactor := minFloat(1, float64(textLen)/textLengthSaturation)
	densityFactor := minFloat(1, float64(totalEntities)/entityDensityDivisor)
	specificity := 1.0
	if category == models.CategoryOther {
		specificity = 0
	}

	score := 0.25*lengthFactor + 0.25*densityFactor + 0.30*specificity + 0.20*sourceTrust
	if degraded {
		score *= fallbackConfidenceScale
	}
	return clip01(score)
}

// Relevance computes the relevance score from category and sentiment.
func Relevance(category models.Category, sentiment models.Sentiment) float64 {
	score := relevanceBase
	if models.SafetyCategories[category] {
		score += relevanceSafetyBoost
	}
	if sentiment == models.SentimentNegative {
		score += relevanceNegativeBoost
	}
	return clip01(score)
}

// Priority combines relevance, confidence, recency, and multi-source
// corroboration.
func Priority(relevance, confidence float64, age time.Duration, sourceCount int) float64 {
	recency := maxFloat(0, 1-age.Hours()/recencyHorizonHours)
	multiSource := minFloat(1, float64(sourceCount-1)/multiSourceDivisor)
	return clip01(0.5*relevance + 0.3*confidence + 0.1*recency + 0.1*multiSource)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
