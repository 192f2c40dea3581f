// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package fusion groups events that describe the same real-world occurrence
// from multiple sources. Similarity blends location, text, and entity
// overlap; the engine runs an agglomerative pass over a trailing window.
package fusion

import (
	"math"
	"strings"
	"time"

	"github.com/meridianops/meridian/internal/models"
)

const (
	locationWeight = 0.4
	textWeight     = 0.4
	entityWeight   = 0.2

	// locationDecayKm is the distance at which the coordinate score
	// reaches zero.
	locationDecayKm = 50.0

	// sharedNameScore applies when coordinates are missing on either side
	// but both events name the same place.
	sharedNameScore = 0.7

	earthRadiusKm = 6371.0
)

// textStopwords are excluded from the text-overlap word sets. Short
// function words dominate summaries and would inflate Jaccard scores.
var textStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "over": {},
	"that": {}, "the": {}, "their": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "with": {},
}

// Similarity scores two enriched events in [0,1]. Events outside the time
// window or in different categories never match.
func Similarity(a, b *models.Event, window time.Duration) float64 {
	if a.Category != b.Category {
		return 0
	}
	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap > window {
		return 0
	}

	l := locationScore(a, b)
	t := jaccard(textWords(a), textWords(b))
	e := jaccard(entityNames(a), entityNames(b))
	return locationWeight*l + textWeight*t + entityWeight*e
}

// locationScore prefers coordinate distance and falls back to a shared
// normalized place name when either side is unmapped.
func locationScore(a, b *models.Event) float64 {
	if a.HasCoordinates() && b.HasCoordinates() {
		km := haversineKm(*a.LocationLat, *a.LocationLon, *b.LocationLat, *b.LocationLon)
		return math.Max(0, 1-km/locationDecayKm)
	}
	if sharesLocationName(a, b) {
		return sharedNameScore
	}
	return 0
}

func sharesLocationName(a, b *models.Event) bool {
	names := make(map[string]struct{}, len(a.Entities.Locations)+1)
	if n := normalizeName(a.LocationName); n != "" {
		names[n] = struct{}{}
	}
	for _, loc := range a.Entities.Locations {
		if n := normalizeName(loc); n != "" {
			names[n] = struct{}{}
		}
	}
	if n := normalizeName(b.LocationName); n != "" {
		if _, ok := names[n]; ok {
			return true
		}
	}
	for _, loc := range b.Entities.Locations {
		if n := normalizeName(loc); n != "" {
			if _, ok := names[n]; ok {
				return true
			}
		}
	}
	return false
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// textWords is the lowercased word set of summary plus raw title, minus
// stopwords.
func textWords(e *models.Event) map[string]struct{} {
	words := make(map[string]struct{})
	collect := func(text string) {
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
		}) {
			if _, stop := textStopwords[w]; stop {
				continue
			}
			words[w] = struct{}{}
		}
	}
	collect(e.Summary)
	collect(e.RawTitle)
	return words
}

// entityNames is the lowercased union of locations, organizations, and
// groups.
func entityNames(e *models.Event) map[string]struct{} {
	names := make(map[string]struct{})
	for _, axis := range [][]string{e.Entities.Locations, e.Entities.Organizations, e.Entities.Groups} {
		for _, n := range axis {
			if norm := normalizeName(n); norm != "" {
				names[norm] = struct{}{}
			}
		}
	}
	return names
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}
