// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package realtime fans newly persisted events and triggered alerts out to
// long-lived websocket clients, each filtered by the client's subscription.
package realtime

import (
	"strings"

	"github.com/meridianops/meridian/internal/models"
)

// SubscriptionFilter narrows which events a client receives. Zero-valued
// fields do not constrain.
type SubscriptionFilter struct {
	Regions        []string          `json:"regions,omitempty"`
	Categories     []models.Category `json:"categories,omitempty"`
	MinThreatLevel float64           `json:"min_threat_level,omitempty"`
	MinRelevance   float64           `json:"min_relevance,omitempty"`
}

// Matches reports whether the event passes the filter.
func (f *SubscriptionFilter) Matches(ev *models.Event) bool {
	if f == nil {
		return true
	}
	if ev.PriorityScore < f.MinThreatLevel {
		return false
	}
	if ev.RelevanceScore < f.MinRelevance {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, ev.Category) {
		return false
	}
	if len(f.Regions) > 0 && !matchesRegion(f.Regions, ev) {
		return false
	}
	return true
}

func containsCategory(categories []models.Category, c models.Category) bool {
	for _, v := range categories {
		if v == c {
			return true
		}
	}
	return false
}

// matchesRegion checks the event's location name, admin region, and location
// entities against the subscribed regions, case-insensitively.
func matchesRegion(regions []string, ev *models.Event) bool {
	names := make([]string, 0, len(ev.Entities.Locations)+2)
	if ev.LocationName != "" {
		names = append(names, ev.LocationName)
	}
	if ev.AdminRegion != "" {
		names = append(names, ev.AdminRegion)
	}
	names = append(names, ev.Entities.Locations...)

	for _, region := range regions {
		r := strings.ToLower(strings.TrimSpace(region))
		if r == "" {
			continue
		}
		for _, n := range names {
			if strings.ToLower(strings.TrimSpace(n)) == r {
				return true
			}
		}
	}
	return false
}
