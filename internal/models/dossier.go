// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package models

import (
	"time"
)

// DossierType classifies the tracked subject of a dossier.
type DossierType string

const (
	DossierTypeLocation     DossierType = "location"
	DossierTypeOrganization DossierType = "organization"
	DossierTypeGroup        DossierType = "group"
	DossierTypeTopic        DossierType = "topic"

	// DossierTypePerson is restricted to designated public officials,
	// enforced by policy at creation and again in the matcher.
	DossierTypePerson DossierType = "person"
)

// DossierTypes lists every valid dossier type.
var DossierTypes = []DossierType{
	DossierTypeLocation,
	DossierTypeOrganization,
	DossierTypeGroup,
	DossierTypeTopic,
	DossierTypePerson,
}

// IsValid reports whether t is a known dossier type.
func (t DossierType) IsValid() bool {
	for _, v := range DossierTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Dossier is an ORG-SCOPED tracked subject whose statistics are derived from
// the global event stream. Statistics fields are owned by the matcher and
// recomputable from events plus the dossier definition; they are never
// hand-edited.
type Dossier struct {
	ID          int64       `json:"id"`
	OrgID       int64       `json:"org_id"`
	Name        string      `json:"name"`
	DossierType DossierType `json:"dossier_type"`
	Description string      `json:"description,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Notes       string      `json:"notes,omitempty"`

	// Optional coordinates for location dossiers; events within 25 km match.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	// Derived statistics
	EventCount         int            `json:"event_count"`
	LastEventAt        *time.Time     `json:"last_event_at,omitempty"`
	Count7d            int            `json:"count_7d"`
	Count30d           int            `json:"count_30d"`
	CategoryBreakdown  map[string]int `json:"category_breakdown,omitempty"`
	SentimentBreakdown map[string]int `json:"sentiment_breakdown,omitempty"`

	// StatsDirty marks statistics for lazy recomputation after retention
	// removed matched events.
	StatsDirty bool `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Priority labels a watchlist.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Watchlist is an ORG-SCOPED named collection of dossiers with a priority
// label. UserID, when set, marks a personal watchlist.
type Watchlist struct {
	ID         int64     `json:"id"`
	OrgID      int64     `json:"org_id"`
	UserID     *int64    `json:"user_id,omitempty"`
	Name       string    `json:"name"`
	Priority   Priority  `json:"priority"`
	DossierIDs []int64   `json:"dossier_ids"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FeedbackType classifies user feedback on an event.
type FeedbackType string

const (
	FeedbackRelevant      FeedbackType = "relevant"
	FeedbackIrrelevant    FeedbackType = "irrelevant"
	FeedbackImportant     FeedbackType = "important"
	FeedbackMisclassified FeedbackType = "misclassified"
)

// IsValid reports whether t is a known feedback type.
func (t FeedbackType) IsValid() bool {
	switch t {
	case FeedbackRelevant, FeedbackIrrelevant, FeedbackImportant, FeedbackMisclassified:
		return true
	}
	return false
}

// EventFeedback is an ORG-SCOPED user judgment about a global event.
// Ratings are 1-5 when present.
type EventFeedback struct {
	ID                int64        `json:"id"`
	EventID           string       `json:"event_id"`
	UserID            int64        `json:"user_id"`
	OrgID             int64        `json:"org_id"`
	FeedbackType      FeedbackType `json:"feedback_type"`
	AccuracyRating    *int         `json:"accuracy_rating,omitempty"`
	RelevanceRating   *int         `json:"relevance_rating,omitempty"`
	IsFalsePositive   bool         `json:"is_false_positive"`
	SuggestedCategory *Category    `json:"suggested_category,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// FeedbackStats aggregates feedback rows for an org.
type FeedbackStats struct {
	Total           int            `json:"total"`
	ByType          map[string]int `json:"by_type"`
	FalsePositives  int            `json:"false_positives"`
	AvgAccuracy     float64        `json:"avg_accuracy"`
	AvgRelevance    float64        `json:"avg_relevance"`
	MisclassifiedBy map[string]int `json:"misclassified_by_category,omitempty"`
}
