// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package models

import (
	"time"
)

// Category classifies an intelligence event.
type Category string

// Event categories. Other is the terminal fallback when no specific
// category applies.
const (
	CategoryProtest          Category = "protest"
	CategoryCrime            Category = "crime"
	CategoryReligiousFreedom Category = "religious_freedom"
	CategoryCulturalTension  Category = "cultural_tension"
	CategoryPolitical        Category = "political"
	CategoryInfrastructure   Category = "infrastructure"
	CategoryHealth           Category = "health"
	CategoryMigration        Category = "migration"
	CategoryEconomic         Category = "economic"
	CategoryWeather          Category = "weather"
	CategoryCommunityEvent   Category = "community_event"
	CategoryOther            Category = "other"
)

// Categories lists every valid event category.
var Categories = []Category{
	CategoryProtest,
	CategoryCrime,
	CategoryReligiousFreedom,
	CategoryCulturalTension,
	CategoryPolitical,
	CategoryInfrastructure,
	CategoryHealth,
	CategoryMigration,
	CategoryEconomic,
	CategoryWeather,
	CategoryCommunityEvent,
	CategoryOther,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// SafetyCategories are the categories that boost relevance scoring.
var SafetyCategories = map[Category]bool{
	CategoryCrime:            true,
	CategoryProtest:          true,
	CategoryReligiousFreedom: true,
	CategoryHealth:           true,
	CategoryMigration:        true,
	CategoryInfrastructure:   true,
}

// Sentiment is the overall tone of an event's source text.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// IsValid reports whether s is a known sentiment.
func (s Sentiment) IsValid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// EntityBag holds extracted entities across five axes. Axes may be empty but
// never nil after enrichment.
type EntityBag struct {
	Locations     []string `json:"locations"`
	Organizations []string `json:"organizations"`
	Groups        []string `json:"groups"`
	Topics        []string `json:"topics"`
	Keywords      []string `json:"keywords"`
}

// Total returns the entity count across all axes.
func (e EntityBag) Total() int {
	return len(e.Locations) + len(e.Organizations) + len(e.Groups) + len(e.Topics) + len(e.Keywords)
}

// Event is the core unit: a normalized, enriched, geolocated intelligence
// event. Events are GLOBAL; no org_id.
//
// Identity and provenance fields are write-once at ingest. Enrichment fields
// are set exactly once (idempotent retry allowed until EnrichedAt is set).
// After enrichment only the fusion engine (ClusterID, SourceCount,
// MultiSourceBoost via CAS on RowVersion) and the retention sweep
// (DeletedAt) mutate the row.
type Event struct {
	EventID string `json:"event_id"`

	// Provenance
	SourceID    int64     `json:"source_id"`
	SourceURL   string    `json:"source_url"`
	FetchedAt   time.Time `json:"fetched_at"`
	PublishedAt time.Time `json:"published_at"`
	RawTitle    string    `json:"raw_title"`
	RawText     string    `json:"raw_text,omitempty"`

	// Location (nullable coordinates; an event without coords is valid but
	// not mappable)
	LocationName string   `json:"location_name,omitempty"`
	LocationLat  *float64 `json:"location_lat,omitempty"`
	LocationLon  *float64 `json:"location_lon,omitempty"`
	AdminRegion  string   `json:"admin_region,omitempty"`

	// Temporal: event time, approximated by published_at when unknown.
	Timestamp time.Time `json:"timestamp"`

	// Enrichment
	Summary   string    `json:"summary,omitempty"`
	Category  Category  `json:"category,omitempty"`
	Sentiment Sentiment `json:"sentiment,omitempty"`
	Entities  EntityBag `json:"entities"`

	// Scores, each in [0,1]
	ConfidenceScore float64 `json:"confidence_score"`
	RelevanceScore  float64 `json:"relevance_score"`
	PriorityScore   float64 `json:"priority_score"`

	// Fusion
	ClusterID        *string `json:"cluster_id,omitempty"`
	SourceCount      int     `json:"source_count"`
	MultiSourceBoost bool    `json:"multi_source_boost"`

	// RawMetadata carries fetcher extras, including published_at_original
	// when clock-skew clamping applied.
	RawMetadata map[string]interface{} `json:"raw_metadata,omitempty"`

	// Lifecycle
	RowVersion int        `json:"-"`
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`
	DeletedAt  *time.Time `json:"-"`
}

// IsEnriched reports whether the enrichment pass has completed for this
// event.
func (e *Event) IsEnriched() bool {
	return e.EnrichedAt != nil
}

// HasCoordinates reports whether the event is mappable.
func (e *Event) HasCoordinates() bool {
	return e.LocationLat != nil && e.LocationLon != nil
}

// StabilityTrend is the direction of cluster growth over time.
type StabilityTrend string

const (
	TrendImproving StabilityTrend = "improving"
	TrendStable    StabilityTrend = "stable"
	TrendWorsening StabilityTrend = "worsening"
	TrendUnknown   StabilityTrend = "unknown"
)

// Cluster is a group of events believed to describe the same real-world
// occurrence from multiple sources. Clusters are global and owned by the
// fusion engine. A cluster has >= 2 members; singleton events keep
// cluster_id NULL.
type Cluster struct {
	ClusterID        string         `json:"cluster_id"`
	CanonicalEventID string         `json:"canonical_event_id"`
	MemberCount      int            `json:"member_count"`
	MergedSummary    string         `json:"merged_summary"`
	MergedEntities   EntityBag      `json:"merged_entities"`
	EarliestTS       time.Time      `json:"earliest_timestamp"`
	LatestTS         time.Time      `json:"latest_timestamp"`
	AvgConfidence    float64        `json:"avg_confidence"`
	AvgRelevance     float64        `json:"avg_relevance"`
	AvgPriority      float64        `json:"avg_priority"`
	StabilityTrend   StabilityTrend `json:"stability_trend"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SourceType classifies a feed source.
type SourceType string

const (
	SourceTypeRSS          SourceType = "rss"
	SourceTypeNewsAPI      SourceType = "news_api"
	SourceTypeGovFeed      SourceType = "gov_feed"
	SourceTypeCrisisFeed   SourceType = "crisis_feed"
	SourceTypeNGOFeed      SourceType = "ngo_feed"
	SourceTypeSocialPublic SourceType = "social_public"
)

// SourceTypes lists every valid source type.
var SourceTypes = []SourceType{
	SourceTypeRSS,
	SourceTypeNewsAPI,
	SourceTypeGovFeed,
	SourceTypeCrisisFeed,
	SourceTypeNGOFeed,
	SourceTypeSocialPublic,
}

// IsValid reports whether t is a known source type.
func (t SourceType) IsValid() bool {
	for _, v := range SourceTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Source is a global feed registration, created by operators.
type Source struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	Name          string     `json:"name"`
	SourceType    SourceType `json:"source_type"`
	IsActive      bool       `json:"is_active"`
	TrustScore    float64    `json:"trust_score"`
	FetchInterval int        `json:"fetch_interval_minutes,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// DeadLetters records payloads that exhausted store-write retries.
	DeadLetters []DeadLetter `json:"dead_letters,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// DeadLetter is one feed item that could not be persisted after retries.
type DeadLetter struct {
	SourceURL   string    `json:"source_url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Error       string    `json:"error"`
	FailedAt    time.Time `json:"failed_at"`
}
