// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package models

import (
	"time"
)

// Role is a user's role within an organization.
type Role string

const (
	RoleViewer  Role = "viewer"
	RoleAnalyst Role = "analyst"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleViewer || r == RoleAnalyst || r == RoleAdmin
}

// AtLeast reports whether r grants the privileges of min. Ordering:
// viewer < analyst < admin.
func (r Role) AtLeast(min Role) bool {
	rank := map[Role]int{RoleViewer: 1, RoleAnalyst: 2, RoleAdmin: 3}
	return rank[r] >= rank[min]
}

// Organization is the tenant boundary. Every org-scoped row carries its ID.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is an authenticated principal. Users join organizations through
// memberships; a user's current org is their first membership unless the
// request supplies a selector.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Membership joins a user to an organization with a role.
type Membership struct {
	UserID int64 `json:"user_id"`
	OrgID  int64 `json:"org_id"`
	Role   Role  `json:"role"`
}

// OrgSettings is the per-organization configuration record, one row per org.
// GET auto-creates defaults when absent; PUT merges provided fields; RESET
// deletes the row.
type OrgSettings struct {
	OrgID int64 `json:"org_id"`

	// Default filters applied by clients
	DefaultCategories   []Category  `json:"default_categories,omitempty"`
	DefaultSentiments   []Sentiment `json:"default_sentiments,omitempty"`
	DefaultMinRelevance float64     `json:"default_min_relevance"`

	// Alerting
	HighPriorityThreshold float64     `json:"high_priority_threshold"`
	AlertCategories       []Category  `json:"alert_categories,omitempty"`
	AlertSentimentTypes   []Sentiment `json:"alert_sentiment_types,omitempty"`

	// Feature flags
	EmailAlerts  bool `json:"email_alerts"`
	Clustering   bool `json:"clustering"`
	Feedback     bool `json:"feedback"`
	AuditLogging bool `json:"audit_logging"`

	// Display
	MapZoom       int     `json:"map_zoom"`
	MapCenterLat  float64 `json:"map_center_lat"`
	MapCenterLon  float64 `json:"map_center_lon"`
	EventsPerPage int     `json:"events_per_page"`

	// Retention. EventRetentionDays nil means the server default applies.
	// AuditRetentionDays has a floor of 30.
	EventRetentionDays *int `json:"event_retention_days,omitempty"`
	AuditRetentionDays int  `json:"audit_retention_days"`

	// Regional
	FocusRegions   []string `json:"focus_regions,omitempty"`
	ExcludeRegions []string `json:"exclude_regions,omitempty"`

	// CustomConfig is an opaque extension map.
	CustomConfig map[string]interface{} `json:"custom_config,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultOrgSettings returns the settings applied when an org has no stored
// row.
func DefaultOrgSettings(orgID int64) *OrgSettings {
	return &OrgSettings{
		OrgID:                 orgID,
		DefaultMinRelevance:   0,
		HighPriorityThreshold: 0.7,
		EmailAlerts:           false,
		Clustering:            true,
		Feedback:              true,
		AuditLogging:          true,
		MapZoom:               4,
		EventsPerPage:         50,
		AuditRetentionDays:    365,
	}
}
