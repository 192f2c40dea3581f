// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package models

import (
	"testing"
	"time"
)

func TestCategoryIsValid(t *testing.T) {
	if len(Categories) != 12 {
		t.Fatalf("expected 12 categories, got %d", len(Categories))
	}
	for _, c := range Categories {
		if !c.IsValid() {
			t.Errorf("category %q should be valid", c)
		}
	}
	if Category("espionage").IsValid() {
		t.Error("unknown category should be invalid")
	}
	if Category("").IsValid() {
		t.Error("empty category should be invalid")
	}
}

func TestSafetyCategories(t *testing.T) {
	want := []Category{
		CategoryCrime, CategoryProtest, CategoryReligiousFreedom,
		CategoryHealth, CategoryMigration, CategoryInfrastructure,
	}
	for _, c := range want {
		if !SafetyCategories[c] {
			t.Errorf("%q should be in the safety set", c)
		}
	}
	if SafetyCategories[CategoryWeather] {
		t.Error("weather is not a safety category")
	}
	if len(SafetyCategories) != 6 {
		t.Errorf("safety set size = %d, want 6", len(SafetyCategories))
	}
}

func TestSentimentIsValid(t *testing.T) {
	for _, s := range []Sentiment{SentimentPositive, SentimentNeutral, SentimentNegative} {
		if !s.IsValid() {
			t.Errorf("sentiment %q should be valid", s)
		}
	}
	if Sentiment("mixed").IsValid() {
		t.Error("unknown sentiment should be invalid")
	}
}

func TestEntityBagTotal(t *testing.T) {
	bag := EntityBag{
		Locations:     []string{"Brussels", "Antwerp"},
		Organizations: []string{"EU Commission"},
		Groups:        nil,
		Topics:        []string{"migration"},
		Keywords:      []string{"protest", "policy"},
	}
	if got := bag.Total(); got != 6 {
		t.Errorf("Total() = %d, want 6", got)
	}
	if (EntityBag{}).Total() != 0 {
		t.Error("empty bag total should be 0")
	}
}

func TestEventHelpers(t *testing.T) {
	e := &Event{}
	if e.IsEnriched() {
		t.Error("event without enriched_at should not be enriched")
	}
	if e.HasCoordinates() {
		t.Error("event without coords should not be mappable")
	}

	now := time.Now()
	lat, lon := 50.85, 4.35
	e.EnrichedAt = &now
	e.LocationLat = &lat
	e.LocationLon = &lon

	if !e.IsEnriched() || !e.HasCoordinates() {
		t.Error("expected enriched, mappable event")
	}

	// one coordinate is not enough
	e2 := &Event{LocationLat: &lat}
	if e2.HasCoordinates() {
		t.Error("single coordinate should not count as mappable")
	}
}

func TestRoleOrdering(t *testing.T) {
	tests := []struct {
		r, min Role
		want   bool
	}{
		{RoleViewer, RoleViewer, true},
		{RoleViewer, RoleAnalyst, false},
		{RoleAnalyst, RoleViewer, true},
		{RoleAnalyst, RoleAdmin, false},
		{RoleAdmin, RoleAdmin, true},
		{RoleAdmin, RoleViewer, true},
	}
	for _, tt := range tests {
		if got := tt.r.AtLeast(tt.min); got != tt.want {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.r, tt.min, got, tt.want)
		}
	}
}

func TestDossierTypeIsValid(t *testing.T) {
	for _, d := range DossierTypes {
		if !d.IsValid() {
			t.Errorf("dossier type %q should be valid", d)
		}
	}
	if DossierType("vehicle").IsValid() {
		t.Error("unknown dossier type should be invalid")
	}
}

func TestPriorityAndFeedbackEnums(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if !p.IsValid() {
			t.Errorf("priority %q should be valid", p)
		}
	}
	if Priority("urgent").IsValid() {
		t.Error("unknown priority should be invalid")
	}

	for _, f := range []FeedbackType{FeedbackRelevant, FeedbackIrrelevant, FeedbackImportant, FeedbackMisclassified} {
		if !f.IsValid() {
			t.Errorf("feedback type %q should be valid", f)
		}
	}
	if FeedbackType("spam").IsValid() {
		t.Error("unknown feedback type should be invalid")
	}
}

func TestDefaultOrgSettings(t *testing.T) {
	s := DefaultOrgSettings(42)
	if s.OrgID != 42 {
		t.Errorf("org_id = %d, want 42", s.OrgID)
	}
	if s.HighPriorityThreshold != 0.7 {
		t.Errorf("high_priority_threshold = %v, want 0.7", s.HighPriorityThreshold)
	}
	if !s.AuditLogging || !s.Clustering || !s.Feedback {
		t.Error("audit_logging, clustering, feedback should default on")
	}
	if s.AuditRetentionDays < 30 {
		t.Errorf("audit_retention_days = %d, want >= 30", s.AuditRetentionDays)
	}
	if s.EventRetentionDays != nil {
		t.Error("event_retention_days should default to nil (server default)")
	}
}
