// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package dossier

import (
	"context"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

func coord(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestOrg(t *testing.T, s *store.Store) int64 {
	t.Helper()
	org := &models.Organization{Name: "Test Mission"}
	if err := s.CreateOrganization(context.Background(), org); err != nil {
		t.Fatalf("create org: %v", err)
	}
	return org.ID
}

func seedEvent(t *testing.T, s *store.Store, title string, ts time.Time, e store.Enrichment) string {
	t.Helper()
	ctx := context.Background()
	eventID, _, err := s.UpsertEvent(ctx, store.RawEvent{
		SourceURL:   "https://feeds.example.com/" + title,
		PublishedAt: ts,
		RawTitle:    title,
		Timestamp:   ts,
	})
	if err != nil {
		t.Fatalf("upsert event: %v", err)
	}
	if _, err := s.SaveEnrichment(ctx, eventID, e); err != nil {
		t.Fatalf("save enrichment: %v", err)
	}
	return eventID
}

func TestMatchesLocationDossier(t *testing.T) {
	d := &models.Dossier{
		Name:        "Brussels",
		DossierType: models.DossierTypeLocation,
		Aliases:     []string{"Bruxelles"},
		Lat:         coord(50.8503),
		Lon:         coord(4.3517),
	}
	tests := []struct {
		name  string
		event models.Event
		want  bool
	}{
		{
			"entity name match",
			models.Event{Entities: models.EntityBag{Locations: []string{"brussels"}}},
			true,
		},
		{
			"alias match",
			models.Event{Entities: models.EntityBag{Locations: []string{"BRUXELLES"}}},
			true,
		},
		{
			"location_name match",
			models.Event{LocationName: "Brussels"},
			true,
		},
		{
			// Leuven is about 26 km out; Mechelen is about 23 km.
			"coordinates inside radius",
			models.Event{LocationLat: coord(51.0259), LocationLon: coord(4.4776)},
			true,
		},
		{
			"coordinates outside radius",
			models.Event{LocationLat: coord(51.2194), LocationLon: coord(4.4025)},
			false,
		},
		{
			"no overlap",
			models.Event{Entities: models.EntityBag{Locations: []string{"Antwerp"}}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(d, &tt.event); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesEntityAxes(t *testing.T) {
	ev := &models.Event{Entities: models.EntityBag{
		Organizations: []string{"Interior Ministry"},
		Groups:        []string{"Liberation Front"},
		Topics:        []string{"migration"},
	}}
	tests := []struct {
		name    string
		dossier models.Dossier
		want    bool
	}{
		{"organization hit", models.Dossier{Name: "interior ministry", DossierType: models.DossierTypeOrganization}, true},
		{"organization wrong axis", models.Dossier{Name: "Liberation Front", DossierType: models.DossierTypeOrganization}, false},
		{"group hit", models.Dossier{Name: "Liberation Front", DossierType: models.DossierTypeGroup}, true},
		{"topic hit", models.Dossier{Name: "Migration", DossierType: models.DossierTypeTopic}, true},
		{"topic miss", models.Dossier{Name: "health", DossierType: models.DossierTypeTopic}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(&tt.dossier, ev); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesPersonRequiresOfficial(t *testing.T) {
	ev := &models.Event{Entities: models.EntityBag{
		Keywords: []string{"Emmanuel Macron", "Jane Smith"},
	}}

	official := &models.Dossier{Name: "Emmanuel Macron", DossierType: models.DossierTypePerson}
	if !Matches(official, ev) {
		t.Error("official on the gazetteer should match")
	}

	private := &models.Dossier{Name: "Jane Smith", DossierType: models.DossierTypePerson}
	if Matches(private, ev) {
		t.Error("non-official person dossier must never match")
	}
}

func TestIsPublicOfficial(t *testing.T) {
	if !IsPublicOfficial("emmanuel MACRON") {
		t.Error("lookup should be case-insensitive")
	}
	if IsPublicOfficial("Jane Smith") {
		t.Error("unknown name should not be an official")
	}
}

func TestApplyEventUpdatesStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orgID := newTestOrg(t, s)
	now := time.Now().UTC()

	d := &models.Dossier{
		OrgID:       orgID,
		Name:        "Brussels",
		DossierType: models.DossierTypeLocation,
	}
	if err := s.CreateDossier(ctx, d); err != nil {
		t.Fatalf("create dossier: %v", err)
	}

	protestID := seedEvent(t, s, "Protest in Brussels over migration policy", now.Add(-2*time.Hour), store.Enrichment{
		Summary:   "Thousands marched through the city center.",
		Category:  models.CategoryProtest,
		Sentiment: models.SentimentNegative,
		Entities:  models.EntityBag{Locations: []string{"Brussels"}},
	})
	// An old matched event counts all-time but not in either window.
	seedEvent(t, s, "Brussels transit strike last quarter", now.Add(-40*24*time.Hour), store.Enrichment{
		Summary:   "Services were disrupted.",
		Category:  models.CategoryInfrastructure,
		Sentiment: models.SentimentNeutral,
		Entities:  models.EntityBag{Locations: []string{"Brussels"}},
	})
	// Unrelated event.
	seedEvent(t, s, "Cholera outbreak spreads in Khartoum", now.Add(-time.Hour), store.Enrichment{
		Summary:   "Hospitals report rising cases.",
		Category:  models.CategoryHealth,
		Sentiment: models.SentimentNegative,
		Entities:  models.EntityBag{Locations: []string{"Khartoum"}},
	})

	m := NewMatcher(s)
	protest, err := s.GetEvent(ctx, protestID)
	if err != nil {
		t.Fatalf("load protest event: %v", err)
	}

	matched, err := m.ApplyEvent(ctx, protest)
	if err != nil {
		t.Fatalf("apply event: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != d.ID {
		t.Fatalf("matched = %+v", matched)
	}

	got, err := s.GetDossier(ctx, orgID, d.ID)
	if err != nil {
		t.Fatalf("get dossier: %v", err)
	}
	if got.EventCount != 2 {
		t.Errorf("event_count = %d, want 2", got.EventCount)
	}
	if got.Count7d != 1 || got.Count30d != 1 {
		t.Errorf("windows = 7d:%d 30d:%d, want 1/1", got.Count7d, got.Count30d)
	}
	if got.CategoryBreakdown["protest"] != 1 {
		t.Errorf("category breakdown = %v", got.CategoryBreakdown)
	}
	if got.SentimentBreakdown["negative"] != 1 {
		t.Errorf("sentiment breakdown = %v", got.SentimentBreakdown)
	}
	if got.LastEventAt == nil || !got.LastEventAt.Equal(protest.Timestamp) {
		t.Errorf("last_event_at = %v, want %v", got.LastEventAt, protest.Timestamp)
	}
}

func TestRefreshDirtyAfterRetention(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orgID := newTestOrg(t, s)
	now := time.Now().UTC()

	d := &models.Dossier{OrgID: orgID, Name: "Brussels", DossierType: models.DossierTypeLocation}
	if err := s.CreateDossier(ctx, d); err != nil {
		t.Fatalf("create dossier: %v", err)
	}
	seedEvent(t, s, "Protest in Brussels over migration policy", now.Add(-48*time.Hour), store.Enrichment{
		Summary:   "Thousands marched.",
		Category:  models.CategoryProtest,
		Sentiment: models.SentimentNegative,
		Entities:  models.EntityBag{Locations: []string{"Brussels"}},
	})

	m := NewMatcher(s)
	if err := m.Recompute(ctx, d); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	got, _ := s.GetDossier(ctx, orgID, d.ID)
	if got.EventCount != 1 {
		t.Fatalf("event_count = %d, want 1", got.EventCount)
	}

	// Retention removes the event and flags stats dirty.
	if _, err := s.SoftDeleteExpired(ctx, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if err := s.MarkAllDossiersDirty(ctx); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}

	refreshed, err := m.RefreshDirty(ctx)
	if err != nil {
		t.Fatalf("refresh dirty: %v", err)
	}
	if refreshed != 1 {
		t.Errorf("refreshed = %d, want 1", refreshed)
	}

	got, _ = s.GetDossier(ctx, orgID, d.ID)
	if got.EventCount != 0 || got.Count7d != 0 || got.Count30d != 0 {
		t.Errorf("stats after retention = %+v", got)
	}
	dirty, _ := s.ListDirtyDossiers(ctx)
	if len(dirty) != 0 {
		t.Errorf("dirty dossiers remain: %d", len(dirty))
	}
}
