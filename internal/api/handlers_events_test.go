// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

func coord(v float64) *float64 { return &v }

type seedSpec struct {
	title     string
	summary   string
	category  models.Category
	lat, lon  *float64
	location  string
	timestamp time.Time
	relevance float64
	priority  float64
	entities  models.EntityBag
}

func seedEvent(t *testing.T, s *store.Store, spec seedSpec) string {
	t.Helper()
	ctx := context.Background()

	eventID, isNew, err := s.UpsertEvent(ctx, store.RawEvent{
		SourceURL:   "https://feeds.example.org/" + spec.title,
		PublishedAt: spec.timestamp,
		RawTitle:    spec.title,
		RawText:     spec.summary,
		Timestamp:   spec.timestamp,
	})
	if err != nil {
		t.Fatalf("upsert event: %v", err)
	}
	if !isNew {
		t.Fatalf("seed event %q collided", spec.title)
	}

	if _, err := s.SaveEnrichment(ctx, eventID, store.Enrichment{
		Summary:      spec.summary,
		Category:     spec.category,
		Sentiment:    models.SentimentNegative,
		Entities:     spec.entities,
		LocationName: spec.location,
		LocationLat:  spec.lat,
		LocationLon:  spec.lon,
		Confidence:   0.8,
		Relevance:    spec.relevance,
		Priority:     spec.priority,
	}); err != nil {
		t.Fatalf("save enrichment: %v", err)
	}
	return eventID
}

func TestListEvents(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()

	seedEvent(t, f.store, seedSpec{
		title: "Protest in Madrid", summary: "crowds gather downtown",
		category: models.CategoryProtest, location: "Madrid",
		timestamp: now.Add(-1 * time.Hour), relevance: 0.9, priority: 0.7,
	})
	seedEvent(t, f.store, seedSpec{
		title: "Flooding closes roads", summary: "heavy rain floods the ring road",
		category: models.CategoryWeather, location: "Valencia",
		timestamp: now.Add(-2 * time.Hour), relevance: 0.4, priority: 0.3,
	})

	rec, env := f.do(t, http.MethodGet, "/api/v1/events", f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Items []models.Event `json:"items"`
		Total int64          `json:"total"`
	}
	decodeData(t, env, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("total = %d, items = %d", page.Total, len(page.Items))
	}
	// Newest first.
	if page.Items[0].Category != models.CategoryProtest {
		t.Errorf("first item category = %s", page.Items[0].Category)
	}

	// Category filter.
	rec, env = f.do(t, http.MethodGet, "/api/v1/events?category=weather", f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered status = %d", rec.Code)
	}
	decodeData(t, env, &page)
	if page.Total != 1 || page.Items[0].LocationName != "Valencia" {
		t.Errorf("filtered total = %d, items = %+v", page.Total, page.Items)
	}

	// Relevance floor.
	rec, env = f.do(t, http.MethodGet, "/api/v1/events?min_relevance=0.5", f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("relevance status = %d", rec.Code)
	}
	decodeData(t, env, &page)
	if page.Total != 1 || page.Items[0].LocationName != "Madrid" {
		t.Errorf("relevance total = %d", page.Total)
	}
}

func TestListEventsRejectsBadParams(t *testing.T) {
	f := newAPIFixture(t)

	cases := map[string]string{
		"oversized page_size": "/api/v1/events?page_size=2000",
		"zero page":           "/api/v1/events?page=0",
		"unknown category":    "/api/v1/events?category=volcano",
		"bad min_relevance":   "/api/v1/events?min_relevance=2",
		"bad since":           "/api/v1/events?since=yesterday",
	}
	for name, path := range cases {
		rec, env := f.do(t, http.MethodGet, path, f.viewerToken, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
		if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("%s: error = %+v", name, env.Error)
		}
	}
}

func TestGetEvent(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()

	eventID := seedEvent(t, f.store, seedSpec{
		title: "Protest in Madrid", summary: "crowds gather downtown",
		category: models.CategoryProtest, location: "Madrid",
		timestamp: now.Add(-1 * time.Hour), relevance: 0.9, priority: 0.7,
	})

	rec, env := f.do(t, http.MethodGet, "/api/v1/events/"+eventID, f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var detail struct {
		Event   *models.Event   `json:"event"`
		Cluster *models.Cluster `json:"cluster"`
	}
	decodeData(t, env, &detail)
	if detail.Event == nil || detail.Event.EventID != eventID {
		t.Fatalf("event = %+v", detail.Event)
	}
	if detail.Cluster != nil {
		t.Errorf("singleton event carries cluster %+v", detail.Cluster)
	}

	rec, env = f.do(t, http.MethodGet, "/api/v1/events/no-such-event", f.viewerToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing event status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("missing event error = %+v", env.Error)
	}
}

func TestGetEventIncludesClusterSummary(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()

	first := seedEvent(t, f.store, seedSpec{
		title: "Protest in Madrid turns violent", summary: "Protesters clashed with police near the central station in Madrid",
		category: models.CategoryProtest, lat: coord(40.4168), lon: coord(-3.7038),
		timestamp: now.Add(-2 * time.Hour), relevance: 0.7, priority: 0.6,
		entities: models.EntityBag{Locations: []string{"Madrid"}},
	})
	seedEvent(t, f.store, seedSpec{
		title: "Madrid protest: clashes with police reported", summary: "Protesters clashed with police near the central station",
		category: models.CategoryProtest, lat: coord(40.42), lon: coord(-3.70),
		timestamp: now.Add(-1 * time.Hour), relevance: 0.8, priority: 0.6,
		entities: models.EntityBag{Locations: []string{"Madrid"}},
	})

	rec, env := f.doAdmin(t, http.MethodPost, "/api/v1/admin/fusion/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fusion run status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary struct {
		ClustersCommitted int `json:"clusters_committed"`
	}
	decodeData(t, env, &summary)
	if summary.ClustersCommitted != 1 {
		t.Fatalf("clusters committed = %d, want 1", summary.ClustersCommitted)
	}

	rec, env = f.do(t, http.MethodGet, "/api/v1/events/"+first, f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get event status = %d", rec.Code)
	}
	var detail struct {
		Event   *models.Event   `json:"event"`
		Cluster *models.Cluster `json:"cluster"`
	}
	decodeData(t, env, &detail)
	if detail.Cluster == nil {
		t.Fatal("clustered event returned no cluster summary")
	}
	if detail.Cluster.MemberCount != 2 {
		t.Errorf("member count = %d, want 2", detail.Cluster.MemberCount)
	}
	if detail.Event.ClusterID == nil || *detail.Event.ClusterID != detail.Cluster.ClusterID {
		t.Errorf("event cluster_id %v != cluster %s", detail.Event.ClusterID, detail.Cluster.ClusterID)
	}
}

func TestRunFusionRequiresAdminKey(t *testing.T) {
	f := newAPIFixture(t)

	// Admin role without the key is refused.
	rec, env := f.do(t, http.MethodPost, "/api/v1/admin/fusion/run", f.adminToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "AUTHORIZATION_ERROR" {
		t.Errorf("error = %+v", env.Error)
	}

	// Analyst with the key lacks the role.
	rec, _ = f.doWithHeaders(t, http.MethodPost, "/api/v1/admin/fusion/run", nil, map[string]string{
		"Authorization":   "Bearer " + f.analystToken,
		"X-Admin-API-Key": testAdminKey,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("analyst status = %d, want 403", rec.Code)
	}

	// Both refusals were audited in the caller's org.
	rows := f.auditRows(t, f.orgOne, audit.ActionAccessDenied)
	if len(rows) != 2 {
		t.Fatalf("access_denied rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.ObjectType != "endpoint" || row.ObjectID != "POST /api/v1/admin/fusion/run" {
			t.Errorf("denied row = %+v", row)
		}
	}
}

func TestRunFusionHoursBackOverride(t *testing.T) {
	f := newAPIFixture(t)
	now := time.Now().UTC()

	// Both reports are older than 2h, so an hours_back=1 pass sees nothing.
	for i := 0; i < 2; i++ {
		seedEvent(t, f.store, seedSpec{
			title: fmt.Sprintf("Protest in Madrid report %d", i), summary: "Protesters clashed with police near the central station",
			category: models.CategoryProtest, lat: coord(40.4168), lon: coord(-3.7038),
			timestamp: now.Add(-3 * time.Hour), relevance: 0.7, priority: 0.6,
			entities: models.EntityBag{Locations: []string{"Madrid"}},
		})
	}

	rec, env := f.doAdmin(t, http.MethodPost, "/api/v1/admin/fusion/run",
		map[string]int{"hours_back": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary struct {
		EventsConsidered int `json:"events_considered"`
	}
	decodeData(t, env, &summary)
	if summary.EventsConsidered != 0 {
		t.Errorf("events considered = %d, want 0", summary.EventsConsidered)
	}

	// Manual fusion runs are audited.
	rows := f.auditRows(t, f.orgOne, "create")
	found := false
	for _, row := range rows {
		if row.ObjectType == "fusion_run" {
			found = true
		}
	}
	if !found {
		t.Error("no fusion_run audit record")
	}
}
