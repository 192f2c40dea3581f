// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package fusion

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(s *store.Store) *Engine {
	return NewEngine(s, &config.FusionConfig{
		Window:              24 * time.Hour,
		SimilarityThreshold: 0.6,
		LockTTL:             30 * time.Minute,
	})
}

type seedEvent struct {
	title      string
	summary    string
	category   models.Category
	lat, lon   *float64
	timestamp  time.Time
	confidence float64
	relevance  float64
	priority   float64
	entities   models.EntityBag
	sourceURL  string
}

func seed(t *testing.T, s *store.Store, ev seedEvent) string {
	t.Helper()
	ctx := context.Background()

	eventID, isNew, err := s.UpsertEvent(ctx, store.RawEvent{
		SourceURL:   ev.sourceURL,
		PublishedAt: ev.timestamp,
		RawTitle:    ev.title,
		RawText:     ev.summary,
		Timestamp:   ev.timestamp,
	})
	if err != nil {
		t.Fatalf("upsert event: %v", err)
	}
	if !isNew {
		t.Fatalf("seed event %q collided", ev.title)
	}

	if _, err := s.SaveEnrichment(ctx, eventID, store.Enrichment{
		Summary:     ev.summary,
		Category:    ev.category,
		Sentiment:   models.SentimentNegative,
		Entities:    ev.entities,
		LocationLat: ev.lat,
		LocationLon: ev.lon,
		Confidence:  ev.confidence,
		Relevance:   ev.relevance,
		Priority:    ev.priority,
	}); err != nil {
		t.Fatalf("save enrichment: %v", err)
	}
	return eventID
}

// madridPair seeds two reports of the same protest from different outlets.
func madridPair(t *testing.T, s *store.Store, now time.Time) (string, string) {
	t.Helper()
	first := seed(t, s, seedEvent{
		title:      "Protest in Madrid turns violent",
		summary:    "Protest in Madrid turns violent.",
		category:   models.CategoryProtest,
		lat:        coord(40.4168),
		lon:        coord(-3.7038),
		timestamp:  now.Add(-2 * time.Hour),
		confidence: 0.8,
		relevance:  0.7,
		priority:   0.6,
		entities: models.EntityBag{
			Locations:     []string{"Madrid"},
			Organizations: []string{"Workers Union"},
		},
		sourceURL: "https://outlet-a.example.com/1",
	})
	second := seed(t, s, seedEvent{
		title:      "Madrid protest violence escalates",
		summary:    "Madrid protest violence escalates.",
		category:   models.CategoryProtest,
		lat:        coord(40.42),
		lon:        coord(-3.70),
		timestamp:  now.Add(-time.Hour),
		confidence: 0.6,
		relevance:  0.8,
		priority:   0.5,
		entities: models.EntityBag{
			Locations:     []string{"madrid"},
			Organizations: []string{"Workers Union"},
			Groups:        []string{"Student Bloc"},
		},
		sourceURL: "https://outlet-b.example.com/7",
	})
	return first, second
}

func TestEngineClustersMultiSourceReports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	firstID, secondID := madridPair(t, s, now)
	loneID := seed(t, s, seedEvent{
		title:      "Cholera outbreak spreads in Khartoum",
		summary:    "Hospitals report rising cases.",
		category:   models.CategoryHealth,
		timestamp:  now.Add(-3 * time.Hour),
		confidence: 0.5,
		relevance:  0.7,
		priority:   0.5,
		entities:   models.EntityBag{Locations: []string{"Khartoum"}},
		sourceURL:  "https://outlet-c.example.com/2",
	})

	eng := newTestEngine(s)
	summary, err := eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.ClustersCommitted != 1 || summary.Singletons != 1 || summary.EventsConsidered != 3 {
		t.Errorf("summary = %+v", summary)
	}

	first, _ := s.GetEvent(ctx, firstID)
	second, _ := s.GetEvent(ctx, secondID)
	lone, _ := s.GetEvent(ctx, loneID)

	if first.ClusterID == nil || second.ClusterID == nil {
		t.Fatal("both Madrid events should be clustered")
	}
	if *first.ClusterID != *second.ClusterID {
		t.Errorf("cluster IDs differ: %s vs %s", *first.ClusterID, *second.ClusterID)
	}
	if first.SourceCount != 2 || !first.MultiSourceBoost {
		t.Errorf("member fusion fields = count %d boost %v", first.SourceCount, first.MultiSourceBoost)
	}
	if lone.ClusterID != nil {
		t.Error("singleton should keep cluster_id NULL")
	}

	cluster, err := s.GetCluster(ctx, *first.ClusterID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	if cluster.MemberCount != 2 {
		t.Errorf("member_count = %d", cluster.MemberCount)
	}
	// Merged summary comes from the higher-confidence member.
	if cluster.CanonicalEventID != firstID || cluster.MergedSummary != "Protest in Madrid turns violent." {
		t.Errorf("canonical = %s, summary = %q", cluster.CanonicalEventID, cluster.MergedSummary)
	}
	// Entity union dedups Madrid case-insensitively and keeps the new group.
	if !reflect.DeepEqual(cluster.MergedEntities.Locations, []string{"Madrid"}) {
		t.Errorf("merged locations = %v", cluster.MergedEntities.Locations)
	}
	if !reflect.DeepEqual(cluster.MergedEntities.Groups, []string{"Student Bloc"}) {
		t.Errorf("merged groups = %v", cluster.MergedEntities.Groups)
	}
	// Averages, with the multi-source boost on relevance.
	if math.Abs(cluster.AvgConfidence-0.7) > 1e-9 {
		t.Errorf("avg confidence = %v", cluster.AvgConfidence)
	}
	if math.Abs(cluster.AvgRelevance-0.80) > 1e-9 {
		t.Errorf("avg relevance = %v, want 0.75 + 0.05 boost", cluster.AvgRelevance)
	}
	if cluster.StabilityTrend != models.TrendUnknown {
		t.Errorf("new cluster trend = %s, want unknown", cluster.StabilityTrend)
	}
	if !cluster.EarliestTS.Equal(first.Timestamp) || !cluster.LatestTS.Equal(second.Timestamp) {
		t.Errorf("cluster span = [%v, %v]", cluster.EarliestTS, cluster.LatestTS)
	}
}

func TestEngineRerunIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	firstID, _ := madridPair(t, s, now)
	eng := newTestEngine(s)

	if _, err := eng.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first, _ := s.GetEvent(ctx, firstID)
	before, err := s.GetCluster(ctx, *first.ClusterID)
	if err != nil {
		t.Fatalf("get cluster: %v", err)
	}
	versionBefore := first.RowVersion

	if _, err := eng.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	first, _ = s.GetEvent(ctx, firstID)
	if *first.ClusterID != before.ClusterID {
		t.Errorf("cluster ID changed across passes: %s -> %s", before.ClusterID, *first.ClusterID)
	}
	if first.RowVersion != versionBefore {
		t.Error("unchanged membership should not rewrite member rows")
	}

	after, err := s.GetCluster(ctx, before.ClusterID)
	if err != nil {
		t.Fatalf("get cluster after rerun: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Errorf("merged record changed:\n before %+v\n after  %+v", before, after)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("updated_at rewritten on unchanged cluster: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestEngineDissolvesShrunkenCluster(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	firstID, secondID := madridPair(t, s, now)
	eng := newTestEngine(s)
	if _, err := eng.RunOnce(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first, _ := s.GetEvent(ctx, firstID)
	clusterID := *first.ClusterID

	// Retention removes the older member.
	deleted, err := s.SoftDeleteExpired(ctx, now.Add(-90*time.Minute))
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != firstID {
		t.Fatalf("deleted = %v, want [%s]", deleted, firstID)
	}

	summary, err := eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if summary.ClustersDissolved != 1 {
		t.Errorf("dissolved = %d, want 1", summary.ClustersDissolved)
	}

	survivor, _ := s.GetEvent(ctx, secondID)
	if survivor.ClusterID != nil {
		t.Error("survivor should have cluster_id cleared")
	}
	if survivor.SourceCount != 1 || survivor.MultiSourceBoost {
		t.Errorf("survivor fusion fields = count %d boost %v", survivor.SourceCount, survivor.MultiSourceBoost)
	}
	if _, err := s.GetCluster(ctx, clusterID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("dissolved cluster still present, err = %v", err)
	}
}

func TestEngineWindowExcludesOldEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, s, seedEvent{
		title:      "Protest in Madrid turns violent",
		summary:    "Protest in Madrid turns violent.",
		category:   models.CategoryProtest,
		timestamp:  now.Add(-30 * time.Hour),
		confidence: 0.8,
		relevance:  0.7,
		priority:   0.6,
		entities:   models.EntityBag{Locations: []string{"Madrid"}},
		sourceURL:  "https://outlet-a.example.com/old",
	})

	eng := newTestEngine(s)
	summary, err := eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if summary.EventsConsidered != 0 {
		t.Errorf("events considered = %d, want 0", summary.EventsConsidered)
	}
}

func TestEngineLockPreventsConcurrentPass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AcquireFusionLock(ctx, 30*time.Minute); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer s.ReleaseFusionLock(ctx)

	eng := newTestEngine(s)
	if _, err := eng.RunOnce(ctx); !errors.Is(err, store.ErrFusionLocked) {
		t.Errorf("err = %v, want ErrFusionLocked", err)
	}
}
