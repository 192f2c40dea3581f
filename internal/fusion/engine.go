// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package fusion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// trend thresholds: member growth above growthWorsening or below
// growthImproving versus the prior window moves the trend off stable.
const (
	growthWorsening = 1.5
	growthImproving = 0.67
)

// Summary reports one fusion pass.
type Summary struct {
	EventsConsidered  int           `json:"events_considered"`
	ClustersCommitted int           `json:"clusters_committed"`
	ClustersDissolved int           `json:"clusters_dissolved"`
	Singletons        int           `json:"singletons"`
	Duration          time.Duration `json:"duration_ns"`
}

// Engine runs the clustering pass. Exactly one pass runs at a time,
// enforced by the store's fusion lock.
type Engine struct {
	store *store.Store
	cfg   *config.FusionConfig
}

// NewEngine builds a fusion engine over the given store.
func NewEngine(st *store.Store, cfg *config.FusionConfig) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// candidate is an in-progress cluster during the agglomerative pass.
type candidate struct {
	members []*models.Event
}

// RunOnce executes a full fusion pass: window query, agglomerative
// clustering, merged-record synthesis, member assignment, and dissolution
// of clusters that fell below two members. Re-running over unchanged
// events leaves every merged record identical.
func (e *Engine) RunOnce(ctx context.Context) (Summary, error) {
	if err := e.store.AcquireFusionLock(ctx, e.cfg.LockTTL); err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := e.store.ReleaseFusionLock(context.WithoutCancel(ctx)); err != nil {
			logging.Error().Err(err).Msg("Failed to release fusion lock")
		}
	}()

	start := time.Now()
	now := start.UTC()
	window := e.cfg.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	events, err := e.store.ListEventsSince(ctx, now.Add(-window))
	if err != nil {
		return Summary{}, err
	}

	threshold := e.cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	candidates := agglomerate(events, threshold, window)

	summary := Summary{EventsConsidered: len(events)}
	committed := make(map[string]struct{})
	stale := make(map[string]struct{})

	for _, cand := range candidates {
		if len(cand.members) < 2 {
			summary.Singletons++
			ev := cand.members[0]
			if ev.ClusterID != nil {
				stale[*ev.ClusterID] = struct{}{}
				if err := e.assign(ctx, ev, nil, 1, false); err != nil {
					return summary, err
				}
			}
			continue
		}

		clusterID := existingClusterID(cand.members)
		isNew := clusterID == ""
		if isNew {
			clusterID = uuid.NewString()
		}
		// Members arriving from another cluster leave it behind.
		for _, m := range cand.members {
			if m.ClusterID != nil && *m.ClusterID != clusterID {
				stale[*m.ClusterID] = struct{}{}
			}
		}

		trend := models.TrendUnknown
		if !isNew {
			trend, err = e.stabilityTrend(ctx, clusterID, now, window, len(cand.members))
			if err != nil {
				return summary, err
			}
		}

		cluster := mergeCluster(clusterID, cand.members, trend, now)
		if err := e.store.UpsertCluster(ctx, cluster); err != nil {
			return summary, fmt.Errorf("failed to commit cluster %s: %w", clusterID, err)
		}
		committed[clusterID] = struct{}{}
		summary.ClustersCommitted++

		for _, m := range cand.members {
			if err := e.assign(ctx, m, &clusterID, len(cand.members), true); err != nil {
				return summary, err
			}
		}
	}

	for clusterID := range stale {
		if _, ok := committed[clusterID]; ok {
			continue
		}
		if err := e.store.DeleteCluster(ctx, clusterID); err != nil {
			return summary, err
		}
		summary.ClustersDissolved++
	}

	summary.Duration = time.Since(start)
	logging.Info().Int("events", summary.EventsConsidered).
		Int("clusters", summary.ClustersCommitted).
		Int("dissolved", summary.ClustersDissolved).
		Int("singletons", summary.Singletons).
		Dur("duration", summary.Duration).
		Msg("Fusion pass complete")
	return summary, nil
}

// agglomerate assigns each event to the best-matching candidate or seeds a
// new one. Events arrive ordered by timestamp ascending, so when two
// candidates tie on similarity the one seeded earliest wins.
func agglomerate(events []models.Event, threshold float64, window time.Duration) []*candidate {
	var candidates []*candidate
	for i := range events {
		ev := &events[i]
		var (
			best    *candidate
			bestSim float64
		)
		for _, cand := range candidates {
			sim := maxMemberSimilarity(ev, cand, window)
			if sim >= threshold && sim > bestSim {
				best, bestSim = cand, sim
			}
		}
		if best != nil {
			best.members = append(best.members, ev)
			continue
		}
		candidates = append(candidates, &candidate{members: []*models.Event{ev}})
	}
	return candidates
}

func maxMemberSimilarity(ev *models.Event, cand *candidate, window time.Duration) float64 {
	var max float64
	for _, m := range cand.members {
		if sim := Similarity(ev, m, window); sim > max {
			max = sim
		}
	}
	return max
}

// existingClusterID reuses the cluster ID the earliest already-assigned
// member carries, keeping re-runs over unchanged membership stable.
func existingClusterID(members []*models.Event) string {
	for _, m := range members {
		if m.ClusterID != nil {
			return *m.ClusterID
		}
	}
	return ""
}

// mergeCluster synthesizes the cluster record from its members. Members are
// in timestamp order, which fixes the entity union order and keeps repeated
// passes byte-identical.
func mergeCluster(clusterID string, members []*models.Event, trend models.StabilityTrend, now time.Time) *models.Cluster {
	canonical := members[0]
	var sumConf, sumRel, sumPri float64
	earliest, latest := members[0].Timestamp, members[0].Timestamp

	for _, m := range members {
		if m.ConfidenceScore > canonical.ConfidenceScore {
			canonical = m
		}
		sumConf += m.ConfidenceScore
		sumRel += m.RelevanceScore
		sumPri += m.PriorityScore
		if m.Timestamp.Before(earliest) {
			earliest = m.Timestamp
		}
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}

	n := float64(len(members))
	avgRel := sumRel/n + 0.05*math.Min(3, n-1)
	if avgRel > 1 {
		avgRel = 1
	}

	return &models.Cluster{
		ClusterID:        clusterID,
		CanonicalEventID: canonical.EventID,
		MemberCount:      len(members),
		MergedSummary:    canonical.Summary,
		MergedEntities:   mergeEntities(members),
		EarliestTS:       earliest,
		LatestTS:         latest,
		AvgConfidence:    sumConf / n,
		AvgRelevance:     avgRel,
		AvgPriority:      sumPri / n,
		StabilityTrend:   trend,
		UpdatedAt:        now,
	}
}

// mergeEntities unions each axis across members, deduplicated
// case-insensitively with the first-seen casing kept.
func mergeEntities(members []*models.Event) models.EntityBag {
	union := func(pick func(*models.Event) []string) []string {
		var out []string
		seen := make(map[string]struct{})
		for _, m := range members {
			for _, v := range pick(m) {
				key := normalizeName(v)
				if key == "" {
					continue
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, v)
			}
		}
		return out
	}
	return models.EntityBag{
		Locations:     union(func(e *models.Event) []string { return e.Entities.Locations }),
		Organizations: union(func(e *models.Event) []string { return e.Entities.Organizations }),
		Groups:        union(func(e *models.Event) []string { return e.Entities.Groups }),
		Topics:        union(func(e *models.Event) []string { return e.Entities.Topics }),
		Keywords:      union(func(e *models.Event) []string { return e.Entities.Keywords }),
	}
}

// stabilityTrend compares current membership against the prior window.
func (e *Engine) stabilityTrend(ctx context.Context, clusterID string, now time.Time, window time.Duration, current int) (models.StabilityTrend, error) {
	prior, err := e.store.CountClusterMembers(ctx, clusterID, now.Add(-2*window), now.Add(-window))
	if err != nil {
		return models.TrendUnknown, err
	}
	if prior == 0 {
		return models.TrendUnknown, nil
	}
	ratio := float64(current) / float64(prior)
	switch {
	case ratio > growthWorsening:
		return models.TrendWorsening, nil
	case ratio < growthImproving:
		return models.TrendImproving, nil
	default:
		return models.TrendStable, nil
	}
}

// assign writes cluster membership through the row-version CAS, skipping
// rows that already carry the target state. A version conflict means a
// concurrent writer touched the row; re-read once and retry.
func (e *Engine) assign(ctx context.Context, ev *models.Event, clusterID *string, sourceCount int, multiSource bool) error {
	same := ev.SourceCount == sourceCount && ev.MultiSourceBoost == multiSource &&
		((ev.ClusterID == nil && clusterID == nil) ||
			(ev.ClusterID != nil && clusterID != nil && *ev.ClusterID == *clusterID))
	if same {
		return nil
	}

	err := e.store.AssignCluster(ctx, ev.EventID, clusterID, sourceCount, multiSource, ev.RowVersion)
	if !errors.Is(err, store.ErrVersionConflict) {
		return err
	}

	fresh, getErr := e.store.GetEvent(ctx, ev.EventID)
	if errors.Is(getErr, store.ErrNotFound) {
		// Deleted mid-pass; nothing to assign.
		return nil
	}
	if getErr != nil {
		return getErr
	}
	return e.store.AssignCluster(ctx, ev.EventID, clusterID, sourceCount, multiSource, fresh.RowVersion)
}
