// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package store

import (
	"context"
	"fmt"
	"time"
)

// DashboardSummary is the org dashboard aggregate payload. Event counts are
// global; dossier counts are org-scoped.
type DashboardSummary struct {
	EventsToday       int64            `json:"events_today"`
	Events7d          int64            `json:"events_7d"`
	Events30d         int64            `json:"events_30d"`
	HighPriorityToday int64            `json:"high_priority_today"`
	TopLocations7d    []LocationCount  `json:"top_locations_7d"`
	Categories7d      map[string]int64 `json:"categories_7d"`
	Sentiments7d      map[string]int64 `json:"sentiments_7d"`
	ActiveDossiers    int              `json:"active_dossiers"`
	TotalDossiers     int              `json:"total_dossiers"`
}

// LocationCount pairs a location name with its event count.
type LocationCount struct {
	Location string `json:"location"`
	Count    int64  `json:"count"`
}

// TrendPoint is one day of dashboard trend data.
type TrendPoint struct {
	Date       string           `json:"date"`
	Total      int64            `json:"total"`
	ByCategory map[string]int64 `json:"by_category"`
}

// GetDashboardSummary computes the dashboard aggregates. Zero-dossier orgs
// get zeros, not nulls.
func (s *Store) GetDashboardSummary(ctx context.Context, orgID int64, highPriorityThreshold float64) (*DashboardSummary, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()
	defer s.timeQuery("dashboard_summary")()

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, 0, -30)

	summary := &DashboardSummary{
		TopLocations7d: []LocationCount{},
		Categories7d:   make(map[string]int64),
		Sentiments7d:   make(map[string]int64),
	}

	err := s.conn.QueryRowContext(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE timestamp >= ?),
			COUNT(*) FILTER (WHERE timestamp >= ?),
			COUNT(*) FILTER (WHERE timestamp >= ?),
			COUNT(*) FILTER (WHERE timestamp >= ? AND relevance_score >= ?)
		 FROM events WHERE deleted_at IS NULL`,
		dayStart, week, month, dayStart, highPriorityThreshold).
		Scan(&summary.EventsToday, &summary.Events7d, &summary.Events30d, &summary.HighPriorityToday)
	if err != nil {
		return nil, fmt.Errorf("failed to compute event counts: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT location_name, COUNT(*) AS n FROM events
		 WHERE deleted_at IS NULL AND timestamp >= ? AND location_name IS NOT NULL
		 GROUP BY location_name ORDER BY n DESC, location_name LIMIT 10`, week)
	if err != nil {
		return nil, fmt.Errorf("failed to compute top locations: %w", err)
	}
	for rows.Next() {
		var lc LocationCount
		if err := rows.Scan(&lc.Location, &lc.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan location count: %w", err)
		}
		summary.TopLocations7d = append(summary.TopLocations7d, lc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM events
		 WHERE deleted_at IS NULL AND timestamp >= ? AND category IS NOT NULL
		 GROUP BY category`, week)
	if err != nil {
		return nil, fmt.Errorf("failed to compute category distribution: %w", err)
	}
	for rows.Next() {
		var cat string
		var n int64
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		summary.Categories7d[cat] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.conn.QueryContext(ctx,
		`SELECT sentiment, COUNT(*) FROM events
		 WHERE deleted_at IS NULL AND timestamp >= ? AND sentiment IS NOT NULL
		 GROUP BY sentiment`, week)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sentiment distribution: %w", err)
	}
	for rows.Next() {
		var sent string
		var n int64
		if err := rows.Scan(&sent, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan sentiment count: %w", err)
		}
		summary.Sentiments7d[sent] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	active, total, err := s.CountDossiers(ctx, orgID)
	if err != nil {
		return nil, err
	}
	summary.ActiveDossiers = active
	summary.TotalDossiers = total

	return summary, nil
}

// GetDashboardTrends returns per-day event counts for the trailing days
// window (capped at 90 by the API layer). Days with no events are included
// with zero counts.
func (s *Store) GetDashboardTrends(ctx context.Context, days int) ([]TrendPoint, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()
	defer s.timeQuery("dashboard_trends")()

	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	points := make([]TrendPoint, days)
	index := make(map[string]*TrendPoint, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		points[i] = TrendPoint{Date: date, ByCategory: make(map[string]int64)}
		index[date] = &points[i]
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT strftime(timestamp, '%Y-%m-%d'), COALESCE(category, 'other'), COUNT(*)
		 FROM events WHERE deleted_at IS NULL AND timestamp >= ?
		 GROUP BY 1, 2 ORDER BY 1`, start)
	if err != nil {
		return nil, fmt.Errorf("failed to compute trends: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date, cat string
		var n int64
		if err := rows.Scan(&date, &cat, &n); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		if p, ok := index[date]; ok {
			p.Total += n
			p.ByCategory[cat] += n
		}
	}
	return points, rows.Err()
}
