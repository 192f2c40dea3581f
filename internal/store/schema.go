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

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables. All columns are defined in
// the initial CREATE TABLE statements; DDL is idempotent.
func (s *Store) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

func tableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_sources START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_orgs START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_users START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_dossiers START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_watchlists START 1`,
		`CREATE SEQUENCE IF NOT EXISTS seq_feedback START 1`,

		// Global feed registrations
		`CREATE TABLE IF NOT EXISTS sources (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_sources'),
			url TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			source_type TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			trust_score DOUBLE NOT NULL DEFAULT 0.5,
			fetch_interval_minutes INTEGER NOT NULL DEFAULT 30,
			last_fetched_at TIMESTAMP,
			last_error TEXT,
			dead_letters JSON,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// The core unit: global enriched events. Identity/provenance are
		// write-once; enrichment fields set exactly once; cluster fields
		// mutated by fusion through a CAS on row_version.
		`CREATE TABLE IF NOT EXISTS events (
			event_id UUID PRIMARY KEY,
			source_id BIGINT NOT NULL,
			source_url TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL,
			published_at TIMESTAMP NOT NULL,
			raw_title TEXT NOT NULL,
			raw_title_sha256 TEXT NOT NULL,
			raw_text TEXT,
			location_name TEXT,
			location_lat DOUBLE,
			location_lon DOUBLE,
			admin_region TEXT,
			timestamp TIMESTAMP NOT NULL,
			summary TEXT,
			category TEXT,
			sentiment TEXT,
			entities JSON,
			confidence_score DOUBLE NOT NULL DEFAULT 0,
			relevance_score DOUBLE NOT NULL DEFAULT 0,
			priority_score DOUBLE NOT NULL DEFAULT 0,
			cluster_id UUID,
			source_count INTEGER NOT NULL DEFAULT 1,
			multi_source_boost BOOLEAN NOT NULL DEFAULT false,
			raw_metadata JSON,
			row_version INTEGER NOT NULL DEFAULT 1,
			enriched_at TIMESTAMP,
			deleted_at TIMESTAMP
		)`,

		// Derived cluster records, owned by the fusion engine
		`CREATE TABLE IF NOT EXISTS clusters (
			cluster_id UUID PRIMARY KEY,
			canonical_event_id UUID NOT NULL,
			member_count INTEGER NOT NULL,
			merged_summary TEXT NOT NULL,
			merged_entities JSON,
			earliest_timestamp TIMESTAMP NOT NULL,
			latest_timestamp TIMESTAMP NOT NULL,
			avg_confidence DOUBLE NOT NULL DEFAULT 0,
			avg_relevance DOUBLE NOT NULL DEFAULT 0,
			avg_priority DOUBLE NOT NULL DEFAULT 0,
			stability_trend TEXT NOT NULL DEFAULT 'unknown',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Cooperative fusion lock: single row, TTL enforced by reader
		`CREATE TABLE IF NOT EXISTS fusion_state (
			id INTEGER PRIMARY KEY,
			in_progress BOOLEAN NOT NULL DEFAULT false,
			locked_at TIMESTAMP
		)`,

		// Tenancy
		`CREATE TABLE IF NOT EXISTS organizations (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_orgs'),
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_users'),
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS memberships (
			user_id BIGINT NOT NULL,
			org_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (user_id, org_id)
		)`,

		// Org-scoped tracked subjects with derived statistics
		`CREATE TABLE IF NOT EXISTS dossiers (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_dossiers'),
			org_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			dossier_type TEXT NOT NULL,
			description TEXT,
			aliases JSON,
			tags JSON,
			notes TEXT,
			lat DOUBLE,
			lon DOUBLE,
			event_count INTEGER NOT NULL DEFAULT 0,
			last_event_at TIMESTAMP,
			count_7d INTEGER NOT NULL DEFAULT 0,
			count_30d INTEGER NOT NULL DEFAULT 0,
			category_breakdown JSON,
			sentiment_breakdown JSON,
			stats_dirty BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS watchlists (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_watchlists'),
			org_id BIGINT NOT NULL,
			user_id BIGINT,
			name TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			dossier_ids JSON,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS event_feedback (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_feedback'),
			event_id UUID NOT NULL,
			user_id BIGINT NOT NULL,
			org_id BIGINT NOT NULL,
			feedback_type TEXT NOT NULL,
			accuracy_rating INTEGER,
			relevance_rating INTEGER,
			is_false_positive BOOLEAN NOT NULL DEFAULT false,
			suggested_category TEXT,
			comment TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per org; GET auto-creates, RESET deletes
		`CREATE TABLE IF NOT EXISTS org_settings (
			org_id BIGINT PRIMARY KEY,
			settings JSON NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// createIndexes creates indexes for the hot query paths.
func (s *Store) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		// Events: timestamp ordering, category filter, cluster lookup,
		// dedup key, spatial lookups
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_category ON events (category)`,
		`CREATE INDEX IF NOT EXISTS idx_events_cluster ON events (cluster_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events (source_url, published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_dedup_title ON events (source_url, raw_title_sha256)`,
		`CREATE INDEX IF NOT EXISTS idx_events_latlon ON events (location_lat, location_lon)`,

		`CREATE INDEX IF NOT EXISTS idx_dossiers_org_type ON dossiers (org_id, dossier_type)`,
		`CREATE INDEX IF NOT EXISTS idx_watchlists_org ON watchlists (org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_org ON event_feedback (org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_event ON event_feedback (event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id)`,
	}

	for _, idx := range indexes {
		if _, err := s.conn.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", idx, err)
		}
	}

	// Seed the fusion lock row.
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO fusion_state (id, in_progress) VALUES (1, false) ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to seed fusion state: %w", err)
	}

	return nil
}
