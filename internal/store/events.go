// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/meridianops/meridian/internal/models"
)

// TitleHash returns the dedup hash of a raw title.
func TitleHash(rawTitle string) string {
	sum := sha256.Sum256([]byte(rawTitle))
	return hex.EncodeToString(sum[:])
}

// RawEvent is the normalized ingest payload before enrichment.
type RawEvent struct {
	SourceID    int64
	SourceURL   string
	PublishedAt time.Time
	RawTitle    string
	RawText     string
	LocationHint string
	Timestamp   time.Time
	RawMetadata map[string]interface{}
}

// UpsertEvent implements the deduplication contract. A row matching by
// (source_url, published_at) OR (source_url, sha256(raw_title)) returns
// isNew=false and is left untouched. Otherwise a new row is inserted and
// isNew=true.
func (s *Store) UpsertEvent(ctx context.Context, raw RawEvent) (eventID string, isNew bool, err error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()
	defer s.timeQuery("upsert_event")()

	titleHash := TitleHash(raw.RawTitle)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		row := tx.QueryRowContext(ctx,
			`SELECT event_id::VARCHAR FROM events
			 WHERE source_url = ? AND (published_at = ? OR raw_title_sha256 = ?)
			 LIMIT 1`,
			raw.SourceURL, raw.PublishedAt, titleHash)
		scanErr := row.Scan(&existing)
		if scanErr == nil {
			eventID = existing
			isNew = false
			return nil
		}
		if scanErr != sql.ErrNoRows {
			return fmt.Errorf("dedup lookup failed: %w", scanErr)
		}

		eventID = uuid.New().String()
		isNew = true

		ts := raw.Timestamp
		if ts.IsZero() {
			ts = raw.PublishedAt
		}

		metaJSON, mErr := marshalJSONOrNil(raw.RawMetadata)
		if mErr != nil {
			return mErr
		}

		_, insErr := tx.ExecContext(ctx,
			`INSERT INTO events (
				event_id, source_id, source_url, fetched_at, published_at,
				raw_title, raw_title_sha256, raw_text, location_name,
				timestamp, raw_metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			eventID, raw.SourceID, raw.SourceURL, time.Now().UTC(), raw.PublishedAt,
			raw.RawTitle, titleHash, raw.RawText, nullIfEmpty(raw.LocationHint),
			ts, metaJSON)
		if insErr != nil {
			// A concurrent ingest of the same entry hit the unique
			// index first. Re-read and treat as duplicate.
			if strings.Contains(insErr.Error(), "Duplicate") || strings.Contains(insErr.Error(), "unique") {
				row := tx.QueryRowContext(ctx,
					`SELECT event_id::VARCHAR FROM events WHERE source_url = ? AND published_at = ?`,
					raw.SourceURL, raw.PublishedAt)
				if rErr := row.Scan(&existing); rErr == nil {
					eventID = existing
					isNew = false
					return nil
				}
			}
			return fmt.Errorf("failed to insert event: %w", insErr)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return eventID, isNew, nil
}

// Enrichment carries the fields written exactly once per event.
type Enrichment struct {
	Summary      string
	Category     models.Category
	Sentiment    models.Sentiment
	Entities     models.EntityBag
	LocationName string
	LocationLat  *float64
	LocationLon  *float64
	AdminRegion  string
	Confidence   float64
	Relevance    float64
	Priority     float64
}

// SaveEnrichment persists enrichment results and stamps enriched_at. A row
// already enriched is left untouched (idempotent retry), returning false.
func (s *Store) SaveEnrichment(ctx context.Context, eventID string, e Enrichment) (bool, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()
	defer s.timeQuery("save_enrichment")()

	entJSON, err := json.Marshal(e.Entities)
	if err != nil {
		return false, fmt.Errorf("failed to marshal entities: %w", err)
	}

	res, err := s.conn.ExecContext(ctx,
		`UPDATE events SET
			summary = ?, category = ?, sentiment = ?, entities = ?,
			location_name = COALESCE(?, location_name),
			location_lat = ?, location_lon = ?, admin_region = ?,
			confidence_score = ?, relevance_score = ?, priority_score = ?,
			enriched_at = ?, row_version = row_version + 1
		 WHERE event_id = ? AND enriched_at IS NULL`,
		e.Summary, string(e.Category), string(e.Sentiment), string(entJSON),
		nullIfEmpty(e.LocationName),
		e.LocationLat, e.LocationLon, nullIfEmpty(e.AdminRegion),
		e.Confidence, e.Relevance, e.Priority,
		time.Now().UTC(), eventID)
	if err != nil {
		return false, fmt.Errorf("failed to save enrichment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetEvent returns one event by ID. Soft-deleted events are not found.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		eventSelectColumns+` FROM events WHERE event_id = ? AND deleted_at IS NULL`, eventID)
	return scanEvent(row)
}

// EventFilter narrows ListEvents. Zero values mean "no filter".
type EventFilter struct {
	Category     models.Category
	Sentiment    models.Sentiment
	LocationName string // substring match
	MinRelevance float64
	Since        *time.Time
	Until        *time.Time
	ClusterID    string
}

// ListEvents returns events matching filter in deterministic order
// (timestamp DESC, event_id DESC) with the total match count.
func (s *Store) ListEvents(ctx context.Context, filter EventFilter, page, pageSize int) ([]models.Event, int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()
	defer s.timeQuery("list_events")()

	if page < 1 {
		page = 1
	}

	where, args := buildEventWhere(filter)

	var total int64
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := eventSelectColumns + ` FROM events ` + where +
		` ORDER BY timestamp DESC, event_id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("event row iteration failed: %w", err)
	}

	return events, total, nil
}

// ListEventsSince returns non-deleted enriched events with timestamp >= cutoff,
// ordered by timestamp ascending. Used by the fusion engine's window query.
func (s *Store) ListEventsSince(ctx context.Context, cutoff time.Time) ([]models.Event, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		eventSelectColumns+` FROM events
		 WHERE deleted_at IS NULL AND enriched_at IS NOT NULL AND timestamp >= ?
		 ORDER BY timestamp ASC, event_id ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query fusion window: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// AssignCluster sets cluster fields through a compare-and-set on the row
// version. ErrVersionConflict means the row changed since it was read;
// callers re-read and retry. A nil clusterID clears membership.
func (s *Store) AssignCluster(ctx context.Context, eventID string, clusterID *string, sourceCount int, multiSource bool, expectVersion int) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE events SET
			cluster_id = ?, source_count = ?, multi_source_boost = ?,
			row_version = row_version + 1
		 WHERE event_id = ? AND row_version = ? AND deleted_at IS NULL`,
		clusterID, sourceCount, multiSource, eventID, expectVersion)
	if err != nil {
		return fmt.Errorf("failed to assign cluster: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SoftDeleteExpired marks events older than cutoff as deleted. Returns the
// affected event IDs so callers can recompute cluster membership and mark
// dossier stats dirty.
func (s *Store) SoftDeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT event_id::VARCHAR FROM events WHERE deleted_at IS NULL AND timestamp < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired events: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired event: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := s.conn.ExecContext(ctx,
		`UPDATE events SET deleted_at = ?, row_version = row_version + 1
		 WHERE deleted_at IS NULL AND timestamp < ?`,
		time.Now().UTC(), cutoff); err != nil {
		return nil, fmt.Errorf("failed to soft-delete events: %w", err)
	}
	return ids, nil
}

// PurgeDeleted physically removes soft-deleted events past the grace window.
// Only the retention sweep calls this.
func (s *Store) PurgeDeleted(ctx context.Context, grace time.Duration) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM events WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		time.Now().UTC().Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	return res.RowsAffected()
}

// EventExists reports whether a non-deleted event row exists. Used by
// feedback validation.
func (s *Store) EventExists(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE event_id = ? AND deleted_at IS NULL`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check event existence: %w", err)
	}
	return n > 0, nil
}

const eventSelectColumns = `SELECT
	event_id::VARCHAR, source_id, source_url, fetched_at, published_at,
	raw_title, raw_text, location_name, location_lat, location_lon,
	admin_region, timestamp, summary, category, sentiment, entities,
	confidence_score, relevance_score, priority_score,
	cluster_id::VARCHAR, source_count, multi_source_boost, raw_metadata,
	row_version, enriched_at`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	ev, err := scanEventFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return ev, err
}

func scanEventRows(rows *sql.Rows) (*models.Event, error) {
	return scanEventFrom(rows)
}

func scanEventFrom(sc rowScanner) (*models.Event, error) {
	var (
		ev          models.Event
		rawText     sql.NullString
		locName     sql.NullString
		lat, lon    sql.NullFloat64
		adminRegion sql.NullString
		summary     sql.NullString
		category    sql.NullString
		sentiment   sql.NullString
		entities    sql.NullString
		clusterID   sql.NullString
		rawMeta     sql.NullString
		enrichedAt  sql.NullTime
	)

	err := sc.Scan(
		&ev.EventID, &ev.SourceID, &ev.SourceURL, &ev.FetchedAt, &ev.PublishedAt,
		&ev.RawTitle, &rawText, &locName, &lat, &lon,
		&adminRegion, &ev.Timestamp, &summary, &category, &sentiment, &entities,
		&ev.ConfidenceScore, &ev.RelevanceScore, &ev.PriorityScore,
		&clusterID, &ev.SourceCount, &ev.MultiSourceBoost, &rawMeta,
		&ev.RowVersion, &enrichedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.RawText = rawText.String
	ev.LocationName = locName.String
	if lat.Valid {
		v := lat.Float64
		ev.LocationLat = &v
	}
	if lon.Valid {
		v := lon.Float64
		ev.LocationLon = &v
	}
	ev.AdminRegion = adminRegion.String
	ev.Summary = summary.String
	ev.Category = models.Category(category.String)
	ev.Sentiment = models.Sentiment(sentiment.String)
	if entities.Valid && entities.String != "" {
		if err := json.Unmarshal([]byte(entities.String), &ev.Entities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
		}
	}
	if clusterID.Valid && clusterID.String != "" {
		v := clusterID.String
		ev.ClusterID = &v
	}
	if rawMeta.Valid && rawMeta.String != "" {
		if err := json.Unmarshal([]byte(rawMeta.String), &ev.RawMetadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw metadata: %w", err)
		}
	}
	if enrichedAt.Valid {
		v := enrichedAt.Time
		ev.EnrichedAt = &v
	}

	return &ev, nil
}

func buildEventWhere(filter EventFilter) (string, []interface{}) {
	clauses := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Sentiment != "" {
		clauses = append(clauses, "sentiment = ?")
		args = append(args, string(filter.Sentiment))
	}
	if filter.LocationName != "" {
		clauses = append(clauses, "lower(location_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.LocationName)+"%")
	}
	if filter.MinRelevance > 0 {
		clauses = append(clauses, "relevance_score >= ?")
		args = append(args, filter.MinRelevance)
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, *filter.Until)
	}
	if filter.ClusterID != "" {
		clauses = append(clauses, "cluster_id = ?")
		args = append(args, filter.ClusterID)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalJSONOrNil(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return string(b), nil
}
