// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/models"
)

// CreateDossier inserts an org-scoped dossier.
func (s *Store) CreateDossier(ctx context.Context, d *models.Dossier) error {
	return s.CreateDossierIn(ctx, s.conn, d)
}

// CreateDossierIn is CreateDossier running against q, normally a transaction
// shared with the caller's audit write.
func (s *Store) CreateDossierIn(ctx context.Context, q Querier, d *models.Dossier) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	aliases, err := marshalJSONOrNil(d.Aliases)
	if err != nil {
		return err
	}
	tags, err := marshalJSONOrNil(d.Tags)
	if err != nil {
		return err
	}

	row := q.QueryRowContext(ctx,
		`INSERT INTO dossiers (org_id, name, dossier_type, description, aliases, tags, notes, lat, lon)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id, created_at, updated_at`,
		d.OrgID, d.Name, string(d.DossierType), nullIfEmpty(d.Description),
		aliases, tags, nullIfEmpty(d.Notes), d.Lat, d.Lon)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create dossier: %w", err)
	}
	return nil
}

// GetDossier returns a dossier scoped to orgID. A dossier belonging to a
// different org is ErrNotFound; tenancy is a hard filter.
func (s *Store) GetDossier(ctx context.Context, orgID, id int64) (*models.Dossier, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		dossierSelectColumns+` FROM dossiers WHERE id = ? AND org_id = ?`, id, orgID)
	d, err := scanDossier(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDossiers returns all dossiers for an org, optionally by type.
func (s *Store) ListDossiers(ctx context.Context, orgID int64, dossierType models.DossierType) ([]models.Dossier, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := dossierSelectColumns + ` FROM dossiers WHERE org_id = ?`
	args := []interface{}{orgID}
	if dossierType != "" {
		query += ` AND dossier_type = ?`
		args = append(args, string(dossierType))
	}
	query += ` ORDER BY name`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dossiers: %w", err)
	}
	defer rows.Close()

	var out []models.Dossier
	for rows.Next() {
		d, err := scanDossier(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// ListAllDossiers returns every org's dossiers. Used only by the matcher,
// which evaluates each new global event against all orgs.
func (s *Store) ListAllDossiers(ctx context.Context) ([]models.Dossier, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, dossierSelectColumns+` FROM dossiers ORDER BY org_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all dossiers: %w", err)
	}
	defer rows.Close()

	var out []models.Dossier
	for rows.Next() {
		d, err := scanDossier(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDossier updates user-editable fields, scoped to orgID.
func (s *Store) UpdateDossier(ctx context.Context, d *models.Dossier) error {
	return s.UpdateDossierIn(ctx, s.conn, d)
}

// UpdateDossierIn is UpdateDossier running against q.
func (s *Store) UpdateDossierIn(ctx context.Context, q Querier, d *models.Dossier) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	aliases, err := marshalJSONOrNil(d.Aliases)
	if err != nil {
		return err
	}
	tags, err := marshalJSONOrNil(d.Tags)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx,
		`UPDATE dossiers SET name = ?, description = ?, aliases = ?, tags = ?, notes = ?,
			lat = ?, lon = ?, updated_at = ?
		 WHERE id = ? AND org_id = ?`,
		d.Name, nullIfEmpty(d.Description), aliases, tags, nullIfEmpty(d.Notes),
		d.Lat, d.Lon, time.Now().UTC(), d.ID, d.OrgID)
	if err != nil {
		return fmt.Errorf("failed to update dossier: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDossier removes a dossier, scoped to orgID.
func (s *Store) DeleteDossier(ctx context.Context, orgID, id int64) error {
	return s.DeleteDossierIn(ctx, s.conn, orgID, id)
}

// DeleteDossierIn is DeleteDossier running against q.
func (s *Store) DeleteDossierIn(ctx context.Context, q Querier, orgID, id int64) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx,
		`DELETE FROM dossiers WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete dossier: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDossierStats writes the derived statistics block. Statistics are
// owned by the matcher; this clears the dirty flag.
func (s *Store) UpdateDossierStats(ctx context.Context, d *models.Dossier) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	catJSON, err := marshalJSONOrNil(d.CategoryBreakdown)
	if err != nil {
		return err
	}
	sentJSON, err := marshalJSONOrNil(d.SentimentBreakdown)
	if err != nil {
		return err
	}

	if _, err := s.conn.ExecContext(ctx,
		`UPDATE dossiers SET event_count = ?, last_event_at = ?, count_7d = ?, count_30d = ?,
			category_breakdown = ?, sentiment_breakdown = ?, stats_dirty = false, updated_at = ?
		 WHERE id = ?`,
		d.EventCount, d.LastEventAt, d.Count7d, d.Count30d,
		catJSON, sentJSON, time.Now().UTC(), d.ID); err != nil {
		return fmt.Errorf("failed to update dossier stats: %w", err)
	}
	return nil
}

// MarkAllDossiersDirty flags every dossier for lazy stats recomputation.
// Called by the retention sweep after deleting events.
func (s *Store) MarkAllDossiersDirty(ctx context.Context) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx, `UPDATE dossiers SET stats_dirty = true`); err != nil {
		return fmt.Errorf("failed to mark dossiers dirty: %w", err)
	}
	return nil
}

// ListDirtyDossiers returns dossiers flagged for recomputation.
func (s *Store) ListDirtyDossiers(ctx context.Context) ([]models.Dossier, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		dossierSelectColumns+` FROM dossiers WHERE stats_dirty = true ORDER BY org_id, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dirty dossiers: %w", err)
	}
	defer rows.Close()

	var out []models.Dossier
	for rows.Next() {
		d, err := scanDossier(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CountDossiers returns (active, total) dossier counts for an org. Active
// means at least one matched event in the last 30 days.
func (s *Store) CountDossiers(ctx context.Context, orgID int64) (active, total int, err error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	err = s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN count_30d > 0 THEN 1 ELSE 0 END), 0)
		 FROM dossiers WHERE org_id = ?`, orgID).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count dossiers: %w", err)
	}
	return active, total, nil
}

const dossierSelectColumns = `SELECT id, org_id, name, dossier_type, description, aliases, tags, notes,
	lat, lon, event_count, last_event_at, count_7d, count_30d,
	category_breakdown, sentiment_breakdown, stats_dirty, created_at, updated_at`

func scanDossier(scan func(...interface{}) error) (*models.Dossier, error) {
	var (
		d           models.Dossier
		dType       string
		desc        sql.NullString
		aliases     sql.NullString
		tags        sql.NullString
		notes       sql.NullString
		lat, lon    sql.NullFloat64
		lastEventAt sql.NullTime
		catJSON     sql.NullString
		sentJSON    sql.NullString
	)
	err := scan(&d.ID, &d.OrgID, &d.Name, &dType, &desc, &aliases, &tags, &notes,
		&lat, &lon, &d.EventCount, &lastEventAt, &d.Count7d, &d.Count30d,
		&catJSON, &sentJSON, &d.StatsDirty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dossier: %w", err)
	}

	d.DossierType = models.DossierType(dType)
	d.Description = desc.String
	d.Notes = notes.String
	if lat.Valid {
		v := lat.Float64
		d.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		d.Lon = &v
	}
	if lastEventAt.Valid {
		v := lastEventAt.Time
		d.LastEventAt = &v
	}
	if aliases.Valid && aliases.String != "" {
		if err := json.Unmarshal([]byte(aliases.String), &d.Aliases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aliases: %w", err)
		}
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &d.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if catJSON.Valid && catJSON.String != "" {
		if err := json.Unmarshal([]byte(catJSON.String), &d.CategoryBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal category breakdown: %w", err)
		}
	}
	if sentJSON.Valid && sentJSON.String != "" {
		if err := json.Unmarshal([]byte(sentJSON.String), &d.SentimentBreakdown); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sentiment breakdown: %w", err)
		}
	}
	return &d, nil
}
