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

// GetOrgSettings returns the org's settings, auto-creating the defaults row
// when absent.
func (s *Store) GetOrgSettings(ctx context.Context, orgID int64) (*models.OrgSettings, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var (
		raw       string
		updatedAt time.Time
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT settings, updated_at FROM org_settings WHERE org_id = ?`, orgID).
		Scan(&raw, &updatedAt)
	if err == sql.ErrNoRows {
		defaults := models.DefaultOrgSettings(orgID)
		if err := s.PutOrgSettings(ctx, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get org settings: %w", err)
	}

	var settings models.OrgSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal org settings: %w", err)
	}
	settings.OrgID = orgID
	settings.UpdatedAt = updatedAt
	return &settings, nil
}

// PutOrgSettings stores the full settings record for an org.
func (s *Store) PutOrgSettings(ctx context.Context, settings *models.OrgSettings) error {
	return s.PutOrgSettingsIn(ctx, s.conn, settings)
}

// PutOrgSettingsIn is PutOrgSettings running against q, normally a
// transaction shared with the caller's audit write.
func (s *Store) PutOrgSettingsIn(ctx context.Context, q Querier, settings *models.OrgSettings) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	settings.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal org settings: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO org_settings (org_id, settings, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (org_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		settings.OrgID, string(b), settings.UpdatedAt); err != nil {
		return fmt.Errorf("failed to put org settings: %w", err)
	}
	return nil
}

// ResetOrgSettings deletes the org's settings row; the next GET recreates
// defaults.
func (s *Store) ResetOrgSettings(ctx context.Context, orgID int64) error {
	return s.ResetOrgSettingsIn(ctx, s.conn, orgID)
}

// ResetOrgSettingsIn is ResetOrgSettings running against q.
func (s *Store) ResetOrgSettingsIn(ctx context.Context, q Querier, orgID int64) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if _, err := q.ExecContext(ctx,
		`DELETE FROM org_settings WHERE org_id = ?`, orgID); err != nil {
		return fmt.Errorf("failed to reset org settings: %w", err)
	}
	return nil
}
