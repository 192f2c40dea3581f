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

// CreateWatchlist inserts an org-scoped watchlist.
func (s *Store) CreateWatchlist(ctx context.Context, w *models.Watchlist) error {
	return s.CreateWatchlistIn(ctx, s.conn, w)
}

// CreateWatchlistIn is CreateWatchlist running against q, normally a
// transaction shared with the caller's audit write.
func (s *Store) CreateWatchlistIn(ctx context.Context, q Querier, w *models.Watchlist) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	ids, err := marshalJSONOrNil(w.DossierIDs)
	if err != nil {
		return err
	}

	row := q.QueryRowContext(ctx,
		`INSERT INTO watchlists (org_id, user_id, name, priority, dossier_ids)
		 VALUES (?, ?, ?, ?, ?) RETURNING id, created_at, updated_at`,
		w.OrgID, w.UserID, w.Name, string(w.Priority), ids)
	if err := row.Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create watchlist: %w", err)
	}
	return nil
}

// GetWatchlist returns a watchlist scoped to orgID.
func (s *Store) GetWatchlist(ctx context.Context, orgID, id int64) (*models.Watchlist, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		watchlistSelectColumns+` FROM watchlists WHERE id = ? AND org_id = ?`, id, orgID)
	w, err := scanWatchlist(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return w, err
}

// ListWatchlists returns all watchlists for an org.
func (s *Store) ListWatchlists(ctx context.Context, orgID int64) ([]models.Watchlist, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		watchlistSelectColumns+` FROM watchlists WHERE org_id = ? ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", err)
	}
	defer rows.Close()

	var out []models.Watchlist
	for rows.Next() {
		w, err := scanWatchlist(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// UpdateWatchlist updates name, priority, and dossier membership, scoped to
// orgID.
func (s *Store) UpdateWatchlist(ctx context.Context, w *models.Watchlist) error {
	return s.UpdateWatchlistIn(ctx, s.conn, w)
}

// UpdateWatchlistIn is UpdateWatchlist running against q.
func (s *Store) UpdateWatchlistIn(ctx context.Context, q Querier, w *models.Watchlist) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	ids, err := marshalJSONOrNil(w.DossierIDs)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx,
		`UPDATE watchlists SET name = ?, priority = ?, dossier_ids = ?, updated_at = ?
		 WHERE id = ? AND org_id = ?`,
		w.Name, string(w.Priority), ids, time.Now().UTC(), w.ID, w.OrgID)
	if err != nil {
		return fmt.Errorf("failed to update watchlist: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWatchlist removes a watchlist, scoped to orgID.
func (s *Store) DeleteWatchlist(ctx context.Context, orgID, id int64) error {
	return s.DeleteWatchlistIn(ctx, s.conn, orgID, id)
}

// DeleteWatchlistIn is DeleteWatchlist running against q.
func (s *Store) DeleteWatchlistIn(ctx context.Context, q Querier, orgID, id int64) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx,
		`DELETE FROM watchlists WHERE id = ? AND org_id = ?`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete watchlist: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const watchlistSelectColumns = `SELECT id, org_id, user_id, name, priority, dossier_ids, created_at, updated_at`

func scanWatchlist(scan func(...interface{}) error) (*models.Watchlist, error) {
	var (
		w        models.Watchlist
		userID   sql.NullInt64
		priority string
		ids      sql.NullString
	)
	err := scan(&w.ID, &w.OrgID, &userID, &w.Name, &priority, &ids, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan watchlist: %w", err)
	}
	if userID.Valid {
		v := userID.Int64
		w.UserID = &v
	}
	w.Priority = models.Priority(priority)
	if ids.Valid && ids.String != "" {
		if err := json.Unmarshal([]byte(ids.String), &w.DossierIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dossier ids: %w", err)
		}
	}
	return &w, nil
}
