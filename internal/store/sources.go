// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/models"
)

// maxDeadLetters bounds the per-source dead-letter list; oldest entries are
// dropped first.
const maxDeadLetters = 100

// CreateSource registers a feed. URL must be unique.
func (s *Store) CreateSource(ctx context.Context, src *models.Source) error {
	return s.CreateSourceIn(ctx, s.conn, src)
}

// CreateSourceIn is CreateSource running against q, normally a transaction
// shared with the caller's audit write.
func (s *Store) CreateSourceIn(ctx context.Context, q Querier, src *models.Source) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if src.TrustScore == 0 {
		src.TrustScore = 0.5
	}
	if src.FetchInterval == 0 {
		src.FetchInterval = 30
	}

	row := q.QueryRowContext(ctx,
		`INSERT INTO sources (url, name, source_type, is_active, trust_score, fetch_interval_minutes)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id, created_at`,
		src.URL, src.Name, string(src.SourceType), src.IsActive, src.TrustScore, src.FetchInterval)
	if err := row.Scan(&src.ID, &src.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "unique") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create source: %w", err)
	}
	return nil
}

// GetSource returns one source by ID.
func (s *Store) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx, sourceSelectColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return src, err
}

// ListSources returns sources, optionally filtered by type and active flag.
func (s *Store) ListSources(ctx context.Context, sourceType models.SourceType, activeOnly bool) ([]models.Source, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	clauses := []string{"1=1"}
	var args []interface{}
	if sourceType != "" {
		clauses = append(clauses, "source_type = ?")
		args = append(args, string(sourceType))
	}
	if activeOnly {
		clauses = append(clauses, "is_active = true")
	}

	rows, err := s.conn.QueryContext(ctx,
		sourceSelectColumns+` FROM sources WHERE `+strings.Join(clauses, " AND ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []models.Source
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// UpdateSource updates operator-editable fields.
func (s *Store) UpdateSource(ctx context.Context, src *models.Source) error {
	return s.UpdateSourceIn(ctx, s.conn, src)
}

// UpdateSourceIn is UpdateSource running against q.
func (s *Store) UpdateSourceIn(ctx context.Context, q Querier, src *models.Source) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := q.ExecContext(ctx,
		`UPDATE sources SET name = ?, source_type = ?, is_active = ?, trust_score = ?, fetch_interval_minutes = ?
		 WHERE id = ?`,
		src.Name, string(src.SourceType), src.IsActive, src.TrustScore, src.FetchInterval, src.ID)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFetchResult sets last_fetched_at and last_error after a fetch pass.
// An empty errMsg clears last_error.
func (s *Store) RecordFetchResult(ctx context.Context, sourceID int64, errMsg string) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx,
		`UPDATE sources SET last_fetched_at = ?, last_error = ? WHERE id = ?`,
		time.Now().UTC(), nullIfEmpty(errMsg), sourceID); err != nil {
		return fmt.Errorf("failed to record fetch result: %w", err)
	}
	return nil
}

// AppendDeadLetter records a feed item that exhausted store-write retries.
func (s *Store) AppendDeadLetter(ctx context.Context, sourceID int64, dl models.DeadLetter) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT dead_letters FROM sources WHERE id = ?`, sourceID).Scan(&existing)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read dead letters: %w", err)
		}

		var letters []models.DeadLetter
		if existing.Valid && existing.String != "" {
			if err := json.Unmarshal([]byte(existing.String), &letters); err != nil {
				return fmt.Errorf("failed to unmarshal dead letters: %w", err)
			}
		}
		letters = append(letters, dl)
		if len(letters) > maxDeadLetters {
			letters = letters[len(letters)-maxDeadLetters:]
		}

		b, err := json.Marshal(letters)
		if err != nil {
			return fmt.Errorf("failed to marshal dead letters: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET dead_letters = ? WHERE id = ?`, string(b), sourceID); err != nil {
			return fmt.Errorf("failed to append dead letter: %w", err)
		}
		return nil
	})
}

const sourceSelectColumns = `SELECT id, url, name, source_type, is_active, trust_score,
	fetch_interval_minutes, last_fetched_at, last_error, dead_letters, created_at`

func scanSource(scan func(...interface{}) error) (*models.Source, error) {
	var (
		src         models.Source
		srcType     string
		lastFetched sql.NullTime
		lastError   sql.NullString
		deadLetters sql.NullString
	)
	err := scan(&src.ID, &src.URL, &src.Name, &srcType, &src.IsActive, &src.TrustScore,
		&src.FetchInterval, &lastFetched, &lastError, &deadLetters, &src.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	src.SourceType = models.SourceType(srcType)
	if lastFetched.Valid {
		v := lastFetched.Time
		src.LastFetchedAt = &v
	}
	src.LastError = lastError.String
	if deadLetters.Valid && deadLetters.String != "" {
		if err := json.Unmarshal([]byte(deadLetters.String), &src.DeadLetters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letters: %w", err)
		}
	}
	return &src, nil
}
