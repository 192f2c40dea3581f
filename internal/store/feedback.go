// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/meridianops/meridian/internal/models"
)

// CreateFeedback inserts a feedback row. The caller validates that the event
// exists and is not deleted.
func (s *Store) CreateFeedback(ctx context.Context, f *models.EventFeedback) error {
	return s.CreateFeedbackIn(ctx, s.conn, f)
}

// CreateFeedbackIn is CreateFeedback running against q, normally a
// transaction shared with the caller's audit write.
func (s *Store) CreateFeedbackIn(ctx context.Context, q Querier, f *models.EventFeedback) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var suggested interface{}
	if f.SuggestedCategory != nil {
		suggested = string(*f.SuggestedCategory)
	}

	row := q.QueryRowContext(ctx,
		`INSERT INTO event_feedback (
			event_id, user_id, org_id, feedback_type, accuracy_rating,
			relevance_rating, is_false_positive, suggested_category, comment
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id, created_at`,
		f.EventID, f.UserID, f.OrgID, string(f.FeedbackType), f.AccuracyRating,
		f.RelevanceRating, f.IsFalsePositive, suggested, nullIfEmpty(f.Comment))
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// GetFeedback returns one feedback row scoped to orgID.
func (s *Store) GetFeedback(ctx context.Context, orgID, id int64) (*models.EventFeedback, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		feedbackSelectColumns+` FROM event_feedback WHERE id = ? AND org_id = ?`, id, orgID)
	f, err := scanFeedback(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return f, err
}

// ListFeedback returns feedback for an org, newest first.
func (s *Store) ListFeedback(ctx context.Context, orgID int64, eventID string) ([]models.EventFeedback, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := feedbackSelectColumns + ` FROM event_feedback WHERE org_id = ?`
	args := []interface{}{orgID}
	if eventID != "" {
		query += ` AND event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var out []models.EventFeedback
	for rows.Next() {
		f, err := scanFeedback(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// DeleteFeedback removes a feedback row. Owners delete their own rows; org
// admins may delete any row in their org (the handler checks the role and
// passes requireOwner accordingly).
func (s *Store) DeleteFeedback(ctx context.Context, orgID, id int64, userID int64, requireOwner bool) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `DELETE FROM event_feedback WHERE id = ? AND org_id = ?`
	args := []interface{}{id, orgID}
	if requireOwner {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete feedback: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FeedbackStats aggregates feedback for an org.
func (s *Store) FeedbackStats(ctx context.Context, orgID int64) (*models.FeedbackStats, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	stats := &models.FeedbackStats{
		ByType:          make(map[string]int),
		MisclassifiedBy: make(map[string]int),
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT feedback_type, COUNT(*) FROM event_feedback WHERE org_id = ? GROUP BY feedback_type`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback types: %w", err)
	}
	for rows.Next() {
		var ft string
		var n int
		if err := rows.Scan(&ft, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan feedback aggregate: %w", err)
		}
		stats.ByType[ft] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avgAcc, avgRel sql.NullFloat64
	err = s.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN is_false_positive THEN 1 ELSE 0 END), 0),
			AVG(accuracy_rating), AVG(relevance_rating)
		 FROM event_feedback WHERE org_id = ?`, orgID).
		Scan(&stats.FalsePositives, &avgAcc, &avgRel)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate feedback ratings: %w", err)
	}
	stats.AvgAccuracy = avgAcc.Float64
	stats.AvgRelevance = avgRel.Float64

	rows, err = s.conn.QueryContext(ctx,
		`SELECT suggested_category, COUNT(*) FROM event_feedback
		 WHERE org_id = ? AND feedback_type = 'misclassified' AND suggested_category IS NOT NULL
		 GROUP BY suggested_category`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate misclassifications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("failed to scan misclassification aggregate: %w", err)
		}
		stats.MisclassifiedBy[cat] = n
	}
	return stats, rows.Err()
}

const feedbackSelectColumns = `SELECT id, event_id::VARCHAR, user_id, org_id, feedback_type,
	accuracy_rating, relevance_rating, is_false_positive, suggested_category, comment, created_at`

func scanFeedback(scan func(...interface{}) error) (*models.EventFeedback, error) {
	var (
		f         models.EventFeedback
		fType     string
		accuracy  sql.NullInt64
		relevance sql.NullInt64
		suggested sql.NullString
		comment   sql.NullString
	)
	err := scan(&f.ID, &f.EventID, &f.UserID, &f.OrgID, &fType,
		&accuracy, &relevance, &f.IsFalsePositive, &suggested, &comment, &f.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan feedback: %w", err)
	}
	f.FeedbackType = models.FeedbackType(fType)
	if accuracy.Valid {
		v := int(accuracy.Int64)
		f.AccuracyRating = &v
	}
	if relevance.Valid {
		v := int(relevance.Int64)
		f.RelevanceRating = &v
	}
	if suggested.Valid && suggested.String != "" {
		c := models.Category(suggested.String)
		f.SuggestedCategory = &c
	}
	f.Comment = comment.String
	return &f, nil
}
