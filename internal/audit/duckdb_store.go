// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/meridianops/meridian/internal/logging"
)

// DuckDBStore implements Store on the shared DuckDB connection. The audit
// package owns its table; nothing else writes to it.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// during startup before writing records.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_log table and its indexes if absent.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			org_id BIGINT NOT NULL,
			user_id BIGINT,
			user_email TEXT,
			action TEXT NOT NULL,
			object_type TEXT NOT NULL,
			object_id TEXT,
			description TEXT NOT NULL,
			metadata JSON,
			ip_address TEXT,
			user_agent TEXT,
			request_id TEXT,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_org_time ON audit_log(org_id, timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_audit_action_object ON audit_log(action, object_type)
	`

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create audit schema: %w", err)
		}
	}

	logging.Debug().Msg("Audit log table created/verified")
	return nil
}

const auditInsertQuery = `
	INSERT INTO audit_log (
		id, org_id, user_id, user_email, action, object_type, object_id,
		description, metadata, ip_address, user_agent, request_id, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveIn writes a record through ex, typically the caller's open
// transaction. ID and timestamp are assigned here if unset.
func (s *DuckDBStore) SaveIn(ctx context.Context, ex Execer, rec *Record) error {
	if rec == nil {
		return errors.New("audit record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	var metadata interface{}
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := ex.ExecContext(ctx, auditInsertQuery,
		rec.ID, rec.OrgID, rec.UserID, nullIfEmpty(rec.UserEmail),
		string(rec.Action), rec.ObjectType, nullIfEmpty(rec.ObjectID),
		rec.Description, metadata, nullIfEmpty(rec.IPAddress),
		nullIfEmpty(rec.UserAgent), nullIfEmpty(rec.RequestID), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// Save writes a record outside any caller transaction.
func (s *DuckDBStore) Save(ctx context.Context, rec *Record) error {
	return s.SaveIn(ctx, s.db, rec)
}

// Get retrieves one record by ID, scoped to orgID.
func (s *DuckDBStore) Get(ctx context.Context, orgID int64, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		auditSelectColumns+` FROM audit_log WHERE org_id = ? AND id = ?`, orgID, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit record not found: %s", id)
	}
	return rec, err
}

// Query retrieves records matching the filter, newest first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	where, args := buildAuditWhere(filter)
	query := auditSelectColumns + ` FROM audit_log ` + where + ` ORDER BY timestamp DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Count returns the number of records matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildAuditWhere(filter)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes one org's records older than the cutoff. Reserved
// for the retention sweep.
func (s *DuckDBStore) DeleteOlderThan(ctx context.Context, orgID int64, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE org_id = ? AND timestamp < ?`, orgID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info().Int64("org_id", orgID).Int64("deleted", n).
			Time("cutoff", cutoff).Msg("Audit retention sweep removed records")
	}
	return n, nil
}

// AnonymizeUser clears user_id on the user's records across all orgs. The
// rows themselves stay, with user_email intact.
func (s *DuckDBStore) AnonymizeUser(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_log SET user_id = NULL WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to anonymize audit records: %w", err)
	}
	return res.RowsAffected()
}

const auditSelectColumns = `SELECT id::VARCHAR, org_id, user_id, user_email, action,
	object_type, object_id, description, metadata::VARCHAR, ip_address,
	user_agent, request_id, timestamp`

func buildAuditWhere(filter QueryFilter) (string, []interface{}) {
	conditions := []string{"org_id = ?"}
	args := []interface{}{filter.OrgID}

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.ObjectType != "" {
		conditions = append(conditions, "object_type = ?")
		args = append(args, filter.ObjectType)
	}
	if filter.ObjectID != "" {
		conditions = append(conditions, "object_id = ?")
		args = append(args, filter.ObjectID)
	}
	if filter.UserID != nil {
		conditions = append(conditions, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Since != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, *filter.Since)
	}
	if filter.Until != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, *filter.Until)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanRecord(scan func(...interface{}) error) (*Record, error) {
	var (
		rec       Record
		userID    sql.NullInt64
		email     sql.NullString
		action    string
		objectID  sql.NullString
		metadata  sql.NullString
		ip        sql.NullString
		userAgent sql.NullString
		requestID sql.NullString
	)
	err := scan(&rec.ID, &rec.OrgID, &userID, &email, &action,
		&rec.ObjectType, &objectID, &rec.Description, &metadata,
		&ip, &userAgent, &requestID, &rec.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	rec.Action = Action(action)
	if userID.Valid {
		v := userID.Int64
		rec.UserID = &v
	}
	rec.UserEmail = email.String
	rec.ObjectID = objectID.String
	rec.IPAddress = ip.String
	rec.UserAgent = userAgent.String
	rec.RequestID = requestID.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			logging.Debug().Err(err).Str("id", rec.ID).Msg("Failed to parse audit metadata JSON")
		}
	}
	return &rec, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
