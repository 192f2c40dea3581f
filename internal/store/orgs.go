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

	"github.com/meridianops/meridian/internal/models"
)

// CreateOrganization creates a tenant.
func (s *Store) CreateOrganization(ctx context.Context, org *models.Organization) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		`INSERT INTO organizations (name, description) VALUES (?, ?) RETURNING id, created_at`,
		org.Name, org.Description)
	if err := row.Scan(&org.ID, &org.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "unique") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganization returns one organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var org models.Organization
	var desc sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM organizations WHERE id = ?`, id).
		Scan(&org.ID, &org.Name, &desc, &org.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org.Description = desc.String
	return &org, nil
}

// ListOrganizations returns every tenant, ordered by ID.
func (s *Store) ListOrganizations(ctx context.Context) ([]models.Organization, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		var desc sql.NullString
		if err := rows.Scan(&org.ID, &org.Name, &desc, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Description = desc.String
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CreateUser creates a user with a pre-hashed password.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	row := s.conn.QueryRowContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES (?, ?) RETURNING id, created_at`,
		strings.ToLower(u.Email), u.PasswordHash)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		if strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "unique") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns a user by email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var u models.User
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(email)).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// AddMembership joins a user to an organization with a role.
func (s *Store) AddMembership(ctx context.Context, m models.Membership) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO memberships (user_id, org_id, role) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, org_id) DO UPDATE SET role = excluded.role`,
		m.UserID, m.OrgID, string(m.Role)); err != nil {
		return fmt.Errorf("failed to add membership: %w", err)
	}
	return nil
}

// ListMemberships returns a user's memberships in insertion order. The first
// entry is the user's default org.
func (s *Store) ListMemberships(ctx context.Context, userID int64) ([]models.Membership, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		`SELECT user_id, org_id, role FROM memberships WHERE user_id = ? ORDER BY org_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var m models.Membership
		var role string
		if err := rows.Scan(&m.UserID, &m.OrgID, &role); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMembership returns the user's role in an org, or ErrNotFound.
func (s *Store) GetMembership(ctx context.Context, userID, orgID int64) (*models.Membership, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var m models.Membership
	var role string
	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, org_id, role FROM memberships WHERE user_id = ? AND org_id = ?`,
		userID, orgID).Scan(&m.UserID, &m.OrgID, &role)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Role = models.Role(role)
	return &m, nil
}

// DeleteUser removes a user and their memberships. Audit rows referencing
// the user are anonymized by the audit package, not deleted.
func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
