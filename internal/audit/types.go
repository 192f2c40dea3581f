// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package audit records org-scoped mutations as append-only rows. Records
// are written synchronously in the caller's transaction so a mutation and
// its audit entry commit or roll back together. Only the retention sweep
// deletes rows; deleting a user anonymizes their rows instead.
package audit

import (
	"context"
	"database/sql"
	"time"
)

// Action categorizes what a record describes.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionDelete       Action = "delete"
	ActionView         Action = "view"
	ActionExport       Action = "export"
	ActionLogin        Action = "login"
	ActionLogout       Action = "logout"
	ActionAccessDenied Action = "access_denied"
)

// Actions lists every valid action value.
var Actions = []Action{
	ActionCreate, ActionUpdate, ActionDelete, ActionView,
	ActionExport, ActionLogin, ActionLogout, ActionAccessDenied,
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	for _, v := range Actions {
		if a == v {
			return true
		}
	}
	return false
}

// Record is one append-only audit row.
type Record struct {
	// ID is a UUID assigned at write time.
	ID string `json:"id"`

	// OrgID scopes the record to one organization.
	OrgID int64 `json:"org_id"`

	// UserID is nil for system actions and after user anonymization.
	UserID *int64 `json:"user_id,omitempty"`

	// UserEmail is retained through anonymization for forensic context.
	UserEmail string `json:"user_email,omitempty"`

	Action     Action `json:"action"`
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id,omitempty"`

	// Description is a human-readable account of the mutation.
	Description string `json:"description"`

	// Metadata carries action-specific details.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	// RequestID from the originating HTTP request.
	RequestID string `json:"request_id,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Execer is the write surface shared by *sql.DB and *sql.Tx. Passing the
// caller's transaction makes the audit write part of the audited mutation.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store persists audit records.
type Store interface {
	// SaveIn writes a record through ex, which may be an open transaction.
	SaveIn(ctx context.Context, ex Execer, rec *Record) error

	// Save writes a record outside any caller transaction.
	Save(ctx context.Context, rec *Record) error

	// Get retrieves one record by ID within an org.
	Get(ctx context.Context, orgID int64, id string) (*Record, error)

	// Query retrieves records matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Record, error)

	// Count returns the number of records matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// DeleteOlderThan removes records for one org older than the cutoff.
	// It exists for the retention sweep only.
	DeleteOlderThan(ctx context.Context, orgID int64, cutoff time.Time) (int64, error)

	// AnonymizeUser clears user_id on the user's records, keeping the rows
	// and their user_email.
	AnonymizeUser(ctx context.Context, userID int64) (int64, error)
}

// QueryFilter selects audit records. OrgID is mandatory: audit reads are
// always tenant-scoped.
type QueryFilter struct {
	OrgID int64 `json:"org_id"`

	Action     Action `json:"action,omitempty"`
	ObjectType string `json:"object_type,omitempty"`
	ObjectID   string `json:"object_id,omitempty"`
	UserID     *int64 `json:"user_id,omitempty"`

	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a filter with sane pagination for an org.
func DefaultQueryFilter(orgID int64) QueryFilter {
	return QueryFilter{OrgID: orgID, Limit: 100}
}
