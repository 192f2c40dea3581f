// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
)

// SettingsReader exposes the org settings the recorder consults before
// writing. Satisfied by the main store.
type SettingsReader interface {
	GetOrgSettings(ctx context.Context, orgID int64) (*models.OrgSettings, error)
}

// Recorder is the single write path for audit records. Mutating handlers
// pass their open transaction so the record commits with the mutation.
type Recorder struct {
	store    Store
	settings SettingsReader

	// warned tracks orgs already logged for having audit disabled, so the
	// skip warning fires once per org per process.
	warned sync.Map
}

// NewRecorder creates a recorder over a store. settings may be nil, in
// which case recording is unconditional.
func NewRecorder(store Store, settings SettingsReader) *Recorder {
	return &Recorder{store: store, settings: settings}
}

// Record writes rec through ex (the caller's transaction, or nil to write
// directly). When the org has audit logging disabled the write is skipped
// and a warning is logged once per org.
func (r *Recorder) Record(ctx context.Context, ex Execer, rec *Record) error {
	if !r.enabled(ctx, rec.OrgID) {
		if _, seen := r.warned.LoadOrStore(rec.OrgID, struct{}{}); !seen {
			logging.Warn().Int64("org_id", rec.OrgID).
				Msg("Audit logging disabled for org; skipping audit writes")
		}
		return nil
	}

	if rec.RequestID == "" {
		rec.RequestID = logging.RequestIDFromContext(ctx)
	}
	if ex != nil {
		return r.store.SaveIn(ctx, ex, rec)
	}
	return r.store.Save(ctx, rec)
}

// RecordMutation writes a create/update/delete/view/export record.
func (r *Recorder) RecordMutation(ctx context.Context, ex Execer, orgID int64, userID *int64, userEmail string, action Action, objectType, objectID, description string) error {
	return r.Record(ctx, ex, &Record{
		OrgID:       orgID,
		UserID:      userID,
		UserEmail:   userEmail,
		Action:      action,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Description: description,
	})
}

// RecordAccessDenied writes the access_denied row produced by tenancy
// violations and authorization failures. The record lands in the CALLER's
// org, not the org owning the object.
func (r *Recorder) RecordAccessDenied(ctx context.Context, orgID int64, userID *int64, userEmail, objectType, objectID string, req *http.Request) error {
	rec := &Record{
		OrgID:       orgID,
		UserID:      userID,
		UserEmail:   userEmail,
		Action:      ActionAccessDenied,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Description: "Access denied for " + objectType,
	}
	applyRequest(rec, req)
	return r.Record(ctx, nil, rec)
}

// RecordLogin writes a login row.
func (r *Recorder) RecordLogin(ctx context.Context, orgID, userID int64, userEmail string, req *http.Request) error {
	rec := &Record{
		OrgID:       orgID,
		UserID:      &userID,
		UserEmail:   userEmail,
		Action:      ActionLogin,
		ObjectType:  "session",
		Description: "User logged in",
	}
	applyRequest(rec, req)
	return r.Record(ctx, nil, rec)
}

// RecordLogout writes a logout row.
func (r *Recorder) RecordLogout(ctx context.Context, orgID, userID int64, userEmail string, req *http.Request) error {
	rec := &Record{
		OrgID:       orgID,
		UserID:      &userID,
		UserEmail:   userEmail,
		Action:      ActionLogout,
		ObjectType:  "session",
		Description: "User logged out",
	}
	applyRequest(rec, req)
	return r.Record(ctx, nil, rec)
}

// Query retrieves records matching the filter.
func (r *Recorder) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	return r.store.Query(ctx, filter)
}

// Count returns the number of records matching the filter.
func (r *Recorder) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return r.store.Count(ctx, filter)
}

// Sweep removes one org's records older than its retention window. Called
// by the retention job only.
func (r *Recorder) Sweep(ctx context.Context, orgID int64, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	return r.store.DeleteOlderThan(ctx, orgID, cutoff)
}

// AnonymizeUser clears user_id on the user's records after account
// deletion. The rows stay append-only otherwise.
func (r *Recorder) AnonymizeUser(ctx context.Context, userID int64) (int64, error) {
	return r.store.AnonymizeUser(ctx, userID)
}

func (r *Recorder) enabled(ctx context.Context, orgID int64) bool {
	if r.settings == nil {
		return true
	}
	settings, err := r.settings.GetOrgSettings(ctx, orgID)
	if err != nil {
		// Settings lookup failure must not silence the audit trail.
		logging.Warn().Err(err).Int64("org_id", orgID).
			Msg("Failed to read org settings; recording audit anyway")
		return true
	}
	return settings.AuditLogging
}

// applyRequest fills source fields from an HTTP request if one is present.
func applyRequest(rec *Record, req *http.Request) {
	if req == nil {
		return
	}
	rec.IPAddress = ClientIP(req)
	rec.UserAgent = req.UserAgent()
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
