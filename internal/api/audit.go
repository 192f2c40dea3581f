// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"net/http"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/logging"
)

// recordMutation writes the audit row for a data mutation through ex, the
// mutation's own transaction. A failed audit write returns the error so the
// caller's transaction rolls back: the mutation and its audit row commit or
// fail together.
func (s *Server) recordMutation(r *http.Request, ex audit.Execer, action audit.Action, objectType, objectID, description string) error {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		return nil
	}
	userID := id.UserID
	return s.audit.Record(r.Context(), ex, &audit.Record{
		OrgID:       id.OrgID,
		UserID:      &userID,
		UserEmail:   id.Email,
		Action:      action,
		ObjectType:  objectType,
		ObjectID:    objectID,
		Description: description,
		IPAddress:   audit.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
}

// recordActivity writes a best-effort audit row for audited reads and
// process triggers, which have no enclosing store transaction. Failures are
// logged, never surfaced to the client.
func (s *Server) recordActivity(r *http.Request, action audit.Action, objectType, objectID, description string) {
	if err := s.recordMutation(r, nil, action, objectType, objectID, description); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).
			Str("object_type", objectType).
			Str("object_id", objectID).
			Msg("Failed to write audit record")
	}
}

// recordDenied writes an access_denied row in the CALLER's org. Used when a
// scoped lookup misses: the object may not exist or may belong to another
// tenant, and both cases are masked as 404.
func (s *Server) recordDenied(r *http.Request, objectType, objectID string) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		return
	}
	userID := id.UserID
	if err := s.audit.RecordAccessDenied(r.Context(), id.OrgID, &userID, id.Email, objectType, objectID, r); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write access_denied record")
	}
}
