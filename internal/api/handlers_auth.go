// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/store"
)

// handleLogin exchanges credentials for a bearer token. Wrong email and
// wrong password produce the same response.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusUnauthorized, codeAuthentication, "invalid credentials", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		respondError(w, r, http.StatusUnauthorized, codeAuthentication, "invalid credentials", nil)
		return
	}

	memberships, err := s.store.ListMemberships(r.Context(), user.ID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if len(memberships) == 0 {
		respondError(w, r, http.StatusForbidden, codeAuthorization, "user has no organization", nil)
		return
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to sign token")
		respondError(w, r, http.StatusInternalServerError, codeAuthentication, "failed to issue token", nil)
		return
	}

	if err := s.audit.RecordLogin(r.Context(), memberships[0].OrgID, user.ID, user.Email, r); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write login record")
	}

	respond(w, r, http.StatusOK, map[string]interface{}{
		"token":       token,
		"user":        user,
		"memberships": memberships,
	}, time.Time{})
}

// currentIdentity is a convenience for handlers behind RequireAuth.
func currentIdentity(r *http.Request) *auth.Identity {
	return auth.IdentityFromContext(r.Context())
}
