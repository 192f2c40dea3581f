// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package auth

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// orgHeader selects the caller's current org when they belong to several.
const orgHeader = "X-Org-ID"

// Middleware authenticates requests and resolves the current org.
type Middleware struct {
	jwt      *JWTManager
	store    *store.Store
	adminKey string
	audit    *audit.Recorder
}

// NewMiddleware builds the auth middleware. rec may be nil; authorization
// denials are then not audited.
func NewMiddleware(jwt *JWTManager, st *store.Store, adminKey string, rec *audit.Recorder) *Middleware {
	return &Middleware{jwt: jwt, store: st, adminKey: adminKey, audit: rec}
}

// RequireAuth validates the bearer token, resolves the caller's current
// organization (first membership unless X-Org-ID names another one they
// belong to), and attaches the identity to the request context.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "missing bearer token")
			return
		}

		claims, err := m.jwt.ValidateToken(tokenString)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", "invalid or expired token")
			return
		}

		memberships, err := m.store.ListMemberships(r.Context(), claims.UserID)
		if err != nil {
			logging.Error().Err(err).Int64("user_id", claims.UserID).Msg("Failed to load memberships")
			writeAuthError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to resolve organization")
			return
		}
		if len(memberships) == 0 {
			writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "user has no organization")
			return
		}

		current := memberships[0]
		if selector := r.Header.Get(orgHeader); selector != "" {
			orgID, err := strconv.ParseInt(selector, 10, 64)
			if err != nil {
				writeAuthError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid X-Org-ID header")
				return
			}
			found := false
			for _, mem := range memberships {
				if mem.OrgID == orgID {
					current = mem
					found = true
					break
				}
			}
			if !found {
				writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "not a member of the selected organization")
				return
			}
		}

		identity := &Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
			OrgID:  current.OrgID,
			Role:   current.Role,
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireRole gates a route on a minimum role within the current org.
func (m *Middleware) RequireRole(min models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil || !id.Role.AtLeast(min) {
				m.recordDenied(r)
				writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminKey gates administrative mutations on the X-Admin-API-Key
// header. Comparison is constant-time.
func (m *Middleware) RequireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminKey == "" {
			m.recordDenied(r)
			writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "administrative API disabled")
			return
		}
		key := r.Header.Get("X-Admin-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.adminKey)) != 1 {
			m.recordDenied(r)
			writeAuthError(w, http.StatusForbidden, "AUTHORIZATION_ERROR", "invalid admin API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recordDenied writes an access_denied row for an authorization failure.
// Best effort: an audit write failure never blocks the response.
func (m *Middleware) recordDenied(r *http.Request) {
	if m.audit == nil {
		return
	}
	id := IdentityFromContext(r.Context())
	if id == nil {
		return
	}
	userID := id.UserID
	object := r.Method + " " + r.URL.Path
	if err := m.audit.RecordAccessDenied(r.Context(), id.OrgID, &userID, id.Email, "endpoint", object, r); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("object", object).
			Msg("Failed to write access_denied record")
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}
