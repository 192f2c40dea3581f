// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/audit"
)

// minAuditRetentionDays is the floor on audit retention. Orgs cannot
// configure a shorter trail.
const minAuditRetentionDays = 30

// handleGetSettings returns the org settings, auto-creating defaults for
// orgs with no stored row.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)

	settings, err := s.store.GetOrgSettings(r.Context(), id.OrgID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, settings, start)
}

// handleUpdateSettings merges the provided fields over the current
// settings. Fields absent from the body keep their stored values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)

	settings, err := s.store.GetOrgSettings(r.Context(), id.OrgID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}

	// Decoding over the current struct gives partial-merge semantics:
	// only fields present in the body are overwritten.
	if err := json.NewDecoder(r.Body).Decode(settings); err != nil {
		respondError(w, r, http.StatusBadRequest, codeValidation, "invalid JSON body", nil)
		return
	}
	settings.OrgID = id.OrgID

	if settings.AuditRetentionDays < minAuditRetentionDays {
		respondError(w, r, http.StatusBadRequest, codeValidation,
			"audit_retention_days must be at least 30",
			map[string]interface{}{"field": "audit_retention_days"})
		return
	}
	if settings.HighPriorityThreshold < 0 || settings.HighPriorityThreshold > 1 {
		respondError(w, r, http.StatusBadRequest, codeValidation,
			"high_priority_threshold must be 0 to 1",
			map[string]interface{}{"field": "high_priority_threshold"})
		return
	}
	if settings.DefaultMinRelevance < 0 || settings.DefaultMinRelevance > 1 {
		respondError(w, r, http.StatusBadRequest, codeValidation,
			"default_min_relevance must be 0 to 1",
			map[string]interface{}{"field": "default_min_relevance"})
		return
	}
	for _, c := range settings.AlertCategories {
		if !c.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown category in alert_categories",
				map[string]interface{}{"value": string(c)})
			return
		}
	}
	if settings.EventRetentionDays != nil && *settings.EventRetentionDays < 1 {
		respondError(w, r, http.StatusBadRequest, codeValidation,
			"event_retention_days must be positive",
			map[string]interface{}{"field": "event_retention_days"})
		return
	}

	err = s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.PutOrgSettingsIn(r.Context(), tx, settings); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionUpdate, "org_settings", "",
			"Updated organization settings")
	})
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, settings, time.Time{})
}

// handleResetSettings deletes the stored row; the next read re-creates
// defaults.
func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)

	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.ResetOrgSettingsIn(r.Context(), tx, id.OrgID); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionDelete, "org_settings", "",
			"Reset organization settings to defaults")
	})
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"reset": true}, time.Time{})
}
