// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"net/http"
	"strconv"
	"time"
)

const (
	trendsDefaultDays = 30
	trendsMaxDays     = 90
)

// handleDashboardSummary serves the org dashboard aggregates. The
// high-priority threshold comes from the org's settings.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)

	settings, err := s.store.GetOrgSettings(r.Context(), id.OrgID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}

	summary, err := s.store.GetDashboardSummary(r.Context(), id.OrgID, settings.HighPriorityThreshold)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, summary, start)
}

// handleDashboardTrends serves per-day counts for up to 90 days.
func (s *Server) handleDashboardTrends(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	days := trendsDefaultDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > trendsMaxDays {
			respondError(w, r, http.StatusBadRequest, codeValidation,
				"days must be 1 to "+strconv.Itoa(trendsMaxDays),
				map[string]interface{}{"field": "days"})
			return
		}
		days = v
	}

	trends, err := s.store.GetDashboardTrends(r.Context(), days)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, trends, start)
}
