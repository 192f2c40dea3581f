// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meridianops/meridian/internal/audit"
)

// handleListAudit serves the org's audit trail to admins. Reading the
// trail is itself an audited action.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)
	q := r.URL.Query()

	filter := audit.DefaultQueryFilter(id.OrgID)

	if raw := q.Get("action"); raw != "" {
		action := audit.Action(raw)
		if !action.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown action",
				map[string]interface{}{"field": "action", "value": raw})
			return
		}
		filter.Action = action
	}
	filter.ObjectType = q.Get("object_type")
	filter.ObjectID = q.Get("object_id")

	if raw := q.Get("user_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, codeValidation, "invalid user_id",
				map[string]interface{}{"field": "user_id"})
			return
		}
		filter.UserID = &v
	}
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		if raw := q.Get(bound.param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				respondError(w, r, http.StatusBadRequest, codeValidation,
					bound.param+" must be RFC 3339",
					map[string]interface{}{"field": bound.param})
				return
			}
			*bound.dst = &t
		}
	}

	page, pageSize, ok := s.parsePagination(w, r)
	if !ok {
		return
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	records, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	total, err := s.audit.Count(r.Context(), filter)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if records == nil {
		records = []audit.Record{}
	}

	s.recordActivity(r, audit.ActionView, "audit_log", "", "Viewed audit trail")
	respondPage(w, r, records, total, page, pageSize, start)
}
