// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/models"
)

// handleSubmitFeedback records an org-scoped judgment about a global event.
// Feedback against deleted or unknown events is rejected.
func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)

	var req feedbackRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.FeedbackType.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown feedback type",
			map[string]interface{}{"field": "feedback_type"})
		return
	}
	if req.SuggestedCategory != nil && !req.SuggestedCategory.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown suggested category",
			map[string]interface{}{"field": "suggested_category"})
		return
	}

	exists, err := s.store.EventExists(r.Context(), req.EventID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if !exists {
		respondError(w, r, http.StatusBadRequest, codeValidation, "event does not exist",
			map[string]interface{}{"field": "event_id"})
		return
	}

	fb := &models.EventFeedback{
		EventID:           req.EventID,
		UserID:            id.UserID,
		OrgID:             id.OrgID,
		FeedbackType:      req.FeedbackType,
		AccuracyRating:    req.AccuracyRating,
		RelevanceRating:   req.RelevanceRating,
		IsFalsePositive:   req.IsFalsePositive,
		SuggestedCategory: req.SuggestedCategory,
		Comment:           req.Comment,
	}
	err = s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.CreateFeedbackIn(r.Context(), tx, fb); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionCreate, "feedback",
			strconv.FormatInt(fb.ID, 10),
			"Submitted "+string(fb.FeedbackType)+" feedback on event "+fb.EventID)
	})
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, fb, time.Time{})
}

// handleFeedbackStats aggregates the org's feedback rows.
func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)

	stats, err := s.store.FeedbackStats(r.Context(), id.OrgID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, stats, start)
}
