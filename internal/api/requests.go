// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
	"github.com/meridianops/meridian/internal/validation"
)

// loginRequest is the /auth/login body.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// dossierRequest is the create/update body for dossiers.
type dossierRequest struct {
	Name        string             `json:"name" validate:"required,min=1,max=200"`
	DossierType models.DossierType `json:"dossier_type" validate:"required,dossier_type"`
	Description string             `json:"description" validate:"max=2000"`
	Aliases     []string           `json:"aliases" validate:"max=50,dive,min=1,max=200"`
	Tags        []string           `json:"tags" validate:"max=50,dive,min=1,max=100"`
	Notes       string             `json:"notes" validate:"max=10000"`
	Lat         *float64           `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lon         *float64           `json:"lon" validate:"omitempty,min=-180,max=180"`
}

// watchlistRequest is the create/update body for watchlists.
type watchlistRequest struct {
	Name       string          `json:"name" validate:"required,min=1,max=200"`
	Priority   models.Priority `json:"priority" validate:"required,watch_priority"`
	DossierIDs []int64         `json:"dossier_ids" validate:"max=500"`
	Personal   bool            `json:"personal"`
}

// feedbackRequest is the /feedback body.
type feedbackRequest struct {
	EventID           string              `json:"event_id" validate:"required"`
	FeedbackType      models.FeedbackType `json:"feedback_type" validate:"required,feedback_type"`
	AccuracyRating    *int                `json:"accuracy_rating" validate:"omitempty,min=1,max=5"`
	RelevanceRating   *int                `json:"relevance_rating" validate:"omitempty,min=1,max=5"`
	IsFalsePositive   bool                `json:"is_false_positive"`
	SuggestedCategory *models.Category    `json:"suggested_category"`
	Comment           string              `json:"comment" validate:"max=5000"`
}

// sourceRequest is the admin create/update body for sources.
type sourceRequest struct {
	URL           string            `json:"url" validate:"required,url"`
	Name          string            `json:"name" validate:"required,min=1,max=200"`
	SourceType    models.SourceType `json:"source_type" validate:"required,source_type"`
	IsActive      *bool             `json:"is_active"`
	TrustScore    *float64          `json:"trust_score" validate:"omitempty,min=0,max=1"`
	FetchInterval int               `json:"fetch_interval_minutes" validate:"omitempty,min=1"`
}

// runFusionRequest is the admin fusion trigger body.
type runFusionRequest struct {
	HoursBack int `json:"hours_back" validate:"omitempty,min=1,max=720"`
}

// parsePagination reads page and page_size query params, applying the
// configured default and cap. Returns ok=false after writing the error.
func (s *Server) parsePagination(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page = 1
	pageSize = s.cfg.API.DefaultPageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondError(w, r, http.StatusBadRequest, codeValidation, "page must be a positive integer",
				map[string]interface{}{"field": "page"})
			return 0, 0, false
		}
		page = v
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > s.cfg.API.MaxPageSize {
			respondError(w, r, http.StatusBadRequest, codeValidation,
				"page_size must be 1 to "+strconv.Itoa(s.cfg.API.MaxPageSize),
				map[string]interface{}{"field": "page_size"})
			return 0, 0, false
		}
		pageSize = v
	}
	return page, pageSize, true
}

// parseEventFilter reads the event list filters. Returns ok=false after
// writing the error.
func parseEventFilter(w http.ResponseWriter, r *http.Request) (store.EventFilter, bool) {
	var filter store.EventFilter
	q := r.URL.Query()

	if raw := q.Get("category"); raw != "" {
		c := models.Category(raw)
		if !c.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown category",
				map[string]interface{}{"field": "category", "value": raw})
			return filter, false
		}
		filter.Category = c
	}
	if raw := q.Get("sentiment"); raw != "" {
		sent := models.Sentiment(raw)
		if !sent.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown sentiment",
				map[string]interface{}{"field": "sentiment", "value": raw})
			return filter, false
		}
		filter.Sentiment = sent
	}
	filter.LocationName = q.Get("location")
	filter.ClusterID = q.Get("cluster_id")

	if raw := q.Get("min_relevance"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			respondError(w, r, http.StatusBadRequest, codeValidation, "min_relevance must be 0 to 1",
				map[string]interface{}{"field": "min_relevance"})
			return filter, false
		}
		filter.MinRelevance = v
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
				return filter, false
			}
			*bound.dst = &t
		}
	}
	return filter, true
}

// validateBody runs struct validation, responding with field details on
// failure. Returns false after writing the error.
func (s *Server) validateBody(w http.ResponseWriter, r *http.Request, body interface{}) bool {
	if verr := validation.ValidateStruct(body); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return false
	}
	return true
}
