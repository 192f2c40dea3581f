// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/fusion"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// handleListEvents serves the global event query with filters and
// deterministic pagination.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter, ok := parseEventFilter(w, r)
	if !ok {
		return
	}
	page, pageSize, ok := s.parsePagination(w, r)
	if !ok {
		return
	}

	events, total, err := s.store.ListEvents(r.Context(), filter, page, pageSize)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondPage(w, r, events, total, page, pageSize, start)
}

// eventDetail is the get_event payload: the event plus its cluster summary
// when it belongs to one.
type eventDetail struct {
	Event   *models.Event   `json:"event"`
	Cluster *models.Cluster `json:"cluster,omitempty"`
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventID := chi.URLParam(r, "eventID")

	ev, err := s.store.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, codeNotFound, "event not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}

	detail := eventDetail{Event: ev}
	if ev.ClusterID != nil {
		cluster, err := s.store.GetCluster(r.Context(), *ev.ClusterID)
		switch {
		case err == nil:
			detail.Cluster = cluster
		case errors.Is(err, store.ErrNotFound):
			// Cluster dissolved between the event read and this lookup.
		default:
			respondDatabaseError(w, r, err)
			return
		}
	}
	respond(w, r, http.StatusOK, detail, start)
}

// handleRunFusion triggers a synchronous fusion pass. hours_back overrides
// the configured window for this pass only.
func (s *Server) handleRunFusion(w http.ResponseWriter, r *http.Request) {
	var req runFusionRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
			return
		}
	}

	eng := s.fusion
	if req.HoursBack > 0 {
		override := fusionOverride(s.cfg.Fusion, req.HoursBack)
		eng = fusion.NewEngine(s.store, &override)
	}
	if eng == nil {
		respondError(w, r, http.StatusServiceUnavailable, codeValidation, "fusion disabled", nil)
		return
	}

	summary, err := eng.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrFusionLocked) {
			respondError(w, r, http.StatusConflict, codeFusionInProgress, "a fusion pass is already running", nil)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("Manual fusion pass failed")
		respondError(w, r, http.StatusInternalServerError, codeDatabase, "fusion pass failed", nil)
		return
	}

	s.recordActivity(r, audit.ActionCreate, "fusion_run", "",
		"Manual fusion pass over "+strconv.Itoa(req.HoursBack)+"h window")
	respond(w, r, http.StatusOK, summary, time.Time{})
}

// fusionOverride returns the fusion config with the window replaced by an
// hours_back override.
func fusionOverride(cfg config.FusionConfig, hoursBack int) config.FusionConfig {
	if hoursBack > 0 {
		cfg.Window = time.Duration(hoursBack) * time.Hour
	}
	return cfg
}
