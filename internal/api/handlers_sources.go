// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// handleListSources serves the global source registry to admins.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	var sourceType models.SourceType
	if raw := q.Get("type"); raw != "" {
		sourceType = models.SourceType(raw)
		if !sourceType.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown source type",
				map[string]interface{}{"field": "type", "value": raw})
			return
		}
	}
	activeOnly := q.Get("active") == "true"

	sources, err := s.store.ListSources(r.Context(), sourceType, activeOnly)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if sources == nil {
		sources = []models.Source{}
	}

	s.recordActivity(r, audit.ActionView, "source", "", "Viewed source registry")
	respond(w, r, http.StatusOK, sources, start)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.SourceType.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown source type",
			map[string]interface{}{"field": "source_type"})
		return
	}

	src := &models.Source{
		URL:           req.URL,
		Name:          req.Name,
		SourceType:    req.SourceType,
		IsActive:      true,
		TrustScore:    0.5,
		FetchInterval: req.FetchInterval,
	}
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	if req.TrustScore != nil {
		src.TrustScore = *req.TrustScore
	}

	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.CreateSourceIn(r.Context(), tx, src); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionCreate, "source",
			strconv.FormatInt(src.ID, 10), "Registered source "+src.Name)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			respondError(w, r, http.StatusConflict, codeValidation, "source URL already registered",
				map[string]interface{}{"field": "url"})
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, src, time.Time{})
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := pathID(w, r, "sourceID")
	if !ok {
		return
	}

	var req sourceRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.SourceType.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown source type",
			map[string]interface{}{"field": "source_type"})
		return
	}

	src, err := s.store.GetSource(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, codeNotFound, "source not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}

	src.URL = req.URL
	src.Name = req.Name
	src.SourceType = req.SourceType
	src.FetchInterval = req.FetchInterval
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	if req.TrustScore != nil {
		src.TrustScore = *req.TrustScore
	}

	err = s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.UpdateSourceIn(r.Context(), tx, src); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionUpdate, "source",
			strconv.FormatInt(sourceID, 10), "Updated source "+src.Name)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, codeNotFound, "source not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, src, time.Time{})
}
