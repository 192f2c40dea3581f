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

	"github.com/go-chi/chi/v5"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/dossier"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

// pathID parses a numeric URL parameter. Returns ok=false after writing
// the error.
func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		respondError(w, r, http.StatusBadRequest, codeValidation, "invalid "+param,
			map[string]interface{}{"field": param})
		return 0, false
	}
	return id, true
}

func (s *Server) handleListDossiers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)

	var dossierType models.DossierType
	if raw := r.URL.Query().Get("type"); raw != "" {
		dossierType = models.DossierType(raw)
		if !dossierType.IsValid() {
			respondError(w, r, http.StatusBadRequest, codeValidation, "unknown dossier type",
				map[string]interface{}{"field": "type", "value": raw})
			return
		}
	}

	dossiers, err := s.store.ListDossiers(r.Context(), id.OrgID, dossierType)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if dossiers == nil {
		dossiers = []models.Dossier{}
	}
	respond(w, r, http.StatusOK, dossiers, start)
}

func (s *Server) handleGetDossier(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)
	dossierID, ok := pathID(w, r, "dossierID")
	if !ok {
		return
	}

	d, err := s.store.GetDossier(r.Context(), id.OrgID, dossierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "dossier", strconv.FormatInt(dossierID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "dossier not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, d, start)
}

func (s *Server) handleCreateDossier(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)

	var req dossierRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.DossierType.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown dossier type",
			map[string]interface{}{"field": "dossier_type"})
		return
	}
	if req.DossierType == models.DossierTypePerson && !dossier.IsPublicOfficial(req.Name) {
		respondError(w, r, http.StatusUnprocessableEntity, codeNotOfficial,
			"person dossiers are restricted to designated public officials",
			map[string]interface{}{"name": req.Name})
		return
	}

	d := &models.Dossier{
		OrgID:       id.OrgID,
		Name:        req.Name,
		DossierType: req.DossierType,
		Description: req.Description,
		Aliases:     req.Aliases,
		Tags:        req.Tags,
		Notes:       req.Notes,
		Lat:         req.Lat,
		Lon:         req.Lon,
	}
	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.CreateDossierIn(r.Context(), tx, d); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionCreate, "dossier",
			strconv.FormatInt(d.ID, 10), "Created dossier "+d.Name)
	})
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, d, time.Time{})
}

func (s *Server) handleUpdateDossier(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	dossierID, ok := pathID(w, r, "dossierID")
	if !ok {
		return
	}

	var req dossierRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}

	existing, err := s.store.GetDossier(r.Context(), id.OrgID, dossierID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "dossier", strconv.FormatInt(dossierID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "dossier not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}

	// The type is fixed at creation; renaming a person dossier re-checks
	// the official designation.
	if req.DossierType != existing.DossierType {
		respondError(w, r, http.StatusBadRequest, codeValidation, "dossier_type cannot change",
			map[string]interface{}{"field": "dossier_type"})
		return
	}
	if existing.DossierType == models.DossierTypePerson && !dossier.IsPublicOfficial(req.Name) {
		respondError(w, r, http.StatusUnprocessableEntity, codeNotOfficial,
			"person dossiers are restricted to designated public officials",
			map[string]interface{}{"name": req.Name})
		return
	}

	existing.Name = req.Name
	existing.Description = req.Description
	existing.Aliases = req.Aliases
	existing.Tags = req.Tags
	existing.Notes = req.Notes
	existing.Lat = req.Lat
	existing.Lon = req.Lon

	err = s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.UpdateDossierIn(r.Context(), tx, existing); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionUpdate, "dossier",
			strconv.FormatInt(dossierID, 10), "Updated dossier "+existing.Name)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "dossier", strconv.FormatInt(dossierID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "dossier not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, existing, time.Time{})
}

func (s *Server) handleDeleteDossier(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	dossierID, ok := pathID(w, r, "dossierID")
	if !ok {
		return
	}

	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.DeleteDossierIn(r.Context(), tx, id.OrgID, dossierID); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionDelete, "dossier",
			strconv.FormatInt(dossierID, 10), "Deleted dossier")
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "dossier", strconv.FormatInt(dossierID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "dossier not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"deleted": true}, time.Time{})
}
