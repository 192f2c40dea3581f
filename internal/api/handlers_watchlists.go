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

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)

	lists, err := s.store.ListWatchlists(r.Context(), id.OrgID)
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	if lists == nil {
		lists = []models.Watchlist{}
	}
	respond(w, r, http.StatusOK, lists, start)
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id := currentIdentity(r)
	watchlistID, ok := pathID(w, r, "watchlistID")
	if !ok {
		return
	}

	list, err := s.store.GetWatchlist(r.Context(), id.OrgID, watchlistID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "watchlist", strconv.FormatInt(watchlistID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "watchlist not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, list, start)
}

func (s *Server) handleCreateWatchlist(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)

	var req watchlistRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.Priority.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown priority",
			map[string]interface{}{"field": "priority"})
		return
	}
	if !s.dossiersBelongToOrg(w, r, id.OrgID, req.DossierIDs) {
		return
	}

	list := &models.Watchlist{
		OrgID:      id.OrgID,
		Name:       req.Name,
		Priority:   req.Priority,
		DossierIDs: req.DossierIDs,
	}
	if req.Personal {
		userID := id.UserID
		list.UserID = &userID
	}
	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.CreateWatchlistIn(r.Context(), tx, list); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionCreate, "watchlist",
			strconv.FormatInt(list.ID, 10), "Created watchlist "+list.Name)
	})
	if err != nil {
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, list, time.Time{})
}

func (s *Server) handleUpdateWatchlist(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	watchlistID, ok := pathID(w, r, "watchlistID")
	if !ok {
		return
	}

	var req watchlistRequest
	if !decodeBody(w, r, &req) || !s.validateBody(w, r, &req) {
		return
	}
	if !req.Priority.IsValid() {
		respondError(w, r, http.StatusBadRequest, codeValidation, "unknown priority",
			map[string]interface{}{"field": "priority"})
		return
	}

	existing, err := s.store.GetWatchlist(r.Context(), id.OrgID, watchlistID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "watchlist", strconv.FormatInt(watchlistID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "watchlist not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	if !s.dossiersBelongToOrg(w, r, id.OrgID, req.DossierIDs) {
		return
	}

	existing.Name = req.Name
	existing.Priority = req.Priority
	existing.DossierIDs = req.DossierIDs

	err = s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.UpdateWatchlistIn(r.Context(), tx, existing); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionUpdate, "watchlist",
			strconv.FormatInt(watchlistID, 10), "Updated watchlist "+existing.Name)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "watchlist", strconv.FormatInt(watchlistID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "watchlist not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, existing, time.Time{})
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	id := currentIdentity(r)
	watchlistID, ok := pathID(w, r, "watchlistID")
	if !ok {
		return
	}

	err := s.store.WithTx(r.Context(), func(tx *sql.Tx) error {
		if err := s.store.DeleteWatchlistIn(r.Context(), tx, id.OrgID, watchlistID); err != nil {
			return err
		}
		return s.recordMutation(r, tx, audit.ActionDelete, "watchlist",
			strconv.FormatInt(watchlistID, 10), "Deleted watchlist")
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recordDenied(r, "watchlist", strconv.FormatInt(watchlistID, 10))
			respondError(w, r, http.StatusNotFound, codeNotFound, "watchlist not found", nil)
			return
		}
		respondDatabaseError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{"deleted": true}, time.Time{})
}

// dossiersBelongToOrg verifies every referenced dossier exists within the
// caller's org. Cross-org references are rejected as validation errors, not
// 404s, so a watchlist can never leak another tenant's IDs.
func (s *Server) dossiersBelongToOrg(w http.ResponseWriter, r *http.Request, orgID int64, ids []int64) bool {
	for _, dossierID := range ids {
		if _, err := s.store.GetDossier(r.Context(), orgID, dossierID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.recordDenied(r, "dossier", strconv.FormatInt(dossierID, 10))
				respondError(w, r, http.StatusBadRequest, codeValidation, "dossier_ids references an unknown dossier",
					map[string]interface{}{"dossier_id": dossierID})
				return false
			}
			respondDatabaseError(w, r, err)
			return false
		}
	}
	return true
}
