// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
)

// Error codes returned in APIError.Code.
const (
	codeValidation       = "VALIDATION_ERROR"
	codeNotFound         = "NOT_FOUND"
	codeAuthentication   = "AUTHENTICATION_ERROR"
	codeAuthorization    = "AUTHORIZATION_ERROR"
	codeRateLimited      = "RATE_LIMIT_EXCEEDED"
	codeDatabase         = "DATABASE_ERROR"
	codeFusionInProgress = "FUSION_IN_PROGRESS"
	codeNotOfficial      = "PERSON_NOT_PUBLIC_OFFICIAL"
)

// respond writes a success envelope. A non-zero start stamps the query time.
func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}, start time.Time) {
	meta := models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
	if !start.IsZero() {
		meta.QueryTimeMS = time.Since(start).Milliseconds()
	}
	writeEnvelope(w, status, models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: meta,
	})
}

// respondError writes an error envelope with a machine-readable code.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	writeEnvelope(w, status, models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: &models.APIError{Code: code, Message: message, Details: details},
	})
}

// respondDatabaseError logs the underlying error and returns a generic 500.
// Store errors never reach clients verbatim.
func respondDatabaseError(w http.ResponseWriter, r *http.Request, err error) {
	logging.Ctx(r.Context()).Error().Err(err).
		Str("path", r.URL.Path).
		Msg("Database operation failed")
	respondError(w, r, http.StatusInternalServerError, codeDatabase, "database operation failed", nil)
}

// respondPage wraps list results with paging info.
func respondPage(w http.ResponseWriter, r *http.Request, items interface{}, total int64, page, pageSize int, start time.Time) {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	respond(w, r, http.StatusOK, models.PaginatedResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, start)
}

func writeEnvelope(w http.ResponseWriter, status int, body models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// decodeBody unmarshals a JSON request body into dst, rejecting malformed
// payloads with a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, r, http.StatusBadRequest, codeValidation, "invalid JSON body", nil)
		return false
	}
	return true
}
