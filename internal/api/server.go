// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package api exposes the Meridian HTTP surface: the versioned query API,
// authentication, the websocket endpoint, and operational routes (health,
// metrics). Every response uses the models.APIResponse envelope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/fusion"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/middleware"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/realtime"
	"github.com/meridianops/meridian/internal/store"
)

// loginRateLimit bounds credential-guessing attempts per IP.
const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// Server is the HTTP API. It owns no background work; fusion passes it
// triggers run synchronously on the caller's request.
type Server struct {
	store    *store.Store
	audit    *audit.Recorder
	authmw   *auth.Middleware
	jwt      *auth.JWTManager
	fusion   *fusion.Engine
	hub      *realtime.Hub
	cfg      *config.Config

	httpServer *http.Server
}

// New wires the API server. The fusion engine and hub may be nil in tests
// that do not exercise those routes.
func New(cfg *config.Config, st *store.Store, rec *audit.Recorder, jwt *auth.JWTManager, eng *fusion.Engine, hub *realtime.Hub) *Server {
	s := &Server{
		store:  st,
		audit:  rec,
		authmw: auth.NewMiddleware(jwt, st, cfg.Security.AdminAPIKey, rec),
		jwt:    jwt,
		fusion: eng,
		hub:    hub,
		cfg:    cfg,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Prometheus)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Org-ID", "X-Admin-API-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.Limit(
		s.cfg.Security.RateLimitRequests,
		s.cfg.Security.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(rateLimited),
	))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(httprate.Limit(
				loginRateLimit, loginRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authmw.RequireAuth)

			r.Get("/events", s.handleListEvents)
			r.Get("/events/{eventID}", s.handleGetEvent)

			r.Get("/dashboard/summary", s.handleDashboardSummary)
			r.Get("/dashboard/trends", s.handleDashboardTrends)

			r.Route("/dossiers", func(r chi.Router) {
				r.Get("/", s.handleListDossiers)
				r.Get("/{dossierID}", s.handleGetDossier)
				r.Group(func(r chi.Router) {
					r.Use(s.authmw.RequireRole(models.RoleAnalyst))
					r.Post("/", s.handleCreateDossier)
					r.Put("/{dossierID}", s.handleUpdateDossier)
					r.Delete("/{dossierID}", s.handleDeleteDossier)
				})
			})

			r.Route("/watchlists", func(r chi.Router) {
				r.Get("/", s.handleListWatchlists)
				r.Get("/{watchlistID}", s.handleGetWatchlist)
				r.Group(func(r chi.Router) {
					r.Use(s.authmw.RequireRole(models.RoleAnalyst))
					r.Post("/", s.handleCreateWatchlist)
					r.Put("/{watchlistID}", s.handleUpdateWatchlist)
					r.Delete("/{watchlistID}", s.handleDeleteWatchlist)
				})
			})

			r.Route("/settings", func(r chi.Router) {
				r.Get("/", s.handleGetSettings)
				r.Group(func(r chi.Router) {
					r.Use(s.authmw.RequireRole(models.RoleAdmin))
					r.Put("/", s.handleUpdateSettings)
					r.Delete("/", s.handleResetSettings)
				})
			})

			r.Post("/feedback", s.handleSubmitFeedback)
			r.Get("/feedback/stats", s.handleFeedbackStats)

			r.With(s.authmw.RequireRole(models.RoleAdmin)).
				Get("/audit", s.handleListAudit)

			r.Get("/ws", s.handleWebsocket)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.authmw.RequireRole(models.RoleAdmin))
				r.Use(s.authmw.RequireAdminKey)

				r.Post("/fusion/run", s.handleRunFusion)

				r.Get("/sources", s.handleListSources)
				r.Post("/sources", s.handleCreateSource)
				r.Put("/sources/{sourceID}", s.handleUpdateSource)
			})
		})
	})

	return r
}

// Serve runs the HTTP listener until the context is canceled. Implements
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("API server shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, codeDatabase, "store unavailable", nil)
		return
	}
	respond(w, r, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": s.clientCount(),
	}, time.Time{})
}

func (s *Server) clientCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.ClientCount()
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, codeValidation, "realtime disabled", nil)
		return
	}
	id := auth.IdentityFromContext(r.Context())
	if err := s.hub.ServeClient(w, r, id.OrgID); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Websocket upgrade failed")
	}
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded", nil)
}
