// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package main is the entry point for the Meridian server.
//
// Meridian ingests open-source feeds (RSS, government and crisis feeds),
// enriches each item with entity extraction, categorization, sentiment and
// geolocation, fuses related reports into clusters, and serves the result
// to mission teams through a multi-tenant REST API and websocket stream.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load from defaults, config.yaml and
//     MERIDIAN_* environment variables (Koanf v2)
//  2. Store: embedded DuckDB for events, clusters, dossiers and tenancy
//  3. Audit: append-only audit trail in the same database
//  4. Enrichment: OpenAI-compatible LLM with deterministic fallbacks
//  5. Ingest workers: one per source type, circuit-broken per source
//  6. Fusion engine: periodic clustering over the active window
//  7. Realtime: websocket hub, bus bridge and alert evaluator
//  8. HTTP server: REST API under /api/v1 plus /metrics and /healthz
//
// Everything runs under a three-layer Suture supervisor tree so a crash
// loop in the ingest pipeline cannot take down the API or the realtime
// broker.
//
// # Configuration
//
// All settings have working defaults; a data directory and a JWT secret
// are the minimum for production:
//
//	export MERIDIAN_DATABASE_PATH=/var/lib/meridian/meridian.db
//	export MERIDIAN_SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	export MERIDIAN_SECURITY_ADMIN_API_KEY=$(openssl rand -hex 16)
//	./meridian
//
// LLM enrichment is optional; without it every item is enriched by the
// deterministic fallback chain:
//
//	export MERIDIAN_LLM_ENABLED=true
//	export MERIDIAN_LLM_API_KEY=sk-...
//
// # One-Shot Mode
//
// For cron-style operation, --oneshot=<job> runs a single ingest, fusion,
// or retention pass and exits with sysexits-style codes: 0 on success,
// 64 for an unknown job, 69 when the pass fails, 75 when another process
// holds the fusion lock (safe to retry).
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, workers finish the current item, and the store is
// checkpointed before close.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridianops/meridian/internal/api"
	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/bus"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/dossier"
	"github.com/meridianops/meridian/internal/enrich"
	"github.com/meridianops/meridian/internal/fusion"
	"github.com/meridianops/meridian/internal/ingest"
	"github.com/meridianops/meridian/internal/logging"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/realtime"
	"github.com/meridianops/meridian/internal/scheduler"
	"github.com/meridianops/meridian/internal/store"
	"github.com/meridianops/meridian/internal/supervisor"
)

// dossierStatsInterval drives the dirty-dossier refresh loop. Matching is
// event-driven; this only catches up after restarts and bulk changes.
const dossierStatsInterval = 5 * time.Minute

// Exit codes for --oneshot, following sysexits.h.
const (
	exUsage       = 64
	exUnavailable = 69
	exTempFail    = 75
)

func main() {
	oneshot := flag.String("oneshot", "", "run a single job (ingest, fusion, retention) and exit")
	flag.Parse()

	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Bool("llm_enabled", cfg.LLM.Enabled).
		Bool("geocoder_enabled", cfg.Geocoder.Enabled).
		Msg("Configuration loaded")

	st, err := store.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	auditStore := audit.NewDuckDBStore(st.Conn())
	if err := auditStore.CreateTable(context.Background()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize audit trail")
	}
	recorder := audit.NewRecorder(auditStore, st)

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token signing")
	}

	events := bus.New()
	defer func() {
		if err := events.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	// Enrichment: remote LLM when configured, deterministic fallbacks
	// always. Geocoding degrades to the built-in gazetteer when Nominatim
	// is disabled.
	var remote enrich.Enricher
	if cfg.LLM.Enabled {
		remote = enrich.NewOpenAIEnricher(&cfg.LLM)
	}
	var geocoder enrich.Geocoder = enrich.GazetteerGeocoder{}
	if cfg.Geocoder.Enabled {
		geocoder = enrich.NewNominatimGeocoder(&cfg.Geocoder)
	}
	pipeline := enrich.NewPipeline(remote, geocoder, cfg.LLM.MaxConcurrent)

	engine := fusion.NewEngine(st, &cfg.Fusion)
	matcher := dossier.NewMatcher(st)

	if *oneshot != "" {
		code := runOneshot(*oneshot, cfg, st, recorder, pipeline, events, engine, matcher)
		// os.Exit skips the deferred closes; release resources here.
		if err := events.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
		os.Exit(code)
	}

	hub := realtime.NewHub(cfg.Realtime.HeartbeatInterval)
	bridge := realtime.NewBridge(hub, events)
	evaluator := realtime.NewAlertEvaluator(st, events)

	server := api.New(cfg, st, recorder, jwt, engine, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Pipeline layer: ingest tickers per source type, fusion, retention,
	// dossier statistics. Gov, crisis and NGO feeds are Atom/GeoRSS on the
	// wire, so the feed fetcher serves all of them. NewsAPI sources need a
	// keyed JSON client and stay inactive until one is registered.
	fetcher := ingest.NewRSSFetcher(cfg.Ingest.FetchTimeout)
	feedWorkers := []struct {
		sourceType models.SourceType
		interval   time.Duration
	}{
		{models.SourceTypeRSS, cfg.Ingest.RSSInterval},
		{models.SourceTypeGovFeed, cfg.Ingest.GovFeedInterval},
		{models.SourceTypeCrisisFeed, cfg.Ingest.RSSInterval},
		{models.SourceTypeNGOFeed, cfg.Ingest.RSSInterval},
	}
	for _, fw := range feedWorkers {
		worker := ingest.NewWorker(st, pipeline, events, &cfg.Ingest, fw.sourceType, fetcher)
		job := scheduler.NewIngestJob(worker, string(fw.sourceType))
		tree.AddPipelineService(scheduler.NewTicker(job, fw.interval, true))
	}
	tree.AddPipelineService(scheduler.NewTicker(
		scheduler.NewFusionJob(engine), cfg.Fusion.Interval, false))
	tree.AddPipelineService(scheduler.NewTicker(
		scheduler.NewRetentionJob(st, recorder, matcher, engine, &cfg.Retention),
		cfg.Retention.Interval, false))
	tree.AddPipelineService(scheduler.NewTicker(
		scheduler.NewDossierStatsJob(matcher), dossierStatsInterval, true))

	// Messaging layer: websocket hub, the bus-to-hub bridge, the alert
	// evaluator, and the dossier matcher's event subscription.
	tree.AddMessagingService(supervisor.NewFunc("realtime-hub", hub.Run))
	tree.AddMessagingService(supervisor.NewFunc("bus-bridge", bridge.Run))
	tree.AddMessagingService(supervisor.NewFunc("alert-evaluator", evaluator.Run))
	tree.AddMessagingService(supervisor.NewFunc("dossier-matcher", func(ctx context.Context) error {
		return matcher.Run(ctx, events)
	}))

	// API layer.
	tree.AddAPIService(supervisor.NewFunc("http-server", server.Serve))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down, waiting for services to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the channel so every layer has finished before close.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err := st.Checkpoint(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("Final checkpoint failed")
	}

	logging.Info().Msg("Meridian stopped")
}

// runOneshot executes a single scheduled pass for cron-style deployments.
func runOneshot(name string, cfg *config.Config, st *store.Store, recorder *audit.Recorder,
	pipeline *enrich.Pipeline, events *bus.Bus, engine *fusion.Engine, matcher *dossier.Matcher) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logging.Info().Str("job", name).Msg("Running one-shot pass")

	switch name {
	case "ingest":
		fetcher := ingest.NewRSSFetcher(cfg.Ingest.FetchTimeout)
		for _, sourceType := range []models.SourceType{
			models.SourceTypeRSS,
			models.SourceTypeGovFeed,
			models.SourceTypeCrisisFeed,
			models.SourceTypeNGOFeed,
		} {
			worker := ingest.NewWorker(st, pipeline, events, &cfg.Ingest, sourceType, fetcher)
			summary, err := worker.RunOnce(ctx)
			if err != nil {
				logging.Error().Err(err).Str("source_type", string(sourceType)).Msg("Ingest pass failed")
				return exUnavailable
			}
			logging.Info().Str("source_type", string(sourceType)).
				Int("items_seen", summary.ItemsSeen).Int("events_new", summary.EventsNew).
				Msg("Ingest pass complete")
		}
	case "fusion":
		summary, err := engine.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, store.ErrFusionLocked) {
				logging.Warn().Msg("Fusion lock held by another process")
				return exTempFail
			}
			logging.Error().Err(err).Msg("Fusion pass failed")
			return exUnavailable
		}
		logging.Info().Int("clusters_committed", summary.ClustersCommitted).Msg("Fusion pass complete")
	case "retention":
		job := scheduler.NewRetentionJob(st, recorder, matcher, engine, &cfg.Retention)
		if err := job.Run(ctx); err != nil {
			logging.Error().Err(err).Msg("Retention pass failed")
			return exUnavailable
		}
	default:
		logging.Error().Str("job", name).Msg("Unknown one-shot job (want ingest, fusion, or retention)")
		return exUsage
	}
	return 0
}
