// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package metrics exposes Prometheus instrumentation for the ingest
// pipeline, enrichment, fusion, the API surface, and the realtime broker.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	IngestItemsSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_ingest_items_seen_total",
			Help: "Feed items observed per source type, including duplicates",
		},
		[]string{"source_type"},
	)

	IngestEventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_ingest_events_created_total",
			Help: "New events persisted per source type",
		},
		[]string{"source_type"},
	)

	IngestSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_ingest_source_failures_total",
			Help: "Source fetch failures per source type",
		},
		[]string{"source_type"},
	)

	IngestDeadLetters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meridian_ingest_dead_letters_total",
			Help: "Items dead-lettered after exhausting store retries",
		},
	)

	// Enrichment metrics
	EnrichmentSubpasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_enrichment_subpasses_total",
			Help: "Enrichment subpass outcomes by name and path (llm or fallback)",
		},
		[]string{"subpass", "path"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_enrichment_duration_seconds",
			Help:    "End-to-end enrichment duration per event",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Fusion metrics
	FusionPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "meridian_fusion_pass_duration_seconds",
			Help:    "Fusion pass duration",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	FusionClusters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_fusion_clusters",
			Help: "Clusters committed by the most recent fusion pass",
		},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_api_requests_total",
			Help: "API requests by method, endpoint, and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_api_active_requests",
			Help: "In-flight API requests",
		},
	)

	// Realtime metrics
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meridian_realtime_clients",
			Help: "Connected websocket clients",
		},
	)

	RealtimeFramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meridian_realtime_frames_sent_total",
			Help: "Frames delivered to websocket clients by type",
		},
		[]string{"frame_type"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meridian_db_query_duration_seconds",
			Help:    "Duration of DuckDB queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordIngestPass records one worker pass summary.
func RecordIngestPass(sourceType string, itemsSeen, eventsNew, sourcesFailed int) {
	IngestItemsSeen.WithLabelValues(sourceType).Add(float64(itemsSeen))
	IngestEventsCreated.WithLabelValues(sourceType).Add(float64(eventsNew))
	IngestSourceFailures.WithLabelValues(sourceType).Add(float64(sourcesFailed))
}

// RecordEnrichmentSubpass records one subpass outcome. path is "llm" or
// "fallback".
func RecordEnrichmentSubpass(subpass string, fallback bool) {
	path := "llm"
	if fallback {
		path = "fallback"
	}
	EnrichmentSubpasses.WithLabelValues(subpass, path).Inc()
}

// RecordFusionPass records the duration and cluster count of a fusion pass.
func RecordFusionPass(duration time.Duration, clusters int) {
	FusionPassDuration.Observe(duration.Seconds())
	FusionClusters.Set(float64(clusters))
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	APIRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint, code).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
