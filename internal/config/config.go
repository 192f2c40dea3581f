// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

// Package config loads and validates Meridian's configuration.
//
// Configuration is layered with Koanf v2: built-in defaults, then an optional
// YAML config file, then environment variables (highest priority). See
// koanf.go for the env var mapping table.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Meridian server.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Ingest    IngestConfig    `koanf:"ingest"`
	LLM       LLMConfig       `koanf:"llm"`
	Geocoder  GeocoderConfig  `koanf:"geocoder"`
	Fusion    FusionConfig    `koanf:"fusion"`
	Retention RetentionConfig `koanf:"retention"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	API       APIConfig       `koanf:"api"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig controls the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. ":memory:" is valid for tests.
	Path string `koanf:"path"`

	// MaxMemory is DuckDB's memory limit (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// IngestConfig controls the source workers.
type IngestConfig struct {
	// Intervals between fetch passes, per source type.
	RSSInterval     time.Duration `koanf:"rss_interval"`
	NewsAPIInterval time.Duration `koanf:"news_api_interval"`
	GovFeedInterval time.Duration `koanf:"gov_feed_interval"`

	// FetchTimeout bounds a single feed fetch.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// MaxConcurrentSources bounds in-flight source fetches per pass.
	MaxConcurrentSources int `koanf:"max_concurrent_sources"`

	// BreakerFailureThreshold opens a source's circuit breaker after this
	// many consecutive failures.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerProbeInterval is how long a breaker stays open before a
	// half-open probe.
	BreakerProbeInterval time.Duration `koanf:"breaker_probe_interval"`

	// StoreRetryAttempts is the number of store-write retries before an
	// item is dead-lettered.
	StoreRetryAttempts int `koanf:"store_retry_attempts"`

	// StoreRetryBaseDelay is the initial backoff delay for store retries.
	StoreRetryBaseDelay time.Duration `koanf:"store_retry_base_delay"`
}

// LLMConfig configures the remote enrichment capability. With Enabled=false
// or an empty APIKey the deterministic fallbacks handle every enrichment
// subpass.
type LLMConfig struct {
	Enabled     bool          `koanf:"enabled"`
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Temperature float32       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	Timeout     time.Duration `koanf:"timeout"`

	// MaxConcurrent caps process-wide in-flight LLM calls.
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

// GeocoderConfig configures location resolution for events that carry a
// location name without coordinates.
type GeocoderConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`

	// RatePerSecond throttles outbound geocoder calls.
	RatePerSecond float64       `koanf:"rate_per_second"`
	Timeout       time.Duration `koanf:"timeout"`
}

// FusionConfig controls the clustering engine.
type FusionConfig struct {
	// Interval between scheduled fusion passes.
	Interval time.Duration `koanf:"interval"`

	// Window is the trailing window of events considered for clustering.
	Window time.Duration `koanf:"window"`

	// SimilarityThreshold is the minimum similarity for an event to join
	// a cluster.
	SimilarityThreshold float64 `koanf:"similarity_threshold"`

	// LockTTL bounds how long a crashed pass can hold the fusion lock.
	LockTTL time.Duration `koanf:"lock_ttl"`
}

// RetentionConfig controls the retention sweep.
type RetentionConfig struct {
	// Interval between sweeps.
	Interval time.Duration `koanf:"interval"`

	// DefaultEventDays applies when an org has no event_retention_days
	// setting.
	DefaultEventDays int `koanf:"default_event_days"`

	// AuditDays is the audit retention window. Must be >= 30.
	AuditDays int `koanf:"audit_days"`

	// PurgeGrace is how long soft-deleted events remain before physical
	// removal.
	PurgeGrace time.Duration `koanf:"purge_grace"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// SecurityConfig configures authentication.
type SecurityConfig struct {
	// JWTSecret signs bearer tokens. Minimum 32 characters when set.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout is the JWT validity window.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminAPIKey gates administrative mutations (X-Admin-API-Key header).
	AdminAPIKey string `koanf:"admin_api_key"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// RealtimeConfig configures the websocket broker.
type RealtimeConfig struct {
	// HeartbeatInterval is the server heartbeat period. A client missing
	// two consecutive heartbeats is closed.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
}

// APIConfig configures query pagination bounds.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config populated with defaults. Defaults are loaded
// first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/meridian.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Ingest: IngestConfig{
			RSSInterval:             30 * time.Minute,
			NewsAPIInterval:         30 * time.Minute,
			GovFeedInterval:         30 * time.Minute,
			FetchTimeout:            30 * time.Second,
			MaxConcurrentSources:    4,
			BreakerFailureThreshold: 5,
			BreakerProbeInterval:    10 * time.Minute,
			StoreRetryAttempts:      3,
			StoreRetryBaseDelay:     500 * time.Millisecond,
		},
		LLM: LLMConfig{
			Enabled:       false,
			Model:         "gpt-4o-mini",
			Temperature:   0.1,
			MaxTokens:     512,
			Timeout:       20 * time.Second,
			MaxConcurrent: 8,
		},
		Geocoder: GeocoderConfig{
			Enabled:       false,
			BaseURL:       "https://nominatim.openstreetmap.org",
			RatePerSecond: 1,
			Timeout:       10 * time.Second,
		},
		Fusion: FusionConfig{
			Interval:            120 * time.Minute,
			Window:              24 * time.Hour,
			SimilarityThreshold: 0.6,
			LockTTL:             30 * time.Minute,
		},
		Retention: RetentionConfig{
			Interval:         6 * time.Hour,
			DefaultEventDays: 90,
			AuditDays:        365,
			PurgeGrace:       7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    4180,
			Timeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			SessionTimeout:    24 * time.Hour,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 300,
			RateLimitWindow:   time.Minute,
		},
		Realtime: RealtimeConfig{
			HeartbeatInterval: 30 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks for values that would make the server misbehave at
// runtime. Called by LoadWithKoanf after unmarshaling.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Fusion.SimilarityThreshold <= 0 || c.Fusion.SimilarityThreshold > 1 {
		return fmt.Errorf("fusion.similarity_threshold must be in (0,1], got %v", c.Fusion.SimilarityThreshold)
	}
	if c.Fusion.Window <= 0 {
		return fmt.Errorf("fusion.window must be positive")
	}
	if c.Retention.AuditDays < 30 {
		return fmt.Errorf("retention.audit_days must be >= 30, got %d", c.Retention.AuditDays)
	}
	if c.Retention.DefaultEventDays < 1 {
		return fmt.Errorf("retention.default_event_days must be positive")
	}
	if c.API.MaxPageSize < 1 || c.API.MaxPageSize > 1000 {
		return fmt.Errorf("api.max_page_size must be in 1..1000, got %d", c.API.MaxPageSize)
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must be in 1..max_page_size, got %d", c.API.DefaultPageSize)
	}
	if c.Ingest.MaxConcurrentSources < 1 {
		return fmt.Errorf("ingest.max_concurrent_sources must be positive")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required when llm.enabled is true")
	}
	if c.LLM.MaxConcurrent < 1 {
		return fmt.Errorf("llm.max_concurrent must be positive")
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime.heartbeat_interval must be positive")
	}
	return nil
}
