// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/meridian/config.yaml",
	"/etc/meridian/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults. The result is validated before it is
// returned.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// Transform env var names to koanf paths:
	// DATABASE_PATH -> database.path
	// FUSION_SIMILARITY_THRESHOLD -> fusion.similarity_threshold
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file. The CONFIG_PATH env var takes
// priority, then the default paths in order. Returns "" when none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated
// slices when they arrive as env var strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from the YAML file): skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are dropped so random environment noise cannot pollute
// the configuration.
//
// Examples:
//   - DATABASE_PATH -> database.path
//   - LLM_API_KEY -> llm.api_key
//   - INGEST_INTERVAL_RSS -> ingest.rss_interval
//   - JWT_SECRET -> security.jwt_secret
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"database_path":       "database.path",
		"database_max_memory": "database.max_memory",
		"database_threads":    "database.threads",

		// Ingest mappings
		"ingest_interval_rss":             "ingest.rss_interval",
		"ingest_interval_news_api":        "ingest.news_api_interval",
		"ingest_interval_gov_feed":        "ingest.gov_feed_interval",
		"ingest_fetch_timeout":            "ingest.fetch_timeout",
		"ingest_max_concurrent_sources":   "ingest.max_concurrent_sources",
		"ingest_breaker_failures":         "ingest.breaker_failure_threshold",
		"ingest_breaker_probe_interval":   "ingest.breaker_probe_interval",
		"ingest_store_retry_attempts":     "ingest.store_retry_attempts",
		"ingest_store_retry_base_delay":   "ingest.store_retry_base_delay",

		// LLM mappings
		"llm_enabled":        "llm.enabled",
		"llm_base_url":       "llm.base_url",
		"llm_api_key":        "llm.api_key",
		"llm_model":          "llm.model",
		"llm_temperature":    "llm.temperature",
		"llm_max_tokens":     "llm.max_tokens",
		"llm_timeout":        "llm.timeout",
		"llm_max_concurrent": "llm.max_concurrent",

		// Geocoder mappings
		"geocoder_enabled":  "geocoder.enabled",
		"geocoder_base_url": "geocoder.base_url",
		"geocoder_rate":     "geocoder.rate_per_second",
		"geocoder_timeout":  "geocoder.timeout",

		// Fusion mappings
		"fusion_interval":             "fusion.interval",
		"fusion_window":               "fusion.window",
		"fusion_similarity_threshold": "fusion.similarity_threshold",
		"fusion_lock_ttl":             "fusion.lock_ttl",

		// Retention mappings
		"retention_interval":           "retention.interval",
		"retention_default_event_days": "retention.default_event_days",
		"retention_audit_days":         "retention.audit_days",
		"retention_purge_grace":        "retention.purge_grace",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Security mappings
		"jwt_secret":          "security.jwt_secret",
		"session_timeout":     "security.session_timeout",
		"admin_api_key":       "security.admin_api_key",
		"cors_origins":        "security.cors_origins",
		"rate_limit_requests": "security.rate_limit_requests",
		"rate_limit_window":   "security.rate_limit_window",

		// Realtime mappings
		"realtime_heartbeat_interval": "realtime.heartbeat_interval",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped.
	return ""
}
