// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Fusion.Interval != 120*time.Minute {
		t.Errorf("fusion interval = %v, want 120m", cfg.Fusion.Interval)
	}
	if cfg.Fusion.Window != 24*time.Hour {
		t.Errorf("fusion window = %v, want 24h", cfg.Fusion.Window)
	}
	if cfg.Fusion.SimilarityThreshold != 0.6 {
		t.Errorf("similarity threshold = %v, want 0.6", cfg.Fusion.SimilarityThreshold)
	}
	if cfg.Realtime.HeartbeatInterval != 30*time.Second {
		t.Errorf("heartbeat interval = %v, want 30s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Ingest.BreakerFailureThreshold != 5 {
		t.Errorf("breaker failure threshold = %d, want 5", cfg.Ingest.BreakerFailureThreshold)
	}
	if cfg.Ingest.BreakerProbeInterval != 10*time.Minute {
		t.Errorf("breaker probe interval = %v, want 10m", cfg.Ingest.BreakerProbeInterval)
	}
	if cfg.LLM.MaxConcurrent != 8 {
		t.Errorf("llm max concurrent = %d, want 8", cfg.LLM.MaxConcurrent)
	}
	if cfg.LLM.Enabled {
		t.Error("llm should be disabled by default")
	}
	if cfg.API.MaxPageSize != 1000 {
		t.Errorf("max page size = %d, want 1000", cfg.API.MaxPageSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWTSecret = "too-short" },
			wantErr: "jwt_secret",
		},
		{
			name:    "similarity threshold above one",
			mutate:  func(c *Config) { c.Fusion.SimilarityThreshold = 1.5 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "similarity threshold zero",
			mutate:  func(c *Config) { c.Fusion.SimilarityThreshold = 0 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "negative fusion window",
			mutate:  func(c *Config) { c.Fusion.Window = -time.Hour },
			wantErr: "fusion.window",
		},
		{
			name:    "audit retention below floor",
			mutate:  func(c *Config) { c.Retention.AuditDays = 7 },
			wantErr: "audit_days",
		},
		{
			name:    "max page size above cap",
			mutate:  func(c *Config) { c.API.MaxPageSize = 5000 },
			wantErr: "max_page_size",
		},
		{
			name: "default page size above max",
			mutate: func(c *Config) {
				c.API.MaxPageSize = 100
				c.API.DefaultPageSize = 200
			},
			wantErr: "default_page_size",
		},
		{
			name: "llm enabled without api key",
			mutate: func(c *Config) {
				c.LLM.Enabled = true
				c.LLM.APIKey = ""
			},
			wantErr: "llm.api_key",
		},
		{
			name:    "zero heartbeat",
			mutate:  func(c *Config) { c.Realtime.HeartbeatInterval = 0 },
			wantErr: "heartbeat_interval",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateAcceptsLongJWTSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWTSecret = strings.Repeat("s", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("32-char secret should validate, got: %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"DATABASE_PATH", "database.path"},
		{"LLM_API_KEY", "llm.api_key"},
		{"LLM_BASE_URL", "llm.base_url"},
		{"INGEST_INTERVAL_RSS", "ingest.rss_interval"},
		{"FUSION_SIMILARITY_THRESHOLD", "fusion.similarity_threshold"},
		{"FUSION_WINDOW", "fusion.window"},
		{"RETENTION_AUDIT_DAYS", "retention.audit_days"},
		{"REALTIME_HEARTBEAT_INTERVAL", "realtime.heartbeat_interval"},
		{"JWT_SECRET", "security.jwt_secret"},
		{"ADMIN_API_KEY", "security.admin_api_key"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"GEOCODER_BASE_URL", "geocoder.base_url"},
		{"LOG_LEVEL", "logging.level"},
		{"HTTP_PORT", "server.port"},
		// Unmapped vars are dropped
		{"PATH", ""},
		{"HOME", ""},
		{"RANDOM_UNRELATED_VAR", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadWithKoanfEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("FUSION_SIMILARITY_THRESHOLD", "0.75")
	t.Setenv("CORS_ORIGINS", "https://ops.example.com, https://hq.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Database.Path != ":memory:" {
		t.Errorf("database path = %q, want :memory:", cfg.Database.Path)
	}
	if cfg.Fusion.SimilarityThreshold != 0.75 {
		t.Errorf("similarity threshold = %v, want 0.75", cfg.Fusion.SimilarityThreshold)
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("cors origins = %v, want 2 entries", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[1] != "https://hq.example.com" {
		t.Errorf("cors origin[1] = %q, want trimmed value", cfg.Security.CORSOrigins[1])
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanfRejectsInvalidEnv(t *testing.T) {
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("RETENTION_AUDIT_DAYS", "5")

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected validation failure for audit_days=5")
	}
}
