// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/auth"
	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/fusion"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	testAdminKey  = "test-admin-key"
	testPassword  = "hunter2hunter2"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2},
		Fusion: config.FusionConfig{
			Interval:            time.Hour,
			Window:              24 * time.Hour,
			SimilarityThreshold: 0.6,
			LockTTL:             30 * time.Minute,
		},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 4180, Timeout: 30 * time.Second},
		Security: config.SecurityConfig{
			JWTSecret:         testJWTSecret,
			SessionTimeout:    time.Hour,
			AdminAPIKey:       testAdminKey,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
		},
		Realtime: config.RealtimeConfig{HeartbeatInterval: 30 * time.Second},
		API:      config.APIConfig{DefaultPageSize: 50, MaxPageSize: 1000},
	}
}

type apiFixture struct {
	store      *store.Store
	auditStore *audit.MemoryStore
	recorder   *audit.Recorder
	server     *Server
	handler    http.Handler

	orgOne int64
	orgTwo int64

	adminToken    string
	analystToken  string
	viewerToken   string
	outsiderToken string

	adminID int64
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithAudit(t, nil)
}

// newAPIFixtureWithAudit builds the fixture over a caller-supplied audit
// store. mkAudit nil means the in-memory store.
func newAPIFixtureWithAudit(t *testing.T, mkAudit func(t *testing.T, st *store.Store) audit.Store) *apiFixture {
	t.Helper()
	cfg := testConfig()

	st, err := store.New(&cfg.Database)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	one := &models.Organization{Name: "Mission Alpha"}
	two := &models.Organization{Name: "Mission Bravo"}
	for _, org := range []*models.Organization{one, two} {
		if err := st.CreateOrganization(ctx, org); err != nil {
			t.Fatalf("create org: %v", err)
		}
	}

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatalf("new jwt manager: %v", err)
	}

	f := &apiFixture{
		store:  st,
		orgOne: one.ID,
		orgTwo: two.ID,
	}

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	mkUser := func(email string, orgID int64, role models.Role) (int64, string) {
		u := &models.User{Email: email, PasswordHash: hash}
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user %s: %v", email, err)
		}
		if err := st.AddMembership(ctx, models.Membership{UserID: u.ID, OrgID: orgID, Role: role}); err != nil {
			t.Fatalf("add membership %s: %v", email, err)
		}
		token, err := jwt.GenerateToken(u.ID, u.Email)
		if err != nil {
			t.Fatalf("token %s: %v", email, err)
		}
		return u.ID, token
	}

	f.adminID, f.adminToken = mkUser("admin@example.org", one.ID, models.RoleAdmin)
	_, f.analystToken = mkUser("analyst@example.org", one.ID, models.RoleAnalyst)
	_, f.viewerToken = mkUser("viewer@example.org", one.ID, models.RoleViewer)
	_, f.outsiderToken = mkUser("outsider@example.org", two.ID, models.RoleAdmin)

	var auditStore audit.Store
	if mkAudit != nil {
		auditStore = mkAudit(t, st)
	} else {
		f.auditStore = audit.NewMemoryStore()
		auditStore = f.auditStore
	}
	f.recorder = audit.NewRecorder(auditStore, st)

	engine := fusion.NewEngine(st, &cfg.Fusion)
	f.server = New(cfg, st, f.recorder, jwt, engine, nil)
	f.handler = f.server.Router()
	return f
}

// envelope mirrors models.APIResponse with raw data for test decoding.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()
	return f.doWithHeaders(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (f *apiFixture) doAdmin(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()
	return f.doWithHeaders(t, method, path, body, map[string]string{
		"Authorization":   "Bearer " + f.adminToken,
		"X-Admin-API-Key": testAdminKey,
	})
}

func (f *apiFixture) doWithHeaders(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, *envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope (%s %s, status %d): %v\nbody: %s",
				method, path, rec.Code, err, rec.Body.String())
		}
	}
	return rec, &env
}

// decodeData unmarshals the data field into dst.
func decodeData(t *testing.T, env *envelope, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v\ndata: %s", err, string(env.Data))
	}
}

// auditRows returns org-scoped audit records matching the action.
func (f *apiFixture) auditRows(t *testing.T, orgID int64, action audit.Action) []audit.Record {
	t.Helper()
	records, err := f.recorder.Query(context.Background(), audit.QueryFilter{
		OrgID:  orgID,
		Action: action,
		Limit:  100,
	})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	return records
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.doWithHeaders(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.doWithHeaders(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "admin@example.org", "password": testPassword}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Token       string              `json:"token"`
		User        models.User         `json:"user"`
		Memberships []models.Membership `json:"memberships"`
	}
	decodeData(t, env, &payload)
	if payload.Token == "" {
		t.Error("empty token")
	}
	if payload.User.ID != f.adminID {
		t.Errorf("user id = %d, want %d", payload.User.ID, f.adminID)
	}
	if len(payload.Memberships) != 1 || payload.Memberships[0].OrgID != f.orgOne {
		t.Errorf("memberships = %+v", payload.Memberships)
	}

	// Login is audited.
	if rows := f.auditRows(t, f.orgOne, audit.ActionLogin); len(rows) != 1 {
		t.Errorf("login audit rows = %d, want 1", len(rows))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]map[string]string{
		"wrong password": {"email": "admin@example.org", "password": "wrongwrong"},
		"unknown user":   {"email": "nobody@example.org", "password": testPassword},
	} {
		rec, env := f.doWithHeaders(t, http.MethodPost, "/api/v1/auth/login", body, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
		if env.Error == nil || env.Error.Code != "AUTHENTICATION_ERROR" {
			t.Errorf("%s: error = %+v", name, env.Error)
		}
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.doWithHeaders(t, http.MethodGet, "/api/v1/events", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "AUTHENTICATION_ERROR" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestResponseCarriesRequestID(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/events", f.viewerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.Metadata.RequestID == "" {
		t.Error("metadata carries no request ID")
	}
	if rec.Header().Get("X-Request-ID") != env.Metadata.RequestID {
		t.Errorf("header %q != metadata %q",
			rec.Header().Get("X-Request-ID"), env.Metadata.RequestID)
	}
}
