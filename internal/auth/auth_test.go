// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/models"
	"github.com/meridianops/meridian/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, timeout time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret, SessionTimeout: timeout})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestJWTRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.GenerateToken(42, "analyst@example.org")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "analyst@example.org" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute)
	token, err := m.GenerateToken(1, "a@b.c")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	m := newTestManager(t, time.Hour)
	other, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret: "ffffffffffffffffffffffffffffffff", SessionTimeout: time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _ := m.GenerateToken(1, "a@b.c")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("token signed with a different secret accepted")
	}
}

func TestJWTManagerRequiresLongSecret(t *testing.T) {
	if _, err := NewJWTManager(&config.SecurityConfig{JWTSecret: "short"}); err == nil {
		t.Error("short secret accepted")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

type authFixture struct {
	store   *store.Store
	mw      *Middleware
	jwt     *JWTManager
	user    *models.User
	orgOne  int64
	orgTwo  int64
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	s, err := store.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	one := &models.Organization{Name: "Mission Alpha"}
	two := &models.Organization{Name: "Mission Bravo"}
	for _, org := range []*models.Organization{one, two} {
		if err := s.CreateOrganization(ctx, org); err != nil {
			t.Fatalf("create org: %v", err)
		}
	}

	hash, _ := HashPassword("hunter2hunter2")
	user := &models.User{Email: "analyst@example.org", PasswordHash: hash}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.AddMembership(ctx, models.Membership{UserID: user.ID, OrgID: one.ID, Role: models.RoleAnalyst}); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	if err := s.AddMembership(ctx, models.Membership{UserID: user.ID, OrgID: two.ID, Role: models.RoleViewer}); err != nil {
		t.Fatalf("add membership: %v", err)
	}

	jwt := newTestManager(t, time.Hour)
	return &authFixture{
		store:  s,
		mw:     NewMiddleware(jwt, s, "test-admin-key", nil),
		jwt:    jwt,
		user:   user,
		orgOne: one.ID,
		orgTwo: two.ID,
	}
}

func (f *authFixture) request(t *testing.T, headers map[string]string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var captured *Identity
	handler := f.mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestRequireAuthResolvesFirstMembership(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.jwt.GenerateToken(f.user.ID, f.user.Email)

	rec, id := f.request(t, map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if id == nil || id.OrgID != f.orgOne || id.Role != models.RoleAnalyst {
		t.Errorf("identity = %+v", id)
	}
}

func TestRequireAuthOrgSelector(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.jwt.GenerateToken(f.user.ID, f.user.Email)

	rec, id := f.request(t, map[string]string{
		"Authorization": "Bearer " + token,
		orgHeader:       strconv.FormatInt(f.orgTwo, 10),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if id.OrgID != f.orgTwo || id.Role != models.RoleViewer {
		t.Errorf("identity = %+v", id)
	}

	// Selecting an org the user does not belong to is forbidden.
	rec, _ = f.request(t, map[string]string{
		"Authorization": "Bearer " + token,
		orgHeader:       "99999",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAuthRejectsMissingAndBadTokens(t *testing.T) {
	f := newAuthFixture(t)

	rec, _ := f.request(t, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d", rec.Code)
	}

	rec, _ = f.request(t, map[string]string{"Authorization": "Bearer garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	f := newAuthFixture(t)
	handler := f.mw.RequireRole(models.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{Role: models.RoleAnalyst}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("analyst hitting admin route: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &Identity{Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d", rec.Code)
	}
}

func TestRequireAdminKey(t *testing.T) {
	f := newAuthFixture(t)
	handler := f.mw.RequireAdminKey(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/fusion/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("no key status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/fusion/run", nil)
	req.Header.Set("X-Admin-API-Key", "test-admin-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d", rec.Code)
	}
}
