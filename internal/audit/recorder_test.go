// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package audit

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meridianops/meridian/internal/models"
)

type stubSettings struct {
	disabled map[int64]bool
}

func (s *stubSettings) GetOrgSettings(_ context.Context, orgID int64) (*models.OrgSettings, error) {
	settings := models.DefaultOrgSettings(orgID)
	if s.disabled[orgID] {
		settings.AuditLogging = false
	}
	return settings, nil
}

func TestRecorderWritesMutation(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rec := NewRecorder(mem, &stubSettings{})

	userID := int64(7)
	if err := rec.RecordMutation(ctx, nil, 1, &userID, "analyst@example.com",
		ActionCreate, "dossier", "42", "Created dossier Brussels"); err != nil {
		t.Fatalf("record mutation: %v", err)
	}

	got, err := rec.Query(ctx, DefaultQueryFilter(1))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("record count = %d, want 1", len(got))
	}
	r := got[0]
	if r.Action != ActionCreate || r.ObjectType != "dossier" || r.ObjectID != "42" {
		t.Errorf("record mismatch: %+v", r)
	}
	if r.ID == "" || r.Timestamp.IsZero() {
		t.Error("ID and timestamp should be assigned on save")
	}
	if r.UserID == nil || *r.UserID != 7 {
		t.Errorf("user_id = %v, want 7", r.UserID)
	}
}

func TestRecorderSkipsWhenOrgDisablesAudit(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rec := NewRecorder(mem, &stubSettings{disabled: map[int64]bool{2: true}})

	for i := 0; i < 3; i++ {
		if err := rec.RecordMutation(ctx, nil, 2, nil, "",
			ActionUpdate, "watchlist", "1", "Updated watchlist"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := rec.Count(ctx, DefaultQueryFilter(2))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("disabled org should have no records, got %d", n)
	}

	// Other orgs are unaffected.
	if err := rec.RecordMutation(ctx, nil, 3, nil, "",
		ActionDelete, "dossier", "9", "Deleted dossier"); err != nil {
		t.Fatalf("record org 3: %v", err)
	}
	n, _ = rec.Count(ctx, DefaultQueryFilter(3))
	if n != 1 {
		t.Errorf("enabled org count = %d, want 1", n)
	}
}

func TestRecorderAccessDeniedCapturesRequest(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rec := NewRecorder(mem, nil)

	req := httptest.NewRequest("GET", "/api/v1/dossiers/42", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.Header.Set("User-Agent", "meridian-test/1.0")

	userID := int64(5)
	if err := rec.RecordAccessDenied(ctx, 2, &userID, "probe@example.com", "dossier", "42", req); err != nil {
		t.Fatalf("record access denied: %v", err)
	}

	got, err := rec.Query(ctx, QueryFilter{OrgID: 2, Action: ActionAccessDenied})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("record count = %d, want 1", len(got))
	}
	r := got[0]
	if r.IPAddress != "203.0.113.9" {
		t.Errorf("ip = %q, want forwarded-for address", r.IPAddress)
	}
	if r.UserAgent != "meridian-test/1.0" {
		t.Errorf("user agent = %q", r.UserAgent)
	}
	if r.ObjectID != "42" {
		t.Errorf("object id = %q", r.ObjectID)
	}
}

func TestRecorderAnonymizeKeepsRows(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rec := NewRecorder(mem, nil)

	userID := int64(11)
	for i := 0; i < 2; i++ {
		if err := rec.RecordMutation(ctx, nil, 1, &userID, "leaver@example.com",
			ActionUpdate, "settings", "", "Changed settings"); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := rec.AnonymizeUser(ctx, userID)
	if err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	if n != 2 {
		t.Errorf("anonymized %d rows, want 2", n)
	}

	got, _ := rec.Query(ctx, DefaultQueryFilter(1))
	if len(got) != 2 {
		t.Fatalf("rows must survive anonymization, got %d", len(got))
	}
	for _, r := range got {
		if r.UserID != nil {
			t.Errorf("user_id should be nil after anonymization: %+v", r)
		}
		if r.UserEmail != "leaver@example.com" {
			t.Errorf("user_email should be retained, got %q", r.UserEmail)
		}
	}
}

func TestRecorderSweepRespectsCutoff(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	rec := NewRecorder(mem, nil)

	old := &Record{OrgID: 1, Action: ActionView, ObjectType: "audit",
		Description: "old", Timestamp: time.Now().UTC().AddDate(0, 0, -400)}
	fresh := &Record{OrgID: 1, Action: ActionView, ObjectType: "audit",
		Description: "fresh", Timestamp: time.Now().UTC()}
	if err := mem.Save(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := mem.Save(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	removed, err := rec.Sweep(ctx, 1, 365)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	got, _ := rec.Query(ctx, DefaultQueryFilter(1))
	if len(got) != 1 || got[0].Description != "fresh" {
		t.Errorf("sweep removed the wrong rows: %+v", got)
	}
}

func TestActionIsValid(t *testing.T) {
	for _, a := range Actions {
		if !a.IsValid() {
			t.Errorf("%q should be valid", a)
		}
	}
	if Action("drop_table").IsValid() {
		t.Error("unknown action should be invalid")
	}
}

func TestMemoryStoreFilters(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	base := time.Now().UTC()
	userA, userB := int64(1), int64(2)
	seed := []Record{
		{OrgID: 1, UserID: &userA, Action: ActionCreate, ObjectType: "dossier", ObjectID: "1", Description: "a", Timestamp: base.Add(-3 * time.Hour)},
		{OrgID: 1, UserID: &userB, Action: ActionDelete, ObjectType: "dossier", ObjectID: "2", Description: "b", Timestamp: base.Add(-2 * time.Hour)},
		{OrgID: 1, UserID: &userA, Action: ActionCreate, ObjectType: "watchlist", ObjectID: "3", Description: "c", Timestamp: base.Add(-1 * time.Hour)},
		{OrgID: 2, UserID: &userA, Action: ActionCreate, ObjectType: "dossier", ObjectID: "4", Description: "d", Timestamp: base},
	}
	for i := range seed {
		rec := seed[i]
		if err := mem.Save(ctx, &rec); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"org scope", QueryFilter{OrgID: 1}, 3},
		{"by action", QueryFilter{OrgID: 1, Action: ActionCreate}, 2},
		{"by object type", QueryFilter{OrgID: 1, ObjectType: "watchlist"}, 1},
		{"by user", QueryFilter{OrgID: 1, UserID: &userB}, 1},
		{"by window", QueryFilter{OrgID: 1, Since: ptrTime(base.Add(-90 * time.Minute))}, 1},
		{"limit", QueryFilter{OrgID: 1, Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mem.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("count = %d, want %d", len(got), tt.want)
			}
		})
	}

	// Newest-first ordering.
	got, _ := mem.Query(ctx, QueryFilter{OrgID: 1})
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Error("results should be newest first")
		}
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
