// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package api

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/meridianops/meridian/internal/audit"
	"github.com/meridianops/meridian/internal/store"
)

// newDurableAuditFixture keeps the audit trail in the same database as the
// store, so audit writes run through the mutation's transaction instead of
// the in-memory store that ignores it.
func newDurableAuditFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithAudit(t, func(t *testing.T, st *store.Store) audit.Store {
		as := audit.NewDuckDBStore(st.Conn())
		if err := as.CreateTable(context.Background()); err != nil {
			t.Fatalf("create audit table: %v", err)
		}
		return as
	})
}

func TestMutationAuditCommitsWithMutation(t *testing.T) {
	f := newDurableAuditFixture(t)

	d := createDossier(t, f, f.analystToken, map[string]interface{}{
		"name":         "Brussels",
		"dossier_type": "location",
	})

	rows := f.auditRows(t, f.orgOne, audit.ActionCreate)
	found := false
	for _, row := range rows {
		if row.ObjectType == "dossier" && row.ObjectID == strconv.FormatInt(d.ID, 10) {
			found = true
		}
	}
	if !found {
		t.Errorf("no create audit row for dossier %d, rows = %+v", d.ID, rows)
	}
}

func TestMutationRollsBackWhenAuditFails(t *testing.T) {
	f := newDurableAuditFixture(t)

	// With the audit table gone the in-transaction audit insert fails, and
	// the dossier insert must fail with it.
	if _, err := f.store.Conn().Exec(`DROP TABLE audit_log`); err != nil {
		t.Fatalf("drop audit table: %v", err)
	}

	rec, env := f.do(t, http.MethodPost, "/api/v1/dossiers", f.analystToken, map[string]interface{}{
		"name":         "Brussels",
		"dossier_type": "location",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body %s", rec.Code, rec.Body.String())
	}
	if env.Error == nil || env.Error.Code != "DATABASE_ERROR" {
		t.Errorf("error = %+v", env.Error)
	}

	dossiers, err := f.store.ListDossiers(context.Background(), f.orgOne, "")
	if err != nil {
		t.Fatalf("list dossiers: %v", err)
	}
	if len(dossiers) != 0 {
		t.Errorf("dossier committed without its audit row: %+v", dossiers)
	}
}
