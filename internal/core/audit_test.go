// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/auditchain"
	"github.com/toeirei/gatekeeper/internal/model"
)

func TestListCommandLogs_Visibility(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	opSess := f.open(t, f.operator)
	adminSess := f.open(t, f.admin)

	for _, cmd := range []string{"df -h", "free -m"} {
		if _, err := f.svc.ExecuteCommand(ctx, f.operator, opSess.ID, cmd); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.svc.ExecuteCommand(ctx, f.admin, adminSess.ID, "id"); err != nil {
		t.Fatal(err)
	}

	got, total, err := f.svc.ListCommandLogs(ctx, f.operator, model.AuditFilter{}, model.Page{})
	if err != nil || total != 2 {
		t.Fatalf("operator should see own 2 entries, got %d (%v)", total, err)
	}
	if got[0].CommandText != "free -m" {
		t.Fatalf("expected newest first, got %q", got[0].CommandText)
	}

	_, _, err = f.svc.ListCommandLogs(ctx, f.operator, model.AuditFilter{SessionID: adminSess.ID}, model.Page{})
	requireKind(t, err, apperr.ErrPermission)
	_, _, err = f.svc.ListCommandLogs(ctx, f.operator, model.AuditFilter{UserID: f.admin.User.ID}, model.Page{})
	requireKind(t, err, apperr.ErrPermission)
	_, _, err = f.svc.ListCommandLogs(ctx, f.operator, model.AuditFilter{SessionID: 31337}, model.Page{})
	requireKind(t, err, apperr.ErrNotFound)

	_, total, err = f.svc.ListCommandLogs(ctx, f.admin, model.AuditFilter{}, model.Page{})
	if err != nil || total != 3 {
		t.Fatalf("admin should see all 3 entries, got %d (%v)", total, err)
	}
	_, total, err = f.svc.ListCommandLogs(ctx, f.supervisor, model.AuditFilter{SessionID: opSess.ID}, model.Page{Limit: 1})
	if err != nil || total != 2 {
		t.Fatalf("session filter: %d (%v)", total, err)
	}
}

func TestListFileEdits_SupervisorOnly(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	for _, p := range []Principal{f.admin, f.operator} {
		_, _, err := f.svc.ListFileEdits(ctx, p, model.AuditFilter{}, model.Page{})
		requireKind(t, err, apperr.ErrPermission)
	}
	if _, _, err := f.svc.ListFileEdits(ctx, f.supervisor, model.AuditFilter{}, model.Page{}); err != nil {
		t.Fatalf("supervisor: %v", err)
	}
}

func TestVerifyAuditChain(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	s := f.open(t, f.operator)
	for _, cmd := range []string{"df -h", "free -m", "df -h"} {
		if _, err := f.svc.ExecuteCommand(ctx, f.operator, s.ID, cmd); err != nil {
			t.Fatal(err)
		}
	}
	n, err := f.svc.VerifyAuditChain(ctx, f.operator, s.ID)
	if err != nil || n != 3 {
		t.Fatalf("verify: %d %v", n, err)
	}
	_, err = f.svc.VerifyAuditChain(ctx, f.outsider, s.ID)
	requireKind(t, err, apperr.ErrPermission)

	// Tampering below the API is caught by the chain.
	if _, err := f.store.BunDB().ExecContext(ctx, "DROP TRIGGER command_logs_no_update"); err != nil {
		t.Skipf("cannot drop trigger on this engine: %v", err)
	}
	if _, err := f.store.BunDB().ExecContext(ctx, "UPDATE command_logs SET output = 'forged' WHERE session_id = ?", s.ID); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.VerifyAuditChain(ctx, f.operator, s.ID)
	requireKind(t, err, apperr.ErrInternal)
	var broken *auditchain.BrokenLinkError
	if !errors.As(err, &broken) {
		t.Fatalf("expected BrokenLinkError, got %v", err)
	}
}

func TestExportAudit(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	s := f.open(t, f.admin)
	if _, err := f.svc.ExecuteCommand(ctx, f.admin, s.ID, "uptime"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ExecuteCommand(ctx, f.admin, s.ID, "touch "+filepath.Join(t.TempDir(), "f")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	stats, err := f.svc.ExportAudit(ctx, f.admin, model.AuditFilter{SessionID: s.ID}, &buf)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if stats.Commands != 2 || stats.FileEdits != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	recs, err := ReadExport(&buf)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(recs) != 3 || recs[0].Type != RecordCommand || recs[2].Type != RecordFileEdit {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if recs[2].FileEdit.EditKind != model.EditCreate {
		t.Fatalf("file edit not round-tripped: %+v", recs[2].FileEdit)
	}

	_, err = f.svc.ExportAudit(ctx, f.operator, model.AuditFilter{}, &bytes.Buffer{})
	requireKind(t, err, apperr.ErrPermission)
}
