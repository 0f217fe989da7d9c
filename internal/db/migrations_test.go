// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRunMigrationsSqlite(t *testing.T) {
	dbConn, err := sql.Open("sqlite", "file:test_migrations?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer func() { _ = dbConn.Close() }()

	if err := RunMigrations(dbConn, "sqlite"); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	// A second run must be a no-op.
	if err := RunMigrations(dbConn, "sqlite"); err != nil {
		t.Fatalf("RunMigrations (second run) failed: %v", err)
	}

	rows, err := dbConn.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		t.Fatalf("query schema_migrations failed: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("scan version failed: %v", err)
		}
		versions = append(versions, v)
	}
	want := []string{"000001_create_initial_tables", "000002_append_only_audit", "000003_audit_text_and_chain_links"}
	if strings.Join(versions, ",") != strings.Join(want, ",") {
		t.Fatalf("applied migrations = %v, want %v", versions, want)
	}
}

func TestEveryEngineShipsTheSameMigrations(t *testing.T) {
	names := func(engine string) string {
		entries, err := fs.ReadDir(embeddedMigrations, "migrations/"+engine)
		if err != nil {
			t.Fatalf("read %s migrations: %v", engine, err)
		}
		var out []string
		for _, e := range entries {
			out = append(out, e.Name())
		}
		return strings.Join(out, ",")
	}
	sqlite := names("sqlite")
	for _, engine := range []string{"postgres", "mysql"} {
		if got := names(engine); got != sqlite {
			t.Errorf("%s migrations %q differ from sqlite %q", engine, got, sqlite)
		}
	}
}

func TestRunDBMaintenanceSqlite_Smoke(t *testing.T) {
	dsn := "file:test_maint?mode=memory&cache=shared"
	s, err := New("sqlite", dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := RunDBMaintenance("sqlite", dsn); err != nil {
		t.Fatalf("RunDBMaintenance failed: %v", err)
	}
	if _, err := s.AllCommands(t.Context()); err != nil {
		t.Fatalf("store unusable after maintenance: %v", err)
	}
}
