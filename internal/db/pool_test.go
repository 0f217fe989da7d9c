// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"strings"
	"testing"
)

func TestDBPoolDefaultsSQLite(t *testing.T) {
	// Ensure CI env overrides do not change the expectation for this unit test.
	t.Setenv("GATEKEEPER_DB_MAX_OPEN_CONNS", "")
	t.Setenv("GATEKEEPER_DB_MAX_IDLE_CONNS", "")

	s, err := NewStoreFromDSN("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN returned error: %v", err)
	}
	ss, ok := s.(*SqliteStore)
	if !ok {
		t.Fatalf("expected *SqliteStore, got %T", s)
	}
	defer func() { _ = ss.Close() }()
	if got := ss.BunDB().DB.Stats().MaxOpenConnections; got != 25 {
		t.Fatalf("MaxOpenConnections = %d; want 25", got)
	}
}

func TestDBPoolEnvOverrideAndPlainMemory(t *testing.T) {
	t.Setenv("GATEKEEPER_DB_MAX_OPEN_CONNS", "7")
	s, err := NewStoreFromDSN("sqlite", "file:pool_override?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	if got := s.BunDB().DB.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("env override ignored: %d", got)
	}
	_ = s.Close()

	mem, err := NewStoreFromDSN("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewStoreFromDSN(:memory:): %v", err)
	}
	defer func() { _ = mem.Close() }()
	if got := mem.BunDB().DB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf(":memory: must use a single connection, got %d", got)
	}
}

func TestNewStoreFromDSN_UnsupportedType(t *testing.T) {
	if _, err := NewStoreFromDSN("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported db type")
	}
}

func TestNormalizeMySQLDSN(t *testing.T) {
	got, err := normalizeMySQLDSN("gk:secret@tcp(db:3306)/gatekeeper")
	if err != nil {
		t.Fatalf("normalizeMySQLDSN: %v", err)
	}
	for _, want := range []string{"parseTime=true", "multiStatements=true"} {
		if !strings.Contains(got, want) {
			t.Errorf("normalized DSN %q missing %s", got, want)
		}
	}
}
