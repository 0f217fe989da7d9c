// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestCreateBunDB_VariousDialects(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite in-memory: %v", err)
	}
	defer func() { _ = sqlDB.Close() }()

	cases := map[string]string{"sqlite": "sqlite", "postgres": "pg", "mysql": "mysql", "unknown": "sqlite"}
	for in, want := range cases {
		b := createBunDB(sqlDB, in)
		if b == nil {
			t.Fatalf("createBunDB returned nil for dialect %s", in)
		}
		if got := b.Dialect().Name().String(); got != want {
			t.Errorf("createBunDB(%s) dialect = %s, want %s", in, got, want)
		}
	}
}
