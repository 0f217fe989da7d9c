// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SqliteStore is the SQLite implementation of the Store interface.
type SqliteStore struct {
	bunStore
}

// maintainSqlite runs PRAGMA optimize, VACUUM, a WAL checkpoint and an
// integrity check.
func maintainSqlite(ctx context.Context, sqlDB *sql.DB) error {
	// optimize is unsupported on some in-memory filesystems.
	if _, err := sqlDB.ExecContext(ctx, "PRAGMA optimize;"); err != nil {
		dbLogf("db: sqlite optimize failed (ignored): %v", err)
	}
	if _, err := sqlDB.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("sqlite vacuum failed: %w", err)
	}
	_, _ = sqlDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
	var res string
	if err := sqlDB.QueryRowContext(ctx, "PRAGMA integrity_check;").Scan(&res); err != nil {
		return fmt.Errorf("sqlite integrity_check failed: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("sqlite integrity_check failed: %s", res)
	}
	return nil
}
