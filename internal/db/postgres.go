// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore is the PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	bunStore
}

const pgUniqueViolation = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func maintainPostgres(ctx context.Context, sqlDB *sql.DB) error {
	if _, err := sqlDB.ExecContext(ctx, "VACUUM ANALYZE;"); err != nil {
		return fmt.Errorf("postgres vacuum failed: %w", err)
	}
	return nil
}
