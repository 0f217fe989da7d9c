// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore is the MySQL implementation of the Store interface.
type MySQLStore struct {
	bunStore
}

const mysqlDuplicateEntry = 1062

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

// normalizeMySQLDSN forces the driver options the schema relies on: DATETIME
// parsing in UTC and multi-statement migration files.
func normalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true
	return cfg.FormatDSN(), nil
}

// maintainMySQL runs OPTIMIZE TABLE for every table, continuing past
// per-table failures and reporting the last one.
func maintainMySQL(ctx context.Context, sqlDB *sql.DB) error {
	rows, err := sqlDB.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return fmt.Errorf("mysql show tables failed: %w", err)
	}
	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			_ = rows.Close()
			return fmt.Errorf("mysql read table name failed: %w", err)
		}
		tables = append(tables, table)
	}
	_ = rows.Close()

	var lastErr error
	for _, table := range tables {
		if _, err := sqlDB.ExecContext(ctx, fmt.Sprintf("OPTIMIZE TABLE %s", table)); err != nil {
			dbLogf("db: mysql optimize table %s failed: %v", table, err)
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("mysql optimize encountered errors: %w", lastErr)
	}
	return nil
}
