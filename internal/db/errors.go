// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"strings"
)

var (
	// ErrDuplicate is returned when attempting to insert a record that already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrAppendOnly is returned when the database rejects an update or delete
	// of an audit row.
	ErrAppendOnly = errors.New("audit tables are append-only")
)

// MapDBError maps common constraint violations to package-level sentinel
// errors. Typed driver errors are checked first; the string match covers
// wrapped or foreign errors.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if isPostgresUniqueViolation(err) || isMySQLDuplicate(err) {
		return ErrDuplicate
	}
	le := strings.ToLower(err.Error())
	if strings.Contains(le, "append-only") {
		return ErrAppendOnly
	}
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		return ErrDuplicate
	}
	return err
}
