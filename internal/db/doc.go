// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package db is the persistence layer for Gatekeeper.
//
// A single Bun-backed implementation serves SQLite, PostgreSQL and MySQL;
// the engine types (SqliteStore, PostgresStore, MySQLStore) only differ in
// maintenance and driver error mapping. Schema changes live in embedded
// migrations under migrations/<engine>/ and are tracked in
// schema_migrations.
//
// Audit tables
//   - command_logs and file_edit_logs are append-only. The Store exposes no
//     update or delete for them and database triggers reject both.
//   - Each command log row carries prev_hash and entry_hash, chaining the
//     rows of one session (see internal/auditchain).
//
// Sessions
//   - CloseSession is a conditional update on status = 'active' so that two
//     concurrent closers cannot both succeed.
//
// MySQL DSNs are rewritten to enable parseTime, loc=UTC and multiStatements.
//
// Testing notes
//   - Prefer `db.New("sqlite", "file:<name>?mode=memory&cache=shared")` in
//     tests that need real DB semantics and migrations.
package db
