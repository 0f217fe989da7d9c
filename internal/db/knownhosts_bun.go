// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
)

// KnownHostModel maps the known_hosts table used for trust-on-first-use.
type KnownHostModel struct {
	bun.BaseModel `bun:"table:known_hosts"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

// GetKnownHostKeyBun returns the trusted key line for hostname, or "" when
// the host has not been seen.
func GetKnownHostKeyBun(ctx context.Context, bdb bun.IDB, hostname string) (string, error) {
	var m KnownHostModel
	err := bdb.NewSelect().Model(&m).Where("hostname = ?", hostname).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return m.Key, nil
}

// AddKnownHostKeyBun records key as the trusted key for hostname.
func AddKnownHostKeyBun(ctx context.Context, bdb bun.IDB, hostname, key string) error {
	_, err := bdb.NewInsert().Model(&KnownHostModel{Hostname: hostname, Key: key}).Exec(ctx)
	return MapDBError(err)
}
