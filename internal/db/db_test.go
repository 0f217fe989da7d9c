// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/toeirei/gatekeeper/internal/model"
)

func newTestDB(t *testing.T) string {
	t.Helper()
	dsn := "file:test_" + t.Name() + "?mode=memory&cache=shared"
	if err := InitDB("sqlite", dsn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return dsn
}

func TestInitDB_Migrations_Applied(t *testing.T) {
	dsn := newTestDB(t)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("failed to open sql.DB for inspection: %v", err)
	}
	defer func() { _ = sqlDB.Close() }()

	for _, table := range []string{"users", "devices", "profiles", "profile_assignments", "sessions", "command_logs", "file_edit_logs", "known_hosts"} {
		var name string
		err := sqlDB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s after migrations: %v", table, err)
		}
	}
}

func TestUser_AddDuplicateBehavior(t *testing.T) {
	_ = newTestDB(t)
	ctx := context.Background()

	if err := store.AddUser(ctx, &model.User{Username: "alice", Role: model.RoleOperator, IsActive: true}); err != nil {
		t.Fatalf("unexpected error adding user: %v", err)
	}
	err := store.AddUser(ctx, &model.User{Username: "alice", Role: model.RoleAdmin, IsActive: true})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on duplicate AddUser, got: %v", err)
	}
}

func TestDirectoryReads(t *testing.T) {
	WithTestStore(t, func(s *SqliteStore) {
		ctx := context.Background()
		f := seedFixture(t, s)

		u, err := s.GetUserByUsername(ctx, "op1")
		if err != nil || u == nil || u.ID != f.operator.ID || u.Role != model.RoleOperator {
			t.Fatalf("GetUserByUsername: %+v, %v", u, err)
		}
		if u, err := s.GetUser(ctx, 9999); err != nil || u != nil {
			t.Fatalf("missing user should be (nil, nil), got %+v, %v", u, err)
		}

		d, err := s.GetDevice(ctx, f.device.ID)
		if err != nil || d == nil {
			t.Fatalf("GetDevice: %v", err)
		}
		if d.GroupID != f.group.ID || d.Port != 22 {
			t.Errorf("device round trip: %+v", d)
		}
		if string(d.Password.Bytes()) != "hunter2" {
			t.Errorf("password not persisted")
		}

		profiles, err := s.ActiveProfilesForUser(ctx, f.operator.ID)
		if err != nil || len(profiles) != 1 || profiles[0].ID != f.profile.ID {
			t.Fatalf("ActiveProfilesForUser: %+v, %v", profiles, err)
		}
		cmds, err := s.CommandsInLists(ctx, []int64{f.list.ID})
		if err != nil || len(cmds) != 2 {
			t.Fatalf("CommandsInLists: %+v, %v", cmds, err)
		}
		all, err := s.AllCommands(ctx)
		if err != nil || len(all) != 3 {
			t.Fatalf("AllCommands: %d, %v", len(all), err)
		}
	})
}

func TestRevokedAssignmentNoLongerGrants(t *testing.T) {
	WithTestStore(t, func(s *SqliteStore) {
		ctx := context.Background()
		f := seedFixture(t, s)

		ok, err := s.RevokeAssignment(ctx, f.assignID, f.admin.ID)
		if err != nil || !ok {
			t.Fatalf("RevokeAssignment: %v %v", ok, err)
		}
		profiles, err := s.ActiveProfilesForUser(ctx, f.operator.ID)
		if err != nil {
			t.Fatalf("ActiveProfilesForUser: %v", err)
		}
		if len(profiles) != 0 {
			t.Fatalf("revoked assignment still grants: %+v", profiles)
		}
		if ok, _ := s.RevokeAssignment(ctx, f.assignID, f.admin.ID); ok {
			t.Fatalf("second revoke should report false")
		}

		history, err := s.AssignmentsForGroup(ctx, f.group.ID)
		if err != nil || len(history) != 1 {
			t.Fatalf("AssignmentsForGroup: %+v, %v", history, err)
		}
		if history[0].State != model.AssignmentRevoked || history[0].RevokedAt == nil || history[0].RevokedBy != f.admin.ID {
			t.Errorf("revocation not recorded: %+v", history[0])
		}
	})
}

func TestInactiveProfileOrGroupDoesNotGrant(t *testing.T) {
	WithTestStore(t, func(s *SqliteStore) {
		ctx := context.Background()
		f := seedFixture(t, s)
		if _, err := ExecRaw(ctx, s.BunDB(), "UPDATE device_groups SET is_active = ? WHERE id = ?", false, f.group.ID); err != nil {
			t.Fatalf("deactivate group: %v", err)
		}
		profiles, err := s.ActiveProfilesForUser(ctx, f.operator.ID)
		if err != nil || len(profiles) != 0 {
			t.Fatalf("inactive group should not grant: %+v, %v", profiles, err)
		}
	})
}

func TestSetActiveFlags(t *testing.T) {
	WithTestStore(t, func(s *SqliteStore) {
		ctx := context.Background()
		f := seedFixture(t, s)
		if err := s.SetDeviceActive(ctx, f.device.ID, false); err != nil {
			t.Fatalf("SetDeviceActive: %v", err)
		}
		d, _ := s.GetDevice(ctx, f.device.ID)
		if d.IsActive {
			t.Fatalf("device still active")
		}
		if err := s.SetUserActive(ctx, 424242, false); !errors.Is(err, sql.ErrNoRows) {
			t.Fatalf("expected ErrNoRows for unknown user, got %v", err)
		}
	})
}

func TestKnownHosts(t *testing.T) {
	WithTestStore(t, func(s *SqliteStore) {
		ctx := context.Background()
		key, err := s.GetKnownHostKey(ctx, "10.0.0.1:22")
		if err != nil || key != "" {
			t.Fatalf("unknown host: %q, %v", key, err)
		}
		if err := s.AddKnownHostKey(ctx, "10.0.0.1:22", "ssh-ed25519 AAAA"); err != nil {
			t.Fatalf("AddKnownHostKey: %v", err)
		}
		if err := s.AddKnownHostKey(ctx, "10.0.0.1:22", "ssh-ed25519 BBBB"); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		key, _ = s.GetKnownHostKey(ctx, "10.0.0.1:22")
		if key != "ssh-ed25519 AAAA" {
			t.Fatalf("got %q", key)
		}
	})
}
