// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"testing"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// WithTestStore initializes an in-memory sqlite Store for the duration of the
// provided function and restores the package-level store afterwards.
func WithTestStore(t *testing.T, fn func(s *SqliteStore)) {
	t.Helper()

	prevStore := store
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	if err := InitDB("sqlite", dsn); err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	s, ok := store.(*SqliteStore)
	if !ok {
		t.Fatalf("store is not *SqliteStore")
	}
	defer func() {
		_ = s.Close()
		store = prevStore
	}()

	fn(s)
}

// fixture is a small directory: one operator assigned to a profile that
// grants group g on list l, plus an admin.
type fixture struct {
	admin    model.User
	operator model.User
	group    model.DeviceGroup
	device   model.Device
	list     model.CommandList
	profile  model.Profile
	assignID int64
}

func seedFixture(t *testing.T, s Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		admin:    model.User{Username: "root-admin", Role: model.RoleAdmin, IsActive: true},
		operator: model.User{Username: "op1", Role: model.RoleOperator, IsActive: true},
		group:    model.DeviceGroup{Name: "web", IsActive: true},
		list:     model.CommandList{Name: "readonly", IsActive: true},
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(s.AddUser(ctx, &f.admin))
	must(s.AddUser(ctx, &f.operator))
	must(s.AddDeviceGroup(ctx, &f.group))
	f.device = model.Device{
		Name: "d1", Host: "10.0.0.1", Username: "ops", AuthMethod: model.AuthPassword,
		Password: security.FromString("hunter2"), GroupID: f.group.ID, IsActive: true,
	}
	must(s.AddDevice(ctx, &f.device))
	must(s.AddCommandList(ctx, &f.list))
	must(s.AddCommand(ctx, &model.Command{Text: "df -h", ListID: f.list.ID}))
	must(s.AddCommand(ctx, &model.Command{Text: "free -m", ListID: f.list.ID}))
	must(s.AddCommand(ctx, &model.Command{Text: "reboot", IsDangerous: true, RequiresConfirmation: true}))
	f.profile = model.Profile{Name: "P1", GroupID: f.group.ID, ListID: f.list.ID, IsActive: true}
	must(s.AddProfile(ctx, &f.profile))
	id, err := s.AssignProfile(ctx, f.operator.ID, f.profile.ID, f.admin.ID)
	must(err)
	f.assignID = id
	return f
}
