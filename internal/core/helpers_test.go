// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/toeirei/gatekeeper/internal/db"
	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/remote"
	"github.com/toeirei/gatekeeper/internal/security"
	"github.com/toeirei/gatekeeper/internal/testutil"
)

// newTestStore opens an isolated in-memory sqlite store. A single
// connection keeps concurrent writers from tripping shared-cache locks.
func newTestStore(t *testing.T) db.Store {
	t.Helper()
	t.Setenv("GATEKEEPER_DB_MAX_OPEN_CONNS", "1")
	t.Setenv("GATEKEEPER_DB_MAX_IDLE_CONNS", "1")
	s, err := db.NewStoreFromDSN("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeConn runs commands through the shell emulator against the local
// filesystem, so before/after reads see real changes.
type fakeConn struct {
	d      *fakeDialer
	closed bool
}

func (c *fakeConn) Run(ctx context.Context, cmd string) (remote.Result, error) {
	c.d.mu.Lock()
	c.d.commands = append(c.d.commands, cmd)
	hook := c.d.runHook
	c.d.mu.Unlock()
	if hook != nil {
		return hook(ctx, cmd)
	}
	out, errOut, code := testutil.ShellEmulator(cmd, ctx.Done())
	return remote.Result{Output: out + errOut, ExitCode: code, Started: true}, nil
}

func (c *fakeConn) ReadFile(_ context.Context, p string) (string, error) {
	b, err := os.ReadFile(p)
	return string(b), err
}

func (c *fakeConn) WriteFile(_ context.Context, p, content string) error {
	return os.WriteFile(p, []byte(content), 0o644)
}

func (c *fakeConn) Remove(_ context.Context, p string) error {
	return os.Remove(p)
}

func (c *fakeConn) Close() error {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.d.closes++
	}
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	closes   int
	commands []string
	dialErr  error
	runHook  func(ctx context.Context, cmd string) (remote.Result, error)
}

func (d *fakeDialer) Dial(_ context.Context, _ model.Device) (RemoteConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeConn{d: d}, nil
}

func (d *fakeDialer) counts() (dials, closes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials, d.closes
}

// fixture mirrors the concrete scenario: op1 holds one active assignment
// to P1 = (group {d1}, list {"df -h", "free -m"}).
type fixture struct {
	store      db.Store
	dialer     *fakeDialer
	svc        *Service
	admin      Principal
	supervisor Principal
	operator   Principal
	outsider   Principal
	group      model.DeviceGroup
	device     model.Device
	other      model.Device
	profile    model.Profile
	assignID   int64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	s := newTestStore(t)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	users := map[string]*model.User{
		"admin": {Username: "admin", Role: model.RoleAdmin, IsActive: true},
		"sup":   {Username: "sup", Role: model.RoleSupervisor, IsActive: true},
		"op1":   {Username: "op1", Role: model.RoleOperator, IsActive: true},
		"op2":   {Username: "op2", Role: model.RoleOperator, IsActive: true},
	}
	for _, name := range []string{"admin", "sup", "op1", "op2"} {
		must(s.AddUser(ctx, users[name]))
	}

	f := &fixture{store: s, dialer: &fakeDialer{}}
	f.group = model.DeviceGroup{Name: "web", IsActive: true}
	must(s.AddDeviceGroup(ctx, &f.group))
	other := model.DeviceGroup{Name: "db", IsActive: true}
	must(s.AddDeviceGroup(ctx, &other))

	f.device = model.Device{Name: "d1", Host: "10.0.0.1", Username: "ops", AuthMethod: model.AuthPassword,
		Password: security.FromString("pw"), GroupID: f.group.ID, IsActive: true}
	must(s.AddDevice(ctx, &f.device))
	f.other = model.Device{Name: "d2", Host: "10.0.0.2", Username: "ops", AuthMethod: model.AuthPassword,
		Password: security.FromString("pw"), GroupID: other.ID, IsActive: true}
	must(s.AddDevice(ctx, &f.other))

	list := model.CommandList{Name: "readonly", IsActive: true}
	must(s.AddCommandList(ctx, &list))
	must(s.AddCommand(ctx, &model.Command{Text: "df -h", ListID: list.ID}))
	must(s.AddCommand(ctx, &model.Command{Text: "free -m", ListID: list.ID}))
	must(s.AddCommand(ctx, &model.Command{Text: "reboot", IsDangerous: true, RequiresConfirmation: true}))

	f.profile = model.Profile{Name: "P1", GroupID: f.group.ID, ListID: list.ID, IsActive: true}
	must(s.AddProfile(ctx, &f.profile))
	id, err := s.AssignProfile(ctx, users["op1"].ID, f.profile.ID, users["admin"].ID)
	must(err)
	f.assignID = id

	principal := func(name string) Principal {
		p, err := NewPrincipal(*users[name])
		must(err)
		return p
	}
	f.admin = principal("admin")
	f.supervisor = principal("sup")
	f.operator = principal("op1")
	f.outsider = principal("op2")
	f.svc = New(s, f.dialer, opts)
	return f
}

func (f *fixture) open(t *testing.T, p Principal) *model.Session {
	t.Helper()
	sess, err := f.svc.OpenSession(context.Background(), p, f.device.ID, model.ClientInfo{IPAddress: "192.0.2.10", UserAgent: "test"})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return sess
}

func (f *fixture) logsFor(t *testing.T, sessionID int64) []model.CommandLogEntry {
	t.Helper()
	entries, err := f.store.CommandLogsForSession(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("load logs: %v", err)
	}
	return entries
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}
