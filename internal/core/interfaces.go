// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package core implements the session-scoped authorization and execution
// audit core: role tiers, access policy, session lifecycle, the remote
// execution gateway and audit review. Side effects go through the small
// interfaces below so tests can substitute them.
package core

import (
	"context"
	"time"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/remote"
)

// Store is the persistence surface the core depends on. db.Store
// satisfies it. Single-row lookups return (nil, nil) when absent.
type Store interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	ActiveProfilesForUser(ctx context.Context, userID int64) ([]model.Profile, error)
	CommandsInLists(ctx context.Context, listIDs []int64) ([]model.Command, error)
	AllCommands(ctx context.Context) ([]model.Command, error)
	AssignmentsForGroup(ctx context.Context, groupID int64) ([]model.ProfileAssignment, error)

	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	CloseSession(ctx context.Context, id int64, status model.SessionStatus, end time.Time, terminatedBy int64) (bool, error)
	ListSessions(ctx context.Context, f model.SessionFilter, p model.Page) ([]model.Session, int, error)

	AppendCommandLog(ctx context.Context, e *model.CommandLogEntry) error
	AppendFileEdit(ctx context.Context, e *model.FileEditLogEntry) error
	ListCommandLogs(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.CommandLogEntry, int, error)
	ListFileEdits(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.FileEditLogEntry, int, error)
	CommandLogsForSession(ctx context.Context, sessionID int64) ([]model.CommandLogEntry, error)
}

// RemoteConn is one transport connection, used for a single gateway call.
type RemoteConn interface {
	Run(ctx context.Context, cmd string) (remote.Result, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	Remove(ctx context.Context, path string) error
	Close() error
}

// Dialer opens a fresh RemoteConn to a device.
type Dialer interface {
	Dial(ctx context.Context, dev model.Device) (RemoteConn, error)
}

type sshDialer struct{ d *remote.Dialer }

// SSHDialer adapts a remote.Dialer to the Dialer interface.
func SSHDialer(d *remote.Dialer) Dialer { return sshDialer{d: d} }

func (s sshDialer) Dial(ctx context.Context, dev model.Device) (RemoteConn, error) {
	conn, err := s.d.Dial(ctx, dev)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
