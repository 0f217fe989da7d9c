// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/gatekeeper/internal/model"
)

// Store defines every database operation Gatekeeper performs. Lookups of a
// single row return (nil, nil) when the row does not exist.
type Store interface {
	BunDB() *bun.DB
	DBType() string
	Close() error

	// Directory reads
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	ActiveProfilesForUser(ctx context.Context, userID int64) ([]model.Profile, error)
	CommandsInLists(ctx context.Context, listIDs []int64) ([]model.Command, error)
	AllCommands(ctx context.Context) ([]model.Command, error)
	AssignmentsForGroup(ctx context.Context, groupID int64) ([]model.ProfileAssignment, error)

	// Administrative writes, used by fixtures and seeding
	AddUser(ctx context.Context, u *model.User) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	AddDeviceGroup(ctx context.Context, g *model.DeviceGroup) error
	AddDevice(ctx context.Context, d *model.Device) error
	SetDeviceActive(ctx context.Context, id int64, active bool) error
	AddCommandList(ctx context.Context, l *model.CommandList) error
	AddCommand(ctx context.Context, c *model.Command) error
	AddProfile(ctx context.Context, p *model.Profile) error
	AssignProfile(ctx context.Context, userID, profileID, assignedBy int64) (int64, error)
	RevokeAssignment(ctx context.Context, id, revokedBy int64) (bool, error)

	// Sessions
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	CloseSession(ctx context.Context, id int64, status model.SessionStatus, end time.Time, terminatedBy int64) (bool, error)
	ListSessions(ctx context.Context, f model.SessionFilter, p model.Page) ([]model.Session, int, error)

	// Audit log, append-only
	AppendCommandLog(ctx context.Context, e *model.CommandLogEntry) error
	AppendFileEdit(ctx context.Context, e *model.FileEditLogEntry) error
	ListCommandLogs(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.CommandLogEntry, int, error)
	ListFileEdits(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.FileEditLogEntry, int, error)
	CommandLogsForSession(ctx context.Context, sessionID int64) ([]model.CommandLogEntry, error)
	GetCommandLog(ctx context.Context, id int64) (*model.CommandLogEntry, error)

	// Host keys
	GetKnownHostKey(ctx context.Context, hostname string) (string, error)
	AddKnownHostKey(ctx context.Context, hostname, key string) error
}

// bunStore implements Store over any Bun dialect. The per-engine types in
// sqlite.go, postgres.go and mysql.go embed it.
type bunStore struct {
	bun    *bun.DB
	dbType string
}

func (s *bunStore) BunDB() *bun.DB { return s.bun }
func (s *bunStore) DBType() string { return s.dbType }
func (s *bunStore) Close() error   { return s.bun.Close() }
func (s *bunStore) now() time.Time { return time.Now().UTC() }

func (s *bunStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return GetUserBun(ctx, s.bun, id)
}

func (s *bunStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return GetUserByUsernameBun(ctx, s.bun, username)
}

func (s *bunStore) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	return GetDeviceBun(ctx, s.bun, id)
}

func (s *bunStore) ActiveProfilesForUser(ctx context.Context, userID int64) ([]model.Profile, error) {
	return ActiveProfilesForUserBun(ctx, s.bun, userID)
}

func (s *bunStore) CommandsInLists(ctx context.Context, listIDs []int64) ([]model.Command, error) {
	return CommandsInListsBun(ctx, s.bun, listIDs)
}

func (s *bunStore) AllCommands(ctx context.Context) ([]model.Command, error) {
	return AllCommandsBun(ctx, s.bun)
}

func (s *bunStore) AssignmentsForGroup(ctx context.Context, groupID int64) ([]model.ProfileAssignment, error) {
	return AssignmentsForGroupBun(ctx, s.bun, groupID)
}

func (s *bunStore) AddUser(ctx context.Context, u *model.User) error {
	return AddUserBun(ctx, s.bun, u)
}

func (s *bunStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	return setActiveBun(ctx, s.bun, "users", id, active)
}

func (s *bunStore) AddDeviceGroup(ctx context.Context, g *model.DeviceGroup) error {
	return AddDeviceGroupBun(ctx, s.bun, g)
}

func (s *bunStore) AddDevice(ctx context.Context, d *model.Device) error {
	return AddDeviceBun(ctx, s.bun, d)
}

func (s *bunStore) SetDeviceActive(ctx context.Context, id int64, active bool) error {
	return setActiveBun(ctx, s.bun, "devices", id, active)
}

func (s *bunStore) AddCommandList(ctx context.Context, l *model.CommandList) error {
	return AddCommandListBun(ctx, s.bun, l)
}

func (s *bunStore) AddCommand(ctx context.Context, c *model.Command) error {
	return AddCommandBun(ctx, s.bun, c)
}

func (s *bunStore) AddProfile(ctx context.Context, p *model.Profile) error {
	return AddProfileBun(ctx, s.bun, p)
}

func (s *bunStore) AssignProfile(ctx context.Context, userID, profileID, assignedBy int64) (int64, error) {
	return AssignProfileBun(ctx, s.bun, userID, profileID, assignedBy, s.now())
}

func (s *bunStore) RevokeAssignment(ctx context.Context, id, revokedBy int64) (bool, error) {
	return RevokeAssignmentBun(ctx, s.bun, id, revokedBy, s.now())
}

func (s *bunStore) CreateSession(ctx context.Context, sess *model.Session) error {
	return CreateSessionBun(ctx, s.bun, sess)
}

func (s *bunStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	return GetSessionBun(ctx, s.bun, id)
}

func (s *bunStore) CloseSession(ctx context.Context, id int64, status model.SessionStatus, end time.Time, terminatedBy int64) (bool, error) {
	return CloseSessionBun(ctx, s.bun, id, status, end, terminatedBy)
}

func (s *bunStore) ListSessions(ctx context.Context, f model.SessionFilter, p model.Page) ([]model.Session, int, error) {
	return ListSessionsBun(ctx, s.bun, f, p)
}

func (s *bunStore) AppendCommandLog(ctx context.Context, e *model.CommandLogEntry) error {
	return AppendCommandLogBun(ctx, s.bun, e)
}

func (s *bunStore) AppendFileEdit(ctx context.Context, e *model.FileEditLogEntry) error {
	return AppendFileEditBun(ctx, s.bun, e)
}

func (s *bunStore) ListCommandLogs(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.CommandLogEntry, int, error) {
	return ListCommandLogsBun(ctx, s.bun, f, p)
}

func (s *bunStore) ListFileEdits(ctx context.Context, f model.AuditFilter, p model.Page) ([]model.FileEditLogEntry, int, error) {
	return ListFileEditsBun(ctx, s.bun, f, p)
}

func (s *bunStore) CommandLogsForSession(ctx context.Context, sessionID int64) ([]model.CommandLogEntry, error) {
	return CommandLogsForSessionBun(ctx, s.bun, sessionID)
}

func (s *bunStore) GetCommandLog(ctx context.Context, id int64) (*model.CommandLogEntry, error) {
	return GetCommandLogBun(ctx, s.bun, id)
}

func (s *bunStore) GetKnownHostKey(ctx context.Context, hostname string) (string, error) {
	return GetKnownHostKeyBun(ctx, s.bun, hostname)
}

func (s *bunStore) AddKnownHostKey(ctx context.Context, hostname, key string) error {
	return AddKnownHostKeyBun(ctx, s.bun, hostname, key)
}
