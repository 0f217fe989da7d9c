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

	"github.com/uptrace/bun"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// UserModel maps the users table.
type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Username      string    `bun:"username"`
	Role          string    `bun:"role"`
	IsActive      bool      `bun:"is_active"`
	CreatedAt     time.Time `bun:"created_at"`
}

// DeviceModel maps the devices table. Credential columns hold raw bytes.
type DeviceModel struct {
	bun.BaseModel `bun:"table:devices,alias:d"`
	ID            int64         `bun:"id,pk,autoincrement"`
	Name          string        `bun:"name"`
	Host          string        `bun:"host"`
	Port          int           `bun:"port"`
	Username      string        `bun:"username"`
	AuthMethod    string        `bun:"auth_method"`
	Password      []byte        `bun:"password"`
	PrivateKey    []byte        `bun:"private_key"`
	Passphrase    []byte        `bun:"passphrase"`
	GroupID       sql.NullInt64 `bun:"group_id"`
	IsActive      bool          `bun:"is_active"`
}

// DeviceGroupModel maps the device_groups table.
type DeviceGroupModel struct {
	bun.BaseModel `bun:"table:device_groups,alias:g"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name"`
	Description   string `bun:"description"`
	IsActive      bool   `bun:"is_active"`
}

// CommandListModel maps the command_lists table.
type CommandListModel struct {
	bun.BaseModel `bun:"table:command_lists,alias:cl"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name"`
	Description   string `bun:"description"`
	IsActive      bool   `bun:"is_active"`
}

// CommandModel maps the commands table.
type CommandModel struct {
	bun.BaseModel        `bun:"table:commands,alias:c"`
	ID                   int64         `bun:"id,pk,autoincrement"`
	Text                 string        `bun:"command_text"`
	Description          string        `bun:"description"`
	IsDangerous          bool          `bun:"is_dangerous"`
	RequiresConfirmation bool          `bun:"requires_confirmation"`
	ListID               sql.NullInt64 `bun:"list_id"`
}

// ProfileModel maps the profiles table.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Name          string `bun:"name"`
	Description   string `bun:"description"`
	GroupID       int64  `bun:"group_id"`
	ListID        int64  `bun:"list_id"`
	IsActive      bool   `bun:"is_active"`
}

// ProfileAssignmentModel maps the profile_assignments table.
type ProfileAssignmentModel struct {
	bun.BaseModel `bun:"table:profile_assignments,alias:pa"`
	ID            int64         `bun:"id,pk,autoincrement"`
	UserID        int64         `bun:"user_id"`
	ProfileID     int64         `bun:"profile_id"`
	AssignedBy    sql.NullInt64 `bun:"assigned_by"`
	AssignedAt    time.Time     `bun:"assigned_at"`
	State         string        `bun:"state"`
	RevokedAt     sql.NullTime  `bun:"revoked_at"`
	RevokedBy     sql.NullInt64 `bun:"revoked_by"`
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func userModelToModel(m UserModel) model.User {
	return model.User{ID: m.ID, Username: m.Username, Role: model.Role(m.Role), IsActive: m.IsActive, CreatedAt: m.CreatedAt}
}

func deviceModelToModel(m DeviceModel) model.Device {
	return model.Device{
		ID:         m.ID,
		Name:       m.Name,
		Host:       m.Host,
		Port:       m.Port,
		Username:   m.Username,
		AuthMethod: model.AuthMethod(m.AuthMethod),
		Password:   security.FromBytes(m.Password),
		PrivateKey: security.FromBytes(m.PrivateKey),
		Passphrase: security.FromBytes(m.Passphrase),
		GroupID:    m.GroupID.Int64,
		IsActive:   m.IsActive,
	}
}

func commandModelToModel(m CommandModel) model.Command {
	return model.Command{
		ID:                   m.ID,
		Text:                 m.Text,
		Description:          m.Description,
		IsDangerous:          m.IsDangerous,
		RequiresConfirmation: m.RequiresConfirmation,
		ListID:               m.ListID.Int64,
	}
}

func profileModelToModel(m ProfileModel) model.Profile {
	return model.Profile{ID: m.ID, Name: m.Name, Description: m.Description, GroupID: m.GroupID, ListID: m.ListID, IsActive: m.IsActive}
}

func assignmentModelToModel(m ProfileAssignmentModel) model.ProfileAssignment {
	a := model.ProfileAssignment{
		ID:         m.ID,
		UserID:     m.UserID,
		ProfileID:  m.ProfileID,
		AssignedBy: m.AssignedBy.Int64,
		AssignedAt: m.AssignedAt,
		State:      model.AssignmentState(m.State),
		RevokedBy:  m.RevokedBy.Int64,
	}
	if m.RevokedAt.Valid {
		t := m.RevokedAt.Time
		a.RevokedAt = &t
	}
	return a
}

// GetUserBun returns the user with the given id, or nil when absent.
func GetUserBun(ctx context.Context, bdb bun.IDB, id int64) (*model.User, error) {
	var um UserModel
	err := bdb.NewSelect().Model(&um).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := userModelToModel(um)
	return &u, nil
}

// GetUserByUsernameBun looks a user up by username, or nil when absent.
func GetUserByUsernameBun(ctx context.Context, bdb bun.IDB, username string) (*model.User, error) {
	var um UserModel
	err := bdb.NewSelect().Model(&um).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := userModelToModel(um)
	return &u, nil
}

// GetDeviceBun returns the device with the given id, or nil when absent.
func GetDeviceBun(ctx context.Context, bdb bun.IDB, id int64) (*model.Device, error) {
	var dm DeviceModel
	err := bdb.NewSelect().Model(&dm).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := deviceModelToModel(dm)
	return &d, nil
}

// ActiveProfilesForUserBun returns the profiles reachable through the user's
// active assignments. Inactive profiles, groups and command lists are
// excluded.
func ActiveProfilesForUserBun(ctx context.Context, bdb bun.IDB, userID int64) ([]model.Profile, error) {
	var rows []ProfileModel
	err := bdb.NewSelect().Model(&rows).
		Distinct().
		Join("JOIN profile_assignments AS pa ON pa.profile_id = p.id").
		Join("JOIN device_groups AS g ON g.id = p.group_id").
		Join("JOIN command_lists AS cl ON cl.id = p.list_id").
		Where("pa.user_id = ?", userID).
		Where("pa.state = ?", string(model.AssignmentActive)).
		Where("pa.revoked_at IS NULL").
		Where("p.is_active = ?", true).
		Where("g.is_active = ?", true).
		Where("cl.is_active = ?", true).
		OrderExpr("p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Profile, 0, len(rows))
	for _, r := range rows {
		out = append(out, profileModelToModel(r))
	}
	return out, nil
}

// CommandsInListsBun returns the commands belonging to any of listIDs.
func CommandsInListsBun(ctx context.Context, bdb bun.IDB, listIDs []int64) ([]model.Command, error) {
	if len(listIDs) == 0 {
		return nil, nil
	}
	var rows []CommandModel
	if err := bdb.NewSelect().Model(&rows).Where("list_id IN (?)", bun.In(listIDs)).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Command, 0, len(rows))
	for _, r := range rows {
		out = append(out, commandModelToModel(r))
	}
	return out, nil
}

// AllCommandsBun returns every registered command.
func AllCommandsBun(ctx context.Context, bdb bun.IDB) ([]model.Command, error) {
	var rows []CommandModel
	if err := bdb.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Command, 0, len(rows))
	for _, r := range rows {
		out = append(out, commandModelToModel(r))
	}
	return out, nil
}

// AssignmentsForGroupBun returns every assignment, active or revoked, whose
// profile targets groupID.
func AssignmentsForGroupBun(ctx context.Context, bdb bun.IDB, groupID int64) ([]model.ProfileAssignment, error) {
	var rows []ProfileAssignmentModel
	err := bdb.NewSelect().Model(&rows).
		Join("JOIN profiles AS p ON p.id = pa.profile_id").
		Where("p.group_id = ?", groupID).
		OrderExpr("pa.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProfileAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, assignmentModelToModel(r))
	}
	return out, nil
}

// AddUserBun inserts u and sets its ID.
func AddUserBun(ctx context.Context, bdb bun.IDB, u *model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m := UserModel{Username: u.Username, Role: string(u.Role), IsActive: u.IsActive, CreatedAt: u.CreatedAt}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	u.ID = m.ID
	return nil
}

// AddDeviceGroupBun inserts g and sets its ID.
func AddDeviceGroupBun(ctx context.Context, bdb bun.IDB, g *model.DeviceGroup) error {
	m := DeviceGroupModel{Name: g.Name, Description: g.Description, IsActive: g.IsActive}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	g.ID = m.ID
	return nil
}

// AddDeviceBun inserts d and sets its ID.
func AddDeviceBun(ctx context.Context, bdb bun.IDB, d *model.Device) error {
	port := d.Port
	if port == 0 {
		port = 22
	}
	m := DeviceModel{
		Name:       d.Name,
		Host:       d.Host,
		Port:       port,
		Username:   d.Username,
		AuthMethod: string(d.AuthMethod),
		Password:   d.Password.Bytes(),
		PrivateKey: d.PrivateKey.Bytes(),
		Passphrase: d.Passphrase.Bytes(),
		GroupID:    nullID(d.GroupID),
		IsActive:   d.IsActive,
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	d.ID = m.ID
	d.Port = port
	return nil
}

// AddCommandListBun inserts l and sets its ID.
func AddCommandListBun(ctx context.Context, bdb bun.IDB, l *model.CommandList) error {
	m := CommandListModel{Name: l.Name, Description: l.Description, IsActive: l.IsActive}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	l.ID = m.ID
	return nil
}

// AddCommandBun inserts c and sets its ID.
func AddCommandBun(ctx context.Context, bdb bun.IDB, c *model.Command) error {
	m := CommandModel{
		Text:                 c.Text,
		Description:          c.Description,
		IsDangerous:          c.IsDangerous,
		RequiresConfirmation: c.RequiresConfirmation,
		ListID:               nullID(c.ListID),
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	c.ID = m.ID
	return nil
}

// AddProfileBun inserts p and sets its ID.
func AddProfileBun(ctx context.Context, bdb bun.IDB, p *model.Profile) error {
	m := ProfileModel{Name: p.Name, Description: p.Description, GroupID: p.GroupID, ListID: p.ListID, IsActive: p.IsActive}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	p.ID = m.ID
	return nil
}

// AssignProfileBun creates an active assignment of profileID to userID.
func AssignProfileBun(ctx context.Context, bdb bun.IDB, userID, profileID, assignedBy int64, at time.Time) (int64, error) {
	m := ProfileAssignmentModel{
		UserID:     userID,
		ProfileID:  profileID,
		AssignedBy: nullID(assignedBy),
		AssignedAt: at.UTC(),
		State:      string(model.AssignmentActive),
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return 0, MapDBError(err)
	}
	return m.ID, nil
}

// RevokeAssignmentBun moves an active assignment to revoked. It reports
// false when the assignment was not active.
func RevokeAssignmentBun(ctx context.Context, bdb bun.IDB, id, revokedBy int64, at time.Time) (bool, error) {
	res, err := bdb.NewUpdate().Model((*ProfileAssignmentModel)(nil)).
		Set("state = ?", string(model.AssignmentRevoked)).
		Set("revoked_at = ?", at.UTC()).
		Set("revoked_by = ?", nullID(revokedBy)).
		Where("id = ?", id).
		Where("state = ?", string(model.AssignmentActive)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// setActiveBun flips is_active on table row id.
func setActiveBun(ctx context.Context, bdb bun.IDB, table string, id int64, active bool) error {
	res, err := ExecRaw(ctx, bdb, "UPDATE ? SET is_active = ? WHERE id = ?", bun.Ident(table), active, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %d: %w", table, id, sql.ErrNoRows)
	}
	return nil
}
