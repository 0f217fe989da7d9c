// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/gatekeeper/internal/model"
)

// SessionModel maps the sessions table.
type SessionModel struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`
	ID            int64         `bun:"id,pk,autoincrement"`
	UserID        int64         `bun:"user_id"`
	DeviceID      int64         `bun:"device_id"`
	Status        string        `bun:"status"`
	StartTime     time.Time     `bun:"start_time"`
	EndTime       sql.NullTime  `bun:"end_time"`
	TerminatedBy  sql.NullInt64 `bun:"terminated_by"`
	IPAddress     string        `bun:"ip_address"`
	UserAgent     string        `bun:"user_agent"`
}

func sessionModelToModel(m SessionModel) model.Session {
	s := model.Session{
		ID:           m.ID,
		UserID:       m.UserID,
		DeviceID:     m.DeviceID,
		Status:       model.SessionStatus(m.Status),
		StartTime:    m.StartTime,
		TerminatedBy: m.TerminatedBy.Int64,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
	}
	if m.EndTime.Valid {
		t := m.EndTime.Time
		s.EndTime = &t
	}
	return s
}

// CreateSessionBun inserts an active session and sets its ID.
func CreateSessionBun(ctx context.Context, bdb bun.IDB, s *model.Session) error {
	m := SessionModel{
		UserID:    s.UserID,
		DeviceID:  s.DeviceID,
		Status:    string(s.Status),
		StartTime: s.StartTime.UTC(),
		IPAddress: s.IPAddress,
		UserAgent: s.UserAgent,
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	s.ID = m.ID
	return nil
}

// GetSessionBun returns the session with the given id, or nil when absent.
func GetSessionBun(ctx context.Context, bdb bun.IDB, id int64) (*model.Session, error) {
	var m SessionModel
	err := bdb.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s := sessionModelToModel(m)
	return &s, nil
}

// CloseSessionBun moves session id from active to status in one conditional
// update. It reports false when the session was no longer active, in which
// case nothing was written.
func CloseSessionBun(ctx context.Context, bdb bun.IDB, id int64, status model.SessionStatus, end time.Time, terminatedBy int64) (bool, error) {
	q := bdb.NewUpdate().Model((*SessionModel)(nil)).
		Set("status = ?", string(status)).
		Set("end_time = ?", end.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(model.SessionActive))
	if terminatedBy != 0 {
		q = q.Set("terminated_by = ?", terminatedBy)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListSessionsBun returns one page of sessions, newest first, and the total
// number of sessions matching f.
func ListSessionsBun(ctx context.Context, bdb bun.IDB, f model.SessionFilter, p model.Page) ([]model.Session, int, error) {
	var rows []SessionModel
	q := bdb.NewSelect().Model(&rows)
	if f.ActiveOnly {
		q = q.Where("status = ?", string(model.SessionActive))
	}
	if f.OwnerID != 0 {
		q = q.Where("user_id = ?", f.OwnerID)
	}
	total, err := q.OrderExpr("start_time DESC, id DESC").Limit(p.Limit).Offset(p.Offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, sessionModelToModel(r))
	}
	return out, total, nil
}
