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

	"github.com/toeirei/gatekeeper/internal/auditchain"
	"github.com/toeirei/gatekeeper/internal/model"
)

// CommandLogModel maps the command_logs table.
type CommandLogModel struct {
	bun.BaseModel `bun:"table:command_logs,alias:cmdlog"`
	ID            int64     `bun:"id,pk,autoincrement"`
	SessionID     int64     `bun:"session_id"`
	UserID        int64     `bun:"user_id"`
	DeviceID      int64     `bun:"device_id"`
	ExecutionID   string    `bun:"execution_id"`
	CommandText   string    `bun:"command_text"`
	Output        string    `bun:"output"`
	OutputEscaped bool      `bun:"output_escaped"`
	Status        string    `bun:"status"`
	ExitCode      int       `bun:"exit_code"`
	ExecutedAt    time.Time `bun:"executed_at"`
	DurationMs    int64     `bun:"duration_ms"`
	PrevHash      string    `bun:"prev_hash"`
	EntryHash     string    `bun:"entry_hash"`
}

// FileEditLogModel maps the file_edit_logs table.
type FileEditLogModel struct {
	bun.BaseModel  `bun:"table:file_edit_logs,alias:fel"`
	ID             int64          `bun:"id,pk,autoincrement"`
	SessionID      int64          `bun:"session_id"`
	UserID         int64          `bun:"user_id"`
	DeviceID       int64          `bun:"device_id"`
	CommandLogID   sql.NullInt64  `bun:"command_log_id"`
	FilePath       string         `bun:"file_path"`
	EditKind       string         `bun:"edit_kind"`
	ContentBefore  sql.NullString `bun:"content_before"`
	ContentAfter   sql.NullString `bun:"content_after"`
	Diff           string         `bun:"diff"`
	ContentEscaped bool           `bun:"content_escaped"`
	EditStartedAt  time.Time      `bun:"edit_started_at"`
	EditFinishedAt time.Time      `bun:"edit_finished_at"`
}

func commandLogModelToModel(m CommandLogModel) model.CommandLogEntry {
	return model.CommandLogEntry{
		ID:            m.ID,
		SessionID:     m.SessionID,
		UserID:        m.UserID,
		DeviceID:      m.DeviceID,
		ExecutionID:   m.ExecutionID,
		CommandText:   m.CommandText,
		Output:        m.Output,
		OutputEscaped: m.OutputEscaped,
		Status:        model.ExecStatus(m.Status),
		ExitCode:      m.ExitCode,
		ExecutedAt:    m.ExecutedAt,
		DurationMs:    m.DurationMs,
		PrevHash:      m.PrevHash,
		EntryHash:     m.EntryHash,
	}
}

func optString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fileEditModelToModel(m FileEditLogModel) model.FileEditLogEntry {
	return model.FileEditLogEntry{
		ID:             m.ID,
		SessionID:      m.SessionID,
		UserID:         m.UserID,
		DeviceID:       m.DeviceID,
		CommandLogID:   m.CommandLogID.Int64,
		FilePath:       m.FilePath,
		EditKind:       model.EditKind(m.EditKind),
		ContentBefore:  optString(m.ContentBefore),
		ContentAfter:   optString(m.ContentAfter),
		Diff:           m.Diff,
		ContentEscaped: m.ContentEscaped,
		EditStartedAt:  m.EditStartedAt,
		EditFinishedAt: m.EditFinishedAt,
	}
}

// chainAppendAttempts bounds retries when another writer extends the same
// session chain between our head read and insert.
const chainAppendAttempts = 5

// AppendCommandLogBun inserts e as the newest link of its session's hash
// chain. ID, PrevHash and EntryHash are set on e. Output that a database
// could not store byte for byte is escaped first, so the stored, hashed
// and returned forms agree. The unique (session_id, prev_hash) index stops
// concurrent writers from forking a chain; the loser re-reads the head.
func AppendCommandLogBun(ctx context.Context, bdb bun.IDB, e *model.CommandLogEntry) error {
	// Stored timestamps keep microseconds; hash what will be read back.
	e.ExecutedAt = e.ExecutedAt.UTC().Truncate(time.Microsecond)
	if out, escaped := model.EscapeAuditText(e.Output); escaped {
		e.Output = out
		e.OutputEscaped = true
	}

	var err error
	for attempt := 1; attempt <= chainAppendAttempts; attempt++ {
		err = appendChainLink(ctx, bdb, e)
		if !errors.Is(err, ErrDuplicate) {
			return err
		}
		dbLogf("session %d: chain head moved, retrying append (attempt %d)", e.SessionID, attempt)
	}
	return fmt.Errorf("append to chain of session %d: %w", e.SessionID, err)
}

func appendChainLink(ctx context.Context, bdb bun.IDB, e *model.CommandLogEntry) error {
	return bdb.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var last []CommandLogModel
		if err := tx.NewSelect().Model(&last).Column("entry_hash").
			Where("session_id = ?", e.SessionID).
			OrderExpr("id DESC").Limit(1).
			Scan(ctx); err != nil {
			return fmt.Errorf("read chain head: %w", err)
		}
		prev := auditchain.Genesis
		if len(last) == 1 {
			prev = last[0].EntryHash
		}
		if err := auditchain.Link(prev, e); err != nil {
			return err
		}
		m := CommandLogModel{
			SessionID:     e.SessionID,
			UserID:        e.UserID,
			DeviceID:      e.DeviceID,
			ExecutionID:   e.ExecutionID,
			CommandText:   e.CommandText,
			Output:        e.Output,
			OutputEscaped: e.OutputEscaped,
			Status:        string(e.Status),
			ExitCode:      e.ExitCode,
			ExecutedAt:    e.ExecutedAt,
			DurationMs:    e.DurationMs,
			PrevHash:      e.PrevHash,
			EntryHash:     e.EntryHash,
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		e.ID = m.ID
		return nil
	})
}

// escapeContent escapes *p in place and reports whether it changed.
func escapeContent(p *string) bool {
	if p == nil {
		return false
	}
	out, escaped := model.EscapeAuditText(*p)
	*p = out
	return escaped
}

// AppendFileEditBun inserts e and sets its ID.
func AppendFileEditBun(ctx context.Context, bdb bun.IDB, e *model.FileEditLogEntry) error {
	e.EditStartedAt = e.EditStartedAt.UTC().Truncate(time.Microsecond)
	e.EditFinishedAt = e.EditFinishedAt.UTC().Truncate(time.Microsecond)
	for _, p := range []*string{e.ContentBefore, e.ContentAfter, &e.Diff} {
		if escapeContent(p) {
			e.ContentEscaped = true
		}
	}
	m := FileEditLogModel{
		SessionID:      e.SessionID,
		UserID:         e.UserID,
		DeviceID:       e.DeviceID,
		CommandLogID:   nullID(e.CommandLogID),
		FilePath:       e.FilePath,
		EditKind:       string(e.EditKind),
		ContentBefore:  nullString(e.ContentBefore),
		ContentAfter:   nullString(e.ContentAfter),
		Diff:           e.Diff,
		ContentEscaped: e.ContentEscaped,
		EditStartedAt:  e.EditStartedAt,
		EditFinishedAt: e.EditFinishedAt,
	}
	if _, err := bdb.NewInsert().Model(&m).Exec(ctx); err != nil {
		return MapDBError(err)
	}
	e.ID = m.ID
	return nil
}

func applyAuditFilter(q *bun.SelectQuery, f model.AuditFilter) *bun.SelectQuery {
	if f.SessionID != 0 {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.DeviceID != 0 {
		q = q.Where("device_id = ?", f.DeviceID)
	}
	return q
}

// ListCommandLogsBun returns one page of command log entries, most recent
// first, and the total matching f.
func ListCommandLogsBun(ctx context.Context, bdb bun.IDB, f model.AuditFilter, p model.Page) ([]model.CommandLogEntry, int, error) {
	var rows []CommandLogModel
	q := applyAuditFilter(bdb.NewSelect().Model(&rows), f)
	total, err := q.OrderExpr("executed_at DESC, id DESC").Limit(p.Limit).Offset(p.Offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.CommandLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, commandLogModelToModel(r))
	}
	return out, total, nil
}

// ListFileEditsBun returns one page of file edit entries, most recent
// first, and the total matching f.
func ListFileEditsBun(ctx context.Context, bdb bun.IDB, f model.AuditFilter, p model.Page) ([]model.FileEditLogEntry, int, error) {
	var rows []FileEditLogModel
	q := applyAuditFilter(bdb.NewSelect().Model(&rows), f)
	total, err := q.OrderExpr("edit_started_at DESC, id DESC").Limit(p.Limit).Offset(p.Offset).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	out := make([]model.FileEditLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, fileEditModelToModel(r))
	}
	return out, total, nil
}

// CommandLogsForSessionBun returns a session's full log in insertion order.
func CommandLogsForSessionBun(ctx context.Context, bdb bun.IDB, sessionID int64) ([]model.CommandLogEntry, error) {
	var rows []CommandLogModel
	if err := bdb.NewSelect().Model(&rows).Where("session_id = ?", sessionID).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.CommandLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, commandLogModelToModel(r))
	}
	return out, nil
}

// GetCommandLogBun returns one entry by id, or nil when absent.
func GetCommandLogBun(ctx context.Context, bdb bun.IDB, id int64) (*model.CommandLogEntry, error) {
	var m CommandLogModel
	err := bdb.NewSelect().Model(&m).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e := commandLogModelToModel(m)
	return &e, nil
}
