// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
)

// exitUnknown is recorded when a command started but its exit status was
// never observed.
const exitUnknown = -1

// authorizeSession checks that the session exists, is active and that p
// may act on it.
func (s *Service) authorizeSession(ctx context.Context, p Principal, sessionID int64) (*model.Session, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionActive {
		return nil, apperr.New(apperr.ErrConflict, "session %d is %s", sessionID, sess.Status)
	}
	if !p.CanActOn(sess.UserID) {
		return nil, apperr.New(apperr.ErrPermission, "%s does not own session %d", p, sessionID)
	}
	return sess, nil
}

// lockSession takes the per-session lock and re-checks that the session is
// still active, since it may have been closed while we waited. If ctx ends
// while another operation holds the lock, the error is ErrConflict wrapping
// the context error; no device has been contacted at that point.
func (s *Service) lockSession(ctx context.Context, sessionID int64) (func(), error) {
	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConflict, err, "session %d is busy", sessionID)
	}
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		release()
		return nil, err
	}
	if sess.Status != model.SessionActive {
		release()
		return nil, apperr.New(apperr.ErrConflict, "session %d is %s", sessionID, sess.Status)
	}
	return release, nil
}

// connect dials the session's device. The caller closes the connection.
func (s *Service) connect(ctx context.Context, sess *model.Session) (RemoteConn, *model.Device, error) {
	if s.dialer == nil {
		return nil, nil, apperr.New(apperr.ErrInternal, "no transport configured")
	}
	dev, err := s.store.GetDevice(ctx, sess.DeviceID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrInternal, err, "load device %d", sess.DeviceID)
	}
	if dev == nil || !dev.IsActive {
		return nil, nil, apperr.New(apperr.ErrNotFound, "device %d", sess.DeviceID)
	}
	conn, err := s.dialer.Dial(ctx, *dev)
	if err != nil {
		return nil, nil, err
	}
	return conn, dev, nil
}

func closeConn(conn RemoteConn, sessionID int64) {
	if err := conn.Close(); err != nil {
		logging.Debugf("session %d: closing connection: %v", sessionID, err)
	}
}

func readBestEffort(ctx context.Context, conn RemoteConn, path string) *string {
	content, err := conn.ReadFile(ctx, path)
	if err != nil {
		logging.Debugf("best-effort read of %s failed: %v", path, err)
		return nil
	}
	return &content
}

// ExecuteCommand runs raw once on the session's device and records it.
//
// Preconditions are checked in order (active session, ownership, non-empty
// text, allow-list) and any failure returns before a connection is made.
// Authentication and transport failures are never retried.
//
// Once the remote side has accepted the command a CommandLogEntry is
// written no matter what follows. If the command's completion could not be
// observed (timeout, cancellation, dropped connection) the entry records
// status failed with exit code -1, and both the result and an ErrTransport
// error are returned. Persistence failures never change the reported
// outcome: they show up as AuditPersisted=false with AuditError set.
// Waiting for another operation on the same session ends with ErrConflict
// when ctx is done first.
//
// Result.Output is the device's output byte for byte. Entry.Output is the
// recorded form, escaped when the raw bytes are not storable text.
func (s *Service) ExecuteCommand(ctx context.Context, p Principal, sessionID int64, raw string) (*model.ExecutionResult, error) {
	sess, err := s.authorizeSession(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, apperr.New(apperr.ErrValidation, "command text is empty")
	}
	ok, err := s.resolver.CommandPermitted(ctx, p, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.ErrPermission, "%s may not run %q", p, text)
	}

	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	edit, isEdit := Classify(text)

	conn, dev, err := s.connect(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, sessionID)

	var before *string
	if isEdit {
		before = readBestEffort(ctx, conn, edit.Path)
	}

	log := logging.With("session_id", sessionID, "device", dev.Name, "user", p.User.Username)
	started := s.now()
	res, runErr := conn.Run(ctx, text)
	if !res.Started {
		// Nothing ran on the device, so there is nothing to record.
		return nil, runErr
	}
	finished := s.now()

	exitCode := res.ExitCode
	if runErr != nil {
		exitCode = exitUnknown
	}
	status := model.StatusForExit(exitCode)

	var after *string
	if isEdit && runErr == nil && status == model.ExecSuccess {
		after = readBestEffort(ctx, conn, edit.Path)
	}

	duration := res.Duration
	if duration == 0 {
		duration = finished.Sub(started)
	}
	result := &model.ExecutionResult{
		Entry: model.CommandLogEntry{
			SessionID:   sessionID,
			UserID:      p.User.ID,
			DeviceID:    dev.ID,
			ExecutionID: uuid.NewString(),
			CommandText: text,
			Output:      res.Output,
			Status:      status,
			ExitCode:    exitCode,
			ExecutedAt:  started,
			DurationMs:  duration.Milliseconds(),
		},
		Output:           res.Output,
		ExecutionOutcome: status,
		AuditPersisted:   true,
	}

	// Audit writes outlive caller cancellation; the command already ran.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.store.AppendCommandLog(persistCtx, &result.Entry); err != nil {
		result.AuditPersisted = false
		result.AuditError = apperr.Wrap(apperr.ErrInternal, err, "persist command log for session %d", sessionID)
		log.Error("command log not persisted", "execution_id", result.Entry.ExecutionID, "err", err)
	}

	if isEdit && runErr == nil && status == model.ExecSuccess {
		fe := &model.FileEditLogEntry{
			SessionID:      sessionID,
			UserID:         p.User.ID,
			DeviceID:       dev.ID,
			CommandLogID:   result.Entry.ID,
			FilePath:       edit.Path,
			EditKind:       edit.Kind,
			ContentBefore:  before,
			ContentAfter:   after,
			Diff:           unifiedDiff(edit.Path, before, after),
			EditStartedAt:  started,
			EditFinishedAt: finished,
		}
		if err := s.store.AppendFileEdit(persistCtx, fe); err != nil {
			result.AuditPersisted = false
			result.AuditError = errors.Join(result.AuditError,
				apperr.Wrap(apperr.ErrInternal, err, "persist file edit for session %d", sessionID))
			log.Error("file edit log not persisted", "path", edit.Path, "err", err)
		} else {
			result.FileEdit = fe
		}
	}

	log.Info("command executed", "execution_id", result.Entry.ExecutionID, "status", status, "exit_code", exitCode)
	return result, runErr
}

func (s *Service) authorizeFileOp(ctx context.Context, p Principal, sessionID int64, path string) (*model.Session, error) {
	sess, err := s.authorizeSession(ctx, p, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, apperr.New(apperr.ErrValidation, "file path is empty")
	}
	if s.opts.FilesElevatedOnly && !p.Unrestricted() {
		return nil, apperr.New(apperr.ErrPermission, "%s may not access files directly", p)
	}
	return sess, nil
}

// ReadFile returns the content of path on the session's device.
func (s *Service) ReadFile(ctx context.Context, p Principal, sessionID int64, path string) (string, error) {
	sess, err := s.authorizeFileOp(ctx, p, sessionID, path)
	if err != nil {
		return "", err
	}
	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer release()

	conn, _, err := s.connect(ctx, sess)
	if err != nil {
		return "", err
	}
	defer closeConn(conn, sessionID)
	return conn.ReadFile(ctx, path)
}

// WriteFile creates, replaces or deletes path on the session's device and
// records a FileEditLogEntry with best-effort before and after content.
func (s *Service) WriteFile(ctx context.Context, p Principal, sessionID int64, path, content string, kind model.EditKind) (*model.WriteAck, error) {
	sess, err := s.authorizeFileOp(ctx, p, sessionID, path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case model.EditCreate, model.EditModify, model.EditDelete:
	default:
		return nil, apperr.New(apperr.ErrValidation, "invalid edit type %q", kind)
	}

	release, err := s.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	conn, dev, err := s.connect(ctx, sess)
	if err != nil {
		return nil, err
	}
	defer closeConn(conn, sessionID)

	started := s.now()
	before := readBestEffort(ctx, conn, path)
	if kind == model.EditDelete {
		err = conn.Remove(ctx, path)
	} else {
		err = conn.WriteFile(ctx, path, content)
	}
	if err != nil {
		return nil, err
	}
	var after *string
	if kind != model.EditDelete {
		after = readBestEffort(ctx, conn, path)
	}
	finished := s.now()

	ack := &model.WriteAck{Path: path, Kind: kind, AuditPersisted: true}
	fe := &model.FileEditLogEntry{
		SessionID:      sessionID,
		UserID:         p.User.ID,
		DeviceID:       dev.ID,
		FilePath:       path,
		EditKind:       kind,
		ContentBefore:  before,
		ContentAfter:   after,
		Diff:           unifiedDiff(path, before, after),
		EditStartedAt:  started,
		EditFinishedAt: finished,
	}
	if err := s.store.AppendFileEdit(context.WithoutCancel(ctx), fe); err != nil {
		ack.AuditPersisted = false
		ack.AuditError = apperr.Wrap(apperr.ErrInternal, err, "persist file edit for session %d", sessionID)
		logging.With("session_id", sessionID, "path", path).Error("file edit log not persisted", "err", err)
	}
	return ack, nil
}
