// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/auditchain"
	"github.com/toeirei/gatekeeper/internal/model"
)

// ListCommandLogs returns command log entries newest first. A session
// filter requires the caller to own the session or be unrestricted;
// without one, restricted callers only see their own entries.
func (s *Service) ListCommandLogs(ctx context.Context, p Principal, f model.AuditFilter, page model.Page) ([]model.CommandLogEntry, int, error) {
	if f.SessionID != 0 {
		sess, err := s.loadSession(ctx, f.SessionID)
		if err != nil {
			return nil, 0, err
		}
		if !p.CanActOn(sess.UserID) {
			return nil, 0, apperr.New(apperr.ErrPermission, "%s may not view logs of session %d", p, f.SessionID)
		}
	} else if !p.Unrestricted() {
		if f.UserID != 0 && f.UserID != p.User.ID {
			return nil, 0, apperr.New(apperr.ErrPermission, "%s may not view logs of user %d", p, f.UserID)
		}
		f.UserID = p.User.ID
	}
	out, total, err := s.store.ListCommandLogs(ctx, f, s.page(page))
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrInternal, err, "list command logs")
	}
	return out, total, nil
}

// ListFileEdits returns file edit entries newest first. Only supervisors
// may review file edits.
func (s *Service) ListFileEdits(ctx context.Context, p Principal, f model.AuditFilter, page model.Page) ([]model.FileEditLogEntry, int, error) {
	if p.User.Role != model.RoleSupervisor {
		return nil, 0, apperr.New(apperr.ErrPermission, "only supervisors may review file edits")
	}
	out, total, err := s.store.ListFileEdits(ctx, f, s.page(page))
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrInternal, err, "list file edits")
	}
	return out, total, nil
}

// VerifyAuditChain checks the hash chain of a session's command log and
// returns the number of entries verified. A broken chain is reported as an
// internal error wrapping *auditchain.BrokenLinkError.
func (s *Service) VerifyAuditChain(ctx context.Context, p Principal, sessionID int64) (int, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !p.CanActOn(sess.UserID) {
		return 0, apperr.New(apperr.ErrPermission, "%s may not verify session %d", p, sessionID)
	}
	entries, err := s.store.CommandLogsForSession(ctx, sessionID)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrInternal, err, "load command logs for session %d", sessionID)
	}
	if err := auditchain.Verify(entries); err != nil {
		return 0, apperr.Wrap(apperr.ErrInternal, err, "audit chain of session %d", sessionID)
	}
	return len(entries), nil
}
