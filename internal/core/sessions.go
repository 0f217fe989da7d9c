// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
)

// OpenSession starts an Active session for p on deviceID. The user and
// device are re-read so deactivation takes effect immediately.
func (s *Service) OpenSession(ctx context.Context, p Principal, deviceID int64, info model.ClientInfo) (*model.Session, error) {
	user, err := s.store.GetUser(ctx, p.User.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "load user %d", p.User.ID)
	}
	if user == nil || !user.IsActive {
		return nil, apperr.New(apperr.ErrNotFound, "user %d", p.User.ID)
	}
	current, err := NewPrincipal(*user)
	if err != nil {
		return nil, err
	}

	dev, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "load device %d", deviceID)
	}
	if dev == nil || !dev.IsActive {
		return nil, apperr.New(apperr.ErrNotFound, "device %d", deviceID)
	}

	ok, err := s.resolver.DevicePermitted(ctx, current, *dev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.ErrPermission, "%s has no access to device %s", current, dev.Name)
	}

	sess := &model.Session{
		UserID:    user.ID,
		DeviceID:  dev.ID,
		Status:    model.SessionActive,
		StartTime: s.now(),
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "create session")
	}
	logging.With("session_id", sess.ID, "user", user.Username, "device", dev.Name).Info("session opened")
	return sess, nil
}

// CloseSession moves an Active session to the requested terminal status.
// The transition is a compare-and-set in the store: a second closer gets
// ErrConflict and the first closure stays intact.
func (s *Service) CloseSession(ctx context.Context, closer Principal, sessionID int64, status model.SessionStatus) (*model.Session, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !closer.CanActOn(sess.UserID) {
		return nil, apperr.New(apperr.ErrPermission, "%s may not close session %d", closer, sessionID)
	}
	if !status.IsTerminal() {
		return nil, apperr.New(apperr.ErrValidation, "status %q is not a terminal status", status)
	}
	if sess.Status.IsTerminal() {
		return nil, apperr.New(apperr.ErrConflict, "session %d is already %s", sessionID, sess.Status)
	}

	var terminatedBy int64
	if status == model.SessionTerminated {
		terminatedBy = closer.User.ID
	}
	closed, err := s.store.CloseSession(ctx, sessionID, status, s.now(), terminatedBy)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "close session %d", sessionID)
	}
	if !closed {
		return nil, apperr.New(apperr.ErrConflict, "session %d was closed concurrently", sessionID)
	}
	logging.With("session_id", sessionID, "status", status, "closer", closer.User.Username).Info("session closed")
	return s.loadSession(ctx, sessionID)
}

// ListSessions returns sessions newest first with the total match count.
// Restricted principals only ever see their own sessions.
func (s *Service) ListSessions(ctx context.Context, p Principal, f model.SessionFilter, page model.Page) ([]model.Session, int, error) {
	if !p.Unrestricted() {
		f.OwnerID = p.User.ID
	}
	out, total, err := s.store.ListSessions(ctx, f, s.page(page))
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.ErrInternal, err, "list sessions")
	}
	return out, total, nil
}

// GetSession returns one session under the same visibility rule as
// ListSessions.
func (s *Service) GetSession(ctx context.Context, p Principal, sessionID int64) (*model.Session, error) {
	sess, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !p.CanActOn(sess.UserID) {
		return nil, apperr.New(apperr.ErrPermission, "%s may not view session %d", p, sessionID)
	}
	return sess, nil
}
