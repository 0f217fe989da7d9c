// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package core

import (
	"context"
	"time"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/model"
)

// Options tune the Service. Zero values select the defaults.
type Options struct {
	// FilesElevatedOnly restricts ReadFile and WriteFile to unrestricted
	// principals. When false, file operations follow only the session
	// ownership rules.
	FilesElevatedOnly bool
	DefaultLimit      int
	MaxLimit          int
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// Service is the operation surface: sessions, command execution, file
// operations and audit review.
type Service struct {
	store    Store
	dialer   Dialer
	resolver *Resolver
	locks    *sessionLocks
	opts     Options
}

// New wires a Service. dialer may be nil for callers that never touch a
// device; gateway calls then fail with an internal error.
func New(store Store, dialer Dialer, opts Options) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultPageLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = maxPageLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		dialer:   dialer,
		resolver: NewResolver(store),
		locks:    newSessionLocks(),
		opts:     opts,
	}
}

// Resolver exposes the access policy resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

func (s *Service) now() time.Time { return s.opts.Now().UTC() }

func (s *Service) page(p model.Page) model.Page {
	return p.Normalize(s.opts.DefaultLimit, s.opts.MaxLimit)
}

// Principal resolves a username to a Principal. Inactive users resolve;
// operations that need an active user check it themselves.
func (s *Service) Principal(ctx context.Context, username string) (Principal, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.ErrInternal, err, "load user %q", username)
	}
	if u == nil {
		return Principal{}, apperr.New(apperr.ErrNotFound, "user %q", username)
	}
	return NewPrincipal(*u)
}

// AllowedCommands returns the command set p may run.
func (s *Service) AllowedCommands(ctx context.Context, p Principal) (CommandSet, error) {
	return s.resolver.AllowedCommands(ctx, p)
}

// AccessAt lists the assignment grants covering deviceID at t. Only
// unrestricted principals may ask.
func (s *Service) AccessAt(ctx context.Context, p Principal, deviceID int64, t time.Time) ([]model.AccessGrant, error) {
	if !p.Unrestricted() {
		return nil, apperr.New(apperr.ErrPermission, "%s may not review device access", p)
	}
	return s.resolver.AccessAt(ctx, deviceID, t)
}

// loadSession returns the session or a NotFound error.
func (s *Service) loadSession(ctx context.Context, id int64) (*model.Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, err, "load session %d", id)
	}
	if sess == nil {
		return nil, apperr.New(apperr.ErrNotFound, "session %d", id)
	}
	return sess, nil
}
