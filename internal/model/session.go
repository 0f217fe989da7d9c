// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/gatekeeper/internal/apperr"
)

// AssignmentState is the lifecycle of a profile assignment.
type AssignmentState string

const (
	AssignmentActive  AssignmentState = "active"
	AssignmentRevoked AssignmentState = "revoked"
)

// ProfileAssignment links a user to a profile. Only active assignments
// confer access.
type ProfileAssignment struct {
	ID         int64
	UserID     int64
	ProfileID  int64
	AssignedBy int64
	AssignedAt time.Time
	State      AssignmentState
	RevokedAt  *time.Time
	RevokedBy  int64
}

// Active reports whether the assignment currently grants access.
func (a ProfileAssignment) Active() bool {
	return a.State == AssignmentActive && a.RevokedAt == nil
}

// ActiveAt reports whether the assignment granted access at instant t.
func (a ProfileAssignment) ActiveAt(t time.Time) bool {
	if a.AssignedAt.After(t) {
		return false
	}
	if a.RevokedAt != nil && !a.RevokedAt.After(t) {
		return false
	}
	return true
}

// SessionStatus is the state of a session. Active is the only non-terminal
// state; terminal states are final.
type SessionStatus string

const (
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionTerminated SessionStatus = "terminated"
	SessionFailed     SessionStatus = "failed"
)

// IsTerminal reports whether s is one of the closing states.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionTerminated, SessionFailed:
		return true
	}
	return false
}

// ParseSessionStatus validates s as any known status.
func ParseSessionStatus(s string) (SessionStatus, error) {
	st := SessionStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == SessionActive || st.IsTerminal() {
		return st, nil
	}
	return "", apperr.New(apperr.ErrValidation, "unknown session status %q", s)
}

// Session is a bounded authorization window for one user on one device.
type Session struct {
	ID           int64
	UserID       int64
	DeviceID     int64
	Status       SessionStatus
	StartTime    time.Time
	EndTime      *time.Time
	TerminatedBy int64
	IPAddress    string
	UserAgent    string
}

// Duration returns the elapsed time of a closed session, or zero while active.
func (s Session) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s Session) String() string {
	return fmt.Sprintf("session %d (user %d, device %d, %s)", s.ID, s.UserID, s.DeviceID, s.Status)
}

// ClientInfo is requester metadata recorded on a session for audit.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// SessionFilter narrows a session listing.
type SessionFilter struct {
	ActiveOnly bool
	// OwnerID is 0 for "any owner".
	OwnerID int64
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
