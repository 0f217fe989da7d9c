// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/toeirei/gatekeeper/internal/apperr"
)

// ExecStatus is the outcome of one remote command.
type ExecStatus string

const (
	ExecSuccess ExecStatus = "success"
	ExecFailed  ExecStatus = "failed"
)

// StatusForExit maps a remote exit status to an ExecStatus.
func StatusForExit(code int) ExecStatus {
	if code == 0 {
		return ExecSuccess
	}
	return ExecFailed
}

// CommandLogEntry is the immutable record of one execution attempt.
type CommandLogEntry struct {
	ID          int64
	SessionID   int64
	UserID      int64
	DeviceID    int64
	ExecutionID string
	CommandText string
	Output      string
	// OutputEscaped is set when Output went through EscapeAuditText.
	OutputEscaped bool
	Status        ExecStatus
	ExitCode      int
	ExecutedAt    time.Time
	DurationMs    int64
	PrevHash      string
	EntryHash     string
}

// EditKind classifies a file edit.
type EditKind string

const (
	EditCreate EditKind = "create"
	EditModify EditKind = "modify"
	EditDelete EditKind = "delete"
)

// ParseEditKind validates s as an edit kind. An empty string means modify.
func ParseEditKind(s string) (EditKind, error) {
	switch k := EditKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return EditModify, nil
	case EditCreate, EditModify, EditDelete:
		return k, nil
	}
	return "", apperr.New(apperr.ErrValidation, "invalid edit type %q", s)
}

// FileEditLogEntry is the immutable record of a classified file edit.
// ContentBefore and ContentAfter are nil when the best-effort read failed.
type FileEditLogEntry struct {
	ID            int64
	SessionID     int64
	UserID        int64
	DeviceID      int64
	CommandLogID  int64
	FilePath      string
	EditKind      EditKind
	ContentBefore *string
	ContentAfter  *string
	Diff          string
	// ContentEscaped is set when any of ContentBefore, ContentAfter or Diff
	// went through EscapeAuditText.
	ContentEscaped bool
	EditStartedAt  time.Time
	EditFinishedAt time.Time
}

// EscapeAuditText returns s in a form every supported database stores
// byte for byte. Valid UTF-8 without NUL bytes is returned unchanged.
// Otherwise backslashes are doubled, NUL and invalid bytes are written as
// \xHH, and escaped is true.
func EscapeAuditText(s string) (out string, escaped bool) {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s, false
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&b, `\x%02x`, s[i])
		case r == 0:
			b.WriteString(`\x00`)
		case r == '\\':
			b.WriteString(`\\`)
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String(), true
}

// UnescapeAuditText reverses EscapeAuditText for text recorded with the
// escaped flag set.
func UnescapeAuditText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch {
		case s[i+1] == '\\':
			b.WriteByte('\\')
			i++
		case s[i+1] == 'x' && i+3 < len(s):
			if v, err := strconv.ParseUint(s[i+2:i+4], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// AuditFilter narrows audit queries. Zero fields are ignored.
type AuditFilter struct {
	DeviceID  int64
	UserID    int64
	SessionID int64
}

// ExecutionResult separates what happened on the device from whether the
// audit trail could be written. Output is exactly what the device returned;
// Entry holds the recorded form.
type ExecutionResult struct {
	Entry            CommandLogEntry
	Output           string
	FileEdit         *FileEditLogEntry
	ExecutionOutcome ExecStatus
	AuditPersisted   bool
	AuditError       error
}

// WriteAck acknowledges a completed file write.
type WriteAck struct {
	Path           string
	Kind           EditKind
	AuditPersisted bool
	AuditError     error
}

// AccessGrant describes one user's access to a device through a profile
// assignment, used for point-in-time access reviews.
type AccessGrant struct {
	UserID       int64
	ProfileID    int64
	AssignmentID int64
	AssignedAt   time.Time
	RevokedAt    *time.Time
}
