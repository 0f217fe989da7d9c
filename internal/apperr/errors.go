// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package apperr defines the error taxonomy shared by the session,
// policy and execution layers. Every error returned across a package
// boundary carries exactly one kind, testable with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrPermission     = errors.New("permission denied")
	ErrAuthentication = errors.New("authentication failed")
	ErrTransport      = errors.New("transport error")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal error")
)

// ErrInvalidRole is returned when a principal carries a role outside the
// known set. It is a validation error.
var ErrInvalidRole = fmt.Errorf("%w: invalid role", ErrValidation)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrPermission,
	ErrAuthentication,
	ErrTransport,
	ErrConflict,
	ErrInternal,
}

// Error is a classified error with an optional underlying cause.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Cause == nil:
		return e.Kind.Error()
	case e.Cause == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// New returns an error of the given kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(kind error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// KindOf returns the taxonomy kind of err, or ErrInternal for errors that
// were never classified. It returns nil for a nil error.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
