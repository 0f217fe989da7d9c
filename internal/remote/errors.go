// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/toeirei/gatekeeper/internal/apperr"
)

var authFailureMarkers = []string{
	"unable to authenticate",
	"permission denied",
	"no supported methods remain",
}

// classifyDialError maps a connection failure onto the error taxonomy.
// Credential rejection is ErrAuthentication; everything else, including
// host key problems, is ErrTransport. The cause is kept verbatim.
func classifyDialError(target string, err error) error {
	if err == nil {
		return nil
	}
	var hkErr *HostKeyError
	var khErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	msg := strings.ToLower(err.Error())

	switch {
	case errors.As(err, &hkErr), errors.As(err, &khErr), errors.As(err, &revoked),
		strings.Contains(msg, "host key mismatch"):
		return apperr.Wrap(apperr.ErrTransport, err, "host key verification failed for %s", target)
	case containsAny(msg, authFailureMarkers):
		return apperr.Wrap(apperr.ErrAuthentication, err, "authentication failed for %s", target)
	case isTimeout(err), strings.Contains(msg, "i/o timeout"):
		return apperr.Wrap(apperr.ErrTransport, err, "connection to %s timed out", target)
	case errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.ErrTransport, err, "connection to %s cancelled", target)
	}
	return apperr.Wrap(apperr.ErrTransport, err, "connect to %s", target)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
