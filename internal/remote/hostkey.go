// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/db"
)

// HostKeyStore persists trusted host keys for the tofu policy. db.Store
// satisfies it.
type HostKeyStore interface {
	GetKnownHostKey(ctx context.Context, hostname string) (string, error)
	AddKnownHostKey(ctx context.Context, hostname, key string) error
}

// HostKeyError reports a presented key that does not match the trusted one.
type HostKeyError struct {
	Host      string
	Presented string
}

func (e *HostKeyError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: presented %s", e.Host, e.Presented)
}

func authorizedKeyLine(key ssh.PublicKey) string {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
}

// tofuCallback trusts the first key seen for a host. Keys are stored under
// the knownhosts-normalized address so two ports on one host stay distinct.
func tofuCallback(ctx context.Context, store HostKeyStore) ssh.HostKeyCallback {
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		host := knownhosts.Normalize(hostname)
		presented := authorizedKeyLine(key)

		known, err := store.GetKnownHostKey(ctx, host)
		if err != nil {
			return fmt.Errorf("failed to query known hosts: %w", err)
		}
		if known == "" {
			err := store.AddKnownHostKey(ctx, host, presented)
			if errors.Is(err, db.ErrDuplicate) {
				// Lost a race with a concurrent first connection.
				if known, err = store.GetKnownHostKey(ctx, host); err != nil {
					return fmt.Errorf("failed to query known hosts: %w", err)
				}
			} else if err != nil {
				return fmt.Errorf("failed to record host key: %w", err)
			} else {
				known = presented
			}
		}
		if known != presented {
			return &HostKeyError{Host: host, Presented: presented}
		}
		return nil
	}
}

func defaultKnownHostsFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "known_hosts")
}

func (d *Dialer) hostKeyCallback(ctx context.Context) (ssh.HostKeyCallback, error) {
	switch d.cfg.HostKeyPolicy {
	case HostKeyInsecure:
		return ssh.InsecureIgnoreHostKey(), nil
	case HostKeyKnownHosts:
		path := d.cfg.KnownHostsFile
		if path == "" {
			path = defaultKnownHostsFile()
		}
		cb, err := knownhosts.New(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrTransport, err, "load known_hosts %s", path)
		}
		return cb, nil
	default:
		if d.hostKeys == nil {
			return nil, apperr.New(apperr.ErrInternal, "tofu host key policy needs a host key store")
		}
		return tofuCallback(ctx, d.hostKeys), nil
	}
}

var errProbeDone = errors.New("gatekeeper: host key retrieved")

// FetchHostKey runs a handshake against addr only far enough to learn its
// host key.
func FetchHostKey(ctx context.Context, addr string, timeout time.Duration) (ssh.PublicKey, error) {
	var got ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: "gatekeeper-probe",
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			got = key
			return errProbeDone
		},
		Timeout: timeout,
	}
	client, err := sshDial(ctx, "tcp", addr, cfg)
	if err == nil {
		_ = client.Close()
		return nil, apperr.New(apperr.ErrTransport, "handshake with %s succeeded unexpectedly", addr)
	}
	if got != nil && (errors.Is(err, errProbeDone) || strings.Contains(err.Error(), errProbeDone.Error())) {
		return got, nil
	}
	return nil, classifyDialError(addr, err)
}

// TrustHost fetches addr's current key and records it in store, replacing
// nothing: an existing different key is reported as a HostKeyError.
func TrustHost(ctx context.Context, store HostKeyStore, addr string, timeout time.Duration) (string, error) {
	key, err := FetchHostKey(ctx, addr, timeout)
	if err != nil {
		return "", err
	}
	if err := tofuCallback(ctx, store)(addr, nil, key); err != nil {
		return "", classifyDialError(addr, err)
	}
	return authorizedKeyLine(key), nil
}
