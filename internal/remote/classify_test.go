// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/testutil"
)

// Dial errors are classified from whatever the transport returns.
func TestDial_ErrorClassification(t *testing.T) {
	origDial := sshDial
	defer func() { sshDial = origDial }()

	cases := []struct {
		name    string
		dialErr error
		kind    error
		msg     string
	}{
		{"timeout", fmt.Errorf("dial tcp: i/o timeout"), apperr.ErrTransport, "timed out"},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), apperr.ErrTransport, "timed out"},
		{"auth", fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), apperr.ErrAuthentication, "authentication failed"},
		{"permission", fmt.Errorf("permission denied"), apperr.ErrAuthentication, "authentication failed"},
		{"hostkey", &HostKeyError{Host: "example.com", Presented: "ssh-ed25519 AAAA"}, apperr.ErrTransport, "host key verification failed"},
		{"cancelled", context.Canceled, apperr.ErrTransport, "cancelled"},
		{"refused", fmt.Errorf("dial tcp 10.0.0.1:22: connect: connection refused"), apperr.ErrTransport, "connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sshDial = func(context.Context, string, string, *ssh.ClientConfig) (*ssh.Client, error) {
				return nil, tc.dialErr
			}
			dev := testutil.NewSSHServer(t).Device("d1")
			_, err := insecureDialer().Dial(t.Context(), dev)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected kind %v, got %v", tc.kind, err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected %q in %v", tc.msg, err)
			}
			if !errors.Is(err, tc.dialErr) {
				t.Fatalf("cause must be preserved: %v", err)
			}
		})
	}
}

func TestSftpCreationFails(t *testing.T) {
	orig := newSftpClient
	defer func() { newSftpClient = orig }()
	newSftpClient = func(*ssh.Client) (*sftp.Client, error) { return nil, fmt.Errorf("sftp init failed") }

	srv := testutil.NewSSHServer(t)
	conn := dialServer(t, insecureDialer(), srv.Device("d1"))
	_, err := conn.ReadFile(t.Context(), "/etc/hostname")
	if !errors.Is(err, apperr.ErrTransport) || !strings.Contains(err.Error(), "failed to create sftp client") {
		t.Fatalf("expected sftp creation error, got %v", err)
	}
}

func TestParseHostKeyPolicy(t *testing.T) {
	for in, want := range map[string]HostKeyPolicy{
		"":            HostKeyTOFU,
		"TOFU":        HostKeyTOFU,
		"known_hosts": HostKeyKnownHosts,
		" insecure ":  HostKeyInsecure,
	} {
		got, err := ParseHostKeyPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseHostKeyPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseHostKeyPolicy("yolo"); err == nil {
		t.Errorf("expected error for unknown policy")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := NewDialer(Config{}, nil).Config()
	if c.ConnectTimeout != DefaultConfig().ConnectTimeout || c.CommandTimeout != DefaultConfig().CommandTimeout {
		t.Fatalf("timeouts must default to finite values: %+v", c)
	}
	if c.HostKeyPolicy != HostKeyTOFU {
		t.Fatalf("policy default = %q", c.HostKeyPolicy)
	}
}
