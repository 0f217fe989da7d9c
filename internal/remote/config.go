// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

package remote

import (
	"fmt"
	"strings"
	"time"
)

// HostKeyPolicy selects how presented host keys are verified.
type HostKeyPolicy string

const (
	// HostKeyTOFU trusts the first key seen for a host and rejects any
	// later key that differs. Keys live in the store's known_hosts table.
	HostKeyTOFU HostKeyPolicy = "tofu"
	// HostKeyKnownHosts verifies against an OpenSSH known_hosts file.
	HostKeyKnownHosts HostKeyPolicy = "known_hosts"
	// HostKeyInsecure accepts any key.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// ParseHostKeyPolicy accepts the policy names used in configuration.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HostKeyTOFU, nil
	case HostKeyTOFU, HostKeyKnownHosts, HostKeyInsecure:
		return p, nil
	}
	return "", fmt.Errorf("unknown host key policy %q", s)
}

// Config holds connection settings for the SSH transport.
type Config struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	HostKeyPolicy  HostKeyPolicy
	// KnownHostsFile is read when HostKeyPolicy is known_hosts. Empty means
	// ~/.ssh/known_hosts.
	KnownHostsFile string
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 5 * time.Minute,
		HostKeyPolicy:  HostKeyTOFU,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.HostKeyPolicy == "" {
		c.HostKeyPolicy = d.HostKeyPolicy
	}
	return c
}
