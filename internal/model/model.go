// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the plain data types shared by the store, the
// policy/session core and the transport layer.
package model

import (
	"net"
	"strconv"
	"time"

	"github.com/toeirei/gatekeeper/internal/security"
)

// User is an already-authenticated principal as supplied by the identity
// collaborator. Role and IsActive are owned by administrative tooling.
type User struct {
	ID        int64
	Username  string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// AuthMethod selects how the gateway authenticates against a device.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthKey      AuthMethod = "key"
	AuthAgent    AuthMethod = "agent"
)

// Valid reports whether m is a supported authentication method.
func (m AuthMethod) Valid() bool {
	switch m {
	case AuthPassword, AuthKey, AuthAgent:
		return true
	}
	return false
}

// Device is a managed remote host and its connection descriptor.
type Device struct {
	ID         int64
	Name       string
	Host       string
	Port       int
	Username   string
	AuthMethod AuthMethod
	Password   security.Secret
	PrivateKey security.Secret
	Passphrase security.Secret
	// GroupID is 0 when the device belongs to no group.
	GroupID  int64
	IsActive bool
}

// Addr returns host:port, defaulting the port to 22.
func (d Device) Addr() string {
	port := d.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// String returns user@host:port for log lines.
func (d Device) String() string {
	return d.Username + "@" + d.Addr()
}

// DeviceGroup is a named set of devices sharing an access boundary.
type DeviceGroup struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
}

// Command is a canonical permitted command text.
type Command struct {
	ID                   int64
	Text                 string
	Description          string
	IsDangerous          bool
	RequiresConfirmation bool
	// ListID is 0 when the command belongs to no list.
	ListID int64
}

// CommandList is a named set of commands.
type CommandList struct {
	ID          int64
	Name        string
	Description string
	IsActive    bool
}

// Profile binds one device group to one command list.
type Profile struct {
	ID          int64
	Name        string
	Description string
	GroupID     int64
	ListID      int64
	IsActive    bool
}
