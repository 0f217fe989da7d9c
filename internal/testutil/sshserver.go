// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil provides an in-process SSH+SFTP server and other helpers
// shared by tests. Nothing here is used outside _test.go files.
package testutil

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatekeeper/internal/model"
	"github.com/toeirei/gatekeeper/internal/security"
)

// ExecFunc emulates a remote shell. done is closed when the client signals
// or closes the session.
type ExecFunc func(cmd string, done <-chan struct{}) (stdout, stderr string, exit int)

// SSHServer is a loopback SSH server accepting password or public-key auth,
// emulating exec requests through Exec and serving SFTP from the local
// filesystem.
type SSHServer struct {
	Addr     string
	Host     string
	Port     int
	User     string
	Password string
	// AuthorizedKey, when set, is accepted for public-key auth.
	AuthorizedKey ssh.PublicKey
	HostKey       ssh.PublicKey
	Exec          ExecFunc

	listener net.Listener
	mu       sync.Mutex
	executed []string
	conns    int
}

// NewSSHServer starts a server on 127.0.0.1 for the lifetime of t.
func NewSSHServer(t *testing.T) *SSHServer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	s := &SSHServer{
		Addr:     l.Addr().String(),
		Host:     addr.IP.String(),
		Port:     addr.Port,
		User:     "ops",
		Password: "s3cret",
		HostKey:  signer.PublicKey(),
		Exec:     ShellEmulator,
		listener: l,
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == s.User && string(pass) == s.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			s.mu.Lock()
			ak := s.AuthorizedKey
			s.mu.Unlock()
			if ak != nil && c.User() == s.User && bytes.Equal(key.Marshal(), ak.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("key rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	go s.serve(cfg)
	t.Cleanup(func() { _ = l.Close() })
	return s
}

// Executed returns every command received so far, in arrival order.
func (s *SSHServer) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Connections returns the number of completed SSH handshakes.
func (s *SSHServer) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Device returns a password-authenticated device pointing at the server.
func (s *SSHServer) Device(name string) model.Device {
	return model.Device{
		Name:       name,
		Host:       s.Host,
		Port:       s.Port,
		Username:   s.User,
		AuthMethod: model.AuthPassword,
		Password:   security.Secret(s.Password),
		IsActive:   true,
	}
}

// SetAuthorizedKey replaces the accepted client key.
func (s *SSHServer) SetAuthorizedKey(k ssh.PublicKey) {
	s.mu.Lock()
	s.AuthorizedKey = k
	s.mu.Unlock()
}

func (s *SSHServer) serve(cfg *ssh.ServerConfig) {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nc, cfg)
	}
}

func (s *SSHServer) handleConn(nc net.Conn, cfg *ssh.ServerConfig) {
	sc, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() { _ = sc.Close() }()
	go ssh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(ssh.UnknownChannelType, "only session channels")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, chReqs)
	}
}

func (s *SSHServer) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	defer stop()

	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.mu.Lock()
			s.executed = append(s.executed, payload.Command)
			exec := s.Exec
			s.mu.Unlock()
			go func() {
				stdout, stderr, code := exec(payload.Command, done)
				_, _ = ch.Write([]byte(stdout))
				_, _ = ch.Stderr().Write([]byte(stderr))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(code)}))
				_ = ch.Close()
			}()
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			srv, err := sftp.NewServer(ch)
			if err != nil {
				_ = ch.Close()
				continue
			}
			go func() {
				_ = srv.Serve()
				_ = srv.Close()
				_ = ch.Close()
			}()
		case "signal":
			stop()
			if req.WantReply {
				_ = req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

// ShellEmulator understands a handful of commands against the local
// filesystem: echo TEXT > PATH, touch PATH, rm PATH, cat PATH, exit N and
// sleep. Anything else prints "ran: CMD" and succeeds.
func ShellEmulator(cmd string, done <-chan struct{}) (string, string, int) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return "", "", 0
	}
	switch fields[0] {
	case "echo":
		if i := indexOf(fields, ">"); i > 0 && i+1 < len(fields) {
			text := strings.Join(fields[1:i], " ")
			if err := os.WriteFile(fields[i+1], []byte(text+"\n"), 0o644); err != nil {
				return "", err.Error() + "\n", 1
			}
			return "", "", 0
		}
		return strings.Join(fields[1:], " ") + "\n", "", 0
	case "touch":
		if len(fields) < 2 {
			return "", "touch: missing file operand\n", 1
		}
		f, err := os.OpenFile(fields[1], os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "", err.Error() + "\n", 1
		}
		_ = f.Close()
		return "", "", 0
	case "rm":
		if len(fields) < 2 {
			return "", "rm: missing operand\n", 1
		}
		if err := os.Remove(fields[len(fields)-1]); err != nil {
			return "", err.Error() + "\n", 1
		}
		return "", "", 0
	case "cat":
		if len(fields) < 2 {
			return "", "", 0
		}
		b, err := os.ReadFile(fields[1])
		if err != nil {
			return "", err.Error() + "\n", 1
		}
		return string(b), "", 0
	case "exit":
		code := 0
		if len(fields) > 1 {
			code, _ = strconv.Atoi(fields[1])
		}
		return "", "exiting\n", code
	case "sleep":
		select {
		case <-done:
			return "", "terminated\n", 143
		case <-time.After(30 * time.Second):
			return "", "", 0
		}
	}
	return "ran: " + cmd + "\n", "", 0
}

func indexOf(fields []string, s string) int {
	for i, f := range fields {
		if f == s {
			return i
		}
	}
	return -1
}
