// Copyright (c) 2026 Gatekeeper Team
// Gatekeeper - audited remote command sessions
// This source code is licensed under the MIT license found in the LICENSE file.

// Package remote is the SSH/SFTP transport used by the execution gateway.
// A Conn is opened for exactly one gateway call and closed afterwards;
// nothing here pools or retries.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/toeirei/gatekeeper/internal/apperr"
	"github.com/toeirei/gatekeeper/internal/logging"
	"github.com/toeirei/gatekeeper/internal/model"
)

// sshDial is a package-level hook so tests can replace the network dial.
var sshDial = func(ctx context.Context, network, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
	conn, chans, reqs, err := ssh.NewClientConn(nc, addr, cfg)
	stopped := stop()
	if err != nil {
		_ = nc.Close()
		if !stopped && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, err
	}
	_ = nc.SetDeadline(time.Time{})
	return ssh.NewClient(conn, chans, reqs), nil
}

// newSftpClient is a hook so tests can fail SFTP setup.
var newSftpClient = func(c *ssh.Client) (*sftp.Client, error) {
	return sftp.NewClient(c)
}

// interruptGrace bounds how long Run waits for a signalled session to end.
var interruptGrace = 5 * time.Second

// sshAgentGetter is a hook so tests can supply an in-memory keyring.
var sshAgentGetter = getSSHAgent

// Dialer opens authenticated connections to devices.
type Dialer struct {
	cfg      Config
	hostKeys HostKeyStore
}

// NewDialer returns a Dialer. hostKeys may be nil unless the policy is tofu.
func NewDialer(cfg Config, hostKeys HostKeyStore) *Dialer {
	return &Dialer{cfg: cfg.withDefaults(), hostKeys: hostKeys}
}

// Config returns the effective configuration.
func (d *Dialer) Config() Config { return d.cfg }

func (d *Dialer) authMethods(dev model.Device) ([]ssh.AuthMethod, error) {
	switch dev.AuthMethod {
	case model.AuthPassword, "":
		if dev.Password.IsEmpty() {
			return nil, apperr.New(apperr.ErrAuthentication, "device %s has no password configured", dev.Name)
		}
		pw := string(dev.Password.Bytes())
		answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = pw
			}
			return answers, nil
		}
		return []ssh.AuthMethod{ssh.Password(pw), ssh.KeyboardInteractive(answer)}, nil

	case model.AuthKey:
		var signer ssh.Signer
		err := dev.PrivateKey.Use(func(pem []byte) error {
			var perr error
			if dev.Passphrase.IsEmpty() {
				signer, perr = ssh.ParsePrivateKey(pem)
			} else {
				signer, perr = ssh.ParsePrivateKeyWithPassphrase(pem, dev.Passphrase.Bytes())
			}
			return perr
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrAuthentication, err, "unable to parse private key for device %s", dev.Name)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case model.AuthAgent:
		ag := sshAgentGetter()
		if ag == nil {
			return nil, apperr.New(apperr.ErrAuthentication, "no ssh agent available for device %s", dev.Name)
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
	}
	return nil, apperr.New(apperr.ErrValidation, "device %s has unsupported auth method %q", dev.Name, dev.AuthMethod)
}

// Dial connects and authenticates to dev. Authentication rejection is
// returned as apperr.ErrAuthentication, any other failure as
// apperr.ErrTransport.
func (d *Dialer) Dial(ctx context.Context, dev model.Device) (*Conn, error) {
	auth, err := d.authMethods(dev)
	if err != nil {
		return nil, err
	}
	hkcb, err := d.hostKeyCallback(ctx)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            dev.Username,
		Auth:            auth,
		HostKeyCallback: hkcb,
		Timeout:         d.cfg.ConnectTimeout,
	}

	addr := dev.Addr()
	logging.Debugf("remote: dialing %s (auth=%s)", dev, dev.AuthMethod)
	client, err := sshDial(ctx, "tcp", addr, cfg)
	if err != nil {
		return nil, classifyDialError(dev.String(), err)
	}
	return &Conn{client: client, device: dev, commandTimeout: d.cfg.CommandTimeout}, nil
}

// Result is the outcome of one remote command.
type Result struct {
	// Output is combined stdout and stderr, possibly partial.
	Output   string
	ExitCode int
	// Started reports that the remote side accepted the command. When true
	// the command may have had side effects even if an error is returned.
	Started  bool
	Duration time.Duration
}

// Conn is one authenticated SSH connection. It is not safe for concurrent
// use.
type Conn struct {
	client         *ssh.Client
	sftp           *sftp.Client
	device         model.Device
	commandTimeout time.Duration
}

// Close releases the SFTP subsystem and the SSH connection.
func (c *Conn) Close() error {
	var errs []error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		c.sftp = nil
	}
	if c.client != nil {
		if err := c.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.client = nil
	}
	return errors.Join(errs...)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run executes cmd once and waits for it. A non-zero exit status is not an
// error. If ctx ends or the command timeout elapses first, the remote
// session is signalled and closed, and the partial result is returned with
// an ErrTransport error.
func (c *Conn) Run(ctx context.Context, cmd string) (Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTransport, err, "open session on %s", c.device)
	}
	defer session.Close()

	if c.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.commandTimeout)
		defer cancel()
	}

	var out lockedBuffer
	session.Stdout = &out
	session.Stderr = &out

	start := time.Now()
	if err := session.Start(cmd); err != nil {
		return Result{}, apperr.Wrap(apperr.ErrTransport, err, "start command on %s", c.device)
	}

	waitc := make(chan error, 1)
	go func() { waitc <- session.Wait() }()

	interrupted := false
	select {
	case err = <-waitc:
	case <-ctx.Done():
		interrupted = true
		_ = session.Signal(ssh.SIGTERM)
		_ = session.Close()
		select {
		case <-waitc:
		case <-time.After(interruptGrace):
			// Peer never acknowledged the close; drop the connection.
			_ = c.client.Close()
			<-waitc
		}
	}

	res := Result{Output: out.String(), Started: true, Duration: time.Since(start)}
	if interrupted {
		return res, apperr.Wrap(apperr.ErrTransport, ctx.Err(), "command on %s interrupted", c.device)
	}
	if err == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	return res, apperr.Wrap(apperr.ErrTransport, err, "command on %s ended without exit status", c.device)
}

func (c *Conn) sftpClient() (*sftp.Client, error) {
	if c.sftp != nil {
		return c.sftp, nil
	}
	sc, err := newSftpClient(c.client)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrTransport, err, "failed to create sftp client for %s", c.device)
	}
	c.sftp = sc
	return sc, nil
}

func (c *Conn) fileError(op, p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(apperr.ErrNotFound, err, "%s %s on %s", op, p, c.device)
	}
	return apperr.Wrap(apperr.ErrTransport, err, "%s %s on %s", op, p, c.device)
}

// ReadFile returns the content of the remote file p.
func (c *Conn) ReadFile(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.ErrTransport, err, "read %s", p)
	}
	sc, err := c.sftpClient()
	if err != nil {
		return "", err
	}
	f, err := sc.Open(p)
	if err != nil {
		return "", c.fileError("open", p, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", c.fileError("read", p, err)
	}
	return string(b), nil
}

// WriteFile replaces the remote file p with content. The data goes to a
// temporary sibling first and is renamed into place.
func (c *Conn) WriteFile(ctx context.Context, p, content string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.ErrTransport, err, "write %s", p)
	}
	sc, err := c.sftpClient()
	if err != nil {
		return err
	}
	tmp := path.Join(path.Dir(p), fmt.Sprintf(".%s.gatekeeper.%d", path.Base(p), time.Now().UnixNano()))
	f, err := sc.Create(tmp)
	if err != nil {
		return c.fileError("create", tmp, err)
	}
	if _, err := f.Write([]byte(content)); err != nil {
		_ = f.Close()
		_ = sc.Remove(tmp)
		return c.fileError("write", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = sc.Remove(tmp)
		return c.fileError("write", tmp, err)
	}
	if err := sc.PosixRename(tmp, p); err != nil {
		_ = sc.Remove(tmp)
		return c.fileError("rename", p, err)
	}
	return nil
}

// Remove deletes the remote file p.
func (c *Conn) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.ErrTransport, err, "remove %s", p)
	}
	sc, err := c.sftpClient()
	if err != nil {
		return err
	}
	if err := sc.Remove(p); err != nil {
		return c.fileError("remove", p, err)
	}
	return nil
}
