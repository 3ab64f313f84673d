package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const DefaultConnectTimeout = 30 * time.Second

// closeWait bounds how long a cancelled command waits for the peer to close its channel.
const closeWait = 5 * time.Second

// SSHDialer opens sessions over SSH with an SFTP channel for file transfer.
type SSHDialer struct {
	Timeout         time.Duration
	HostKeyCallback ssh.HostKeyCallback
}

// NewSSHDialer verifies host keys against knownHosts when set, otherwise host keys are
// accepted unchecked.
func NewSSHDialer(timeout time.Duration, knownHosts string) (*SSHDialer, error) {
	cb := ssh.InsecureIgnoreHostKey()
	if knownHosts != "" {
		var err error
		if cb, err = knownhosts.New(knownHosts); err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &SSHDialer{Timeout: timeout, HostKeyCallback: cb}, nil
}

func (d *SSHDialer) Dial(ctx context.Context, ep Endpoint, auth Auth) (Session, error) {
	methods, err := authMethods(auth)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            methods,
		HostKeyCallback: d.HostKeyCallback,
		Timeout:         d.Timeout,
	}

	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, &ConnectError{Endpoint: ep, Err: err}
	}
	// bound the handshake; the deadline is cleared once authenticated
	_ = conn.SetDeadline(time.Now().Add(d.Timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, ep.Addr(), cfg)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{Endpoint: ep, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, &ConnectError{Endpoint: ep, Err: fmt.Errorf("start sftp subsystem: %w", err)}
	}
	return &sshSession{client: client, sftp: sc}, nil
}

func authMethods(auth Auth) ([]ssh.AuthMethod, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	if len(auth.PrivateKey) > 0 {
		var (
			signer ssh.Signer
			err    error
		)
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(auth.PrivateKey, []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(auth.PrivateKey)
		}
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				return nil, errors.New("private key is encrypted but no passphrase was configured")
			}
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	password := auth.Password
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}, nil
}

type sshSession struct {
	client *ssh.Client
	sftp   *sftp.Client
}

func (s *sshSession) Run(ctx context.Context, command string) (Result, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open ssh channel: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()
		// the buffers are owned by the channel readers until Run returns
		select {
		case <-done:
			return Result{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1}, ctx.Err()
		case <-time.After(closeWait):
			return Result{ExitCode: -1}, ctx.Err()
		}
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		if err != nil {
			res.ExitCode = -1
			return res, err
		}
		return res, nil
	}
}

func (s *sshSession) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *sshSession) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sftp.MkdirAll(dir)
}

func (s *sshSession) PutFile(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := s.sftp.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", remotePath, err)
	}
	if _, err := dst.ReadFrom(&ctxReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		return fmt.Errorf("write remote %s: %w", remotePath, err)
	}
	if err := dst.Chmod(info.Mode().Perm()); err != nil {
		dst.Close()
		return fmt.Errorf("chmod remote %s: %w", remotePath, err)
	}
	return dst.Close()
}

func (s *sshSession) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return s.client.DialContext(ctx, network, addr)
}

func (s *sshSession) Close() error {
	return errors.Join(s.sftp.Close(), s.client.Close())
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
