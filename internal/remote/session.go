package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var (
	// ErrNoCredential is returned when neither a password nor a private key is supplied.
	ErrNoCredential = errors.New("no credential: a password or a private key is required")
	// ErrAmbiguousCredential is returned when both a password and a private key are supplied.
	ErrAmbiguousCredential = errors.New("ambiguous credential: supply either a password or a private key, not both")
)

// Endpoint identifies a remote account. Sessions are cached per endpoint.
type Endpoint struct {
	Host string
	Port int
	User string
}

// Key is the cache key of a session.
type Key string

func (e Endpoint) Key() Key {
	return Key(e.User + "@" + e.Addr())
}

func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

func (e Endpoint) String() string { return string(e.Key()) }

// Auth carries exactly one credential.
type Auth struct {
	Password   string
	PrivateKey []byte
	Passphrase string
}

func (a Auth) Validate() error {
	hasPassword, hasKey := a.Password != "", len(a.PrivateKey) > 0
	switch {
	case hasPassword && hasKey:
		return ErrAmbiguousCredential
	case !hasPassword && !hasKey:
		return ErrNoCredential
	}
	return nil
}

// Result is the outcome of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Session is an authenticated connection to a remote host.
type Session interface {
	// Run executes command through the remote shell. A non-zero exit status is reported
	// in Result, not as an error.
	Run(ctx context.Context, command string) (Result, error)
	// Ping verifies the connection still answers.
	Ping(ctx context.Context) error
	MkdirAll(ctx context.Context, dir string) error
	// PutFile copies a local regular file to remotePath, replacing it.
	PutFile(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// Tunneler is implemented by sessions able to open connections from the remote side.
type Tunneler interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Dialer creates new sessions.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint, auth Auth) (Session, error)
}

// ConnectError reports a failure to establish a session.
type ConnectError struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
