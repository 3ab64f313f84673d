// Package remotetest provides in-memory sessions for tests.
package remotetest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/yz4230/shipyard/internal/remote"
)

// Handler answers a command run on a fake session. Returning handled=false falls through
// to the default handling.
type Handler func(command string) (res remote.Result, handled bool, err error)

// Session records commands and file transfers. Paths whose existence is probed with
// `test -e` are answered from Existing.
type Session struct {
	mu       sync.Mutex
	Commands []string
	Dirs     []string
	Files    map[string][]byte
	Existing map[string]bool
	Handler  Handler
	PingErr  error
	// FailPut makes PutFile fail for remote paths with this suffix.
	FailPut string
	Closed  bool
}

func NewSession() *Session {
	return &Session{Files: map[string][]byte{}, Existing: map[string]bool{}}
}

func (s *Session) Run(_ context.Context, command string) (remote.Result, error) {
	s.mu.Lock()
	s.Commands = append(s.Commands, command)
	h := s.Handler
	s.mu.Unlock()

	if h != nil {
		if res, handled, err := h(command); handled {
			return res, err
		}
	}
	if rest, ok := strings.CutPrefix(command, "test -e "); ok {
		p := unquote(strings.SplitN(rest, " &&", 2)[0])
		s.mu.Lock()
		exists := s.Existing[p]
		s.mu.Unlock()
		if exists {
			return remote.Result{Stdout: "exists\n"}, nil
		}
		return remote.Result{Stdout: "missing\n"}, nil
	}
	return remote.Result{}, nil
}

func (s *Session) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Closed {
		return errors.New("session closed")
	}
	return s.PingErr
}

func (s *Session) MkdirAll(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Dirs = append(s.Dirs, dir)
	return nil
}

func (s *Session) PutFile(ctx context.Context, localPath, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailPut != "" && strings.HasSuffix(remotePath, s.FailPut) {
		return errors.New("permission denied")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Files[remotePath] = data
	return nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// CommandLog returns a copy of the commands run so far.
func (s *Session) CommandLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Commands...)
}

// Dialer hands out sessions produced by New and counts dials.
type Dialer struct {
	mu    sync.Mutex
	New   func() *Session
	Err   error
	Dials int
	Last  *Session
}

func (d *Dialer) Dial(context.Context, remote.Endpoint, remote.Auth) (remote.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Dials++
	if d.Err != nil {
		return nil, d.Err
	}
	s := NewSession()
	if d.New != nil {
		s = d.New()
	}
	d.Last = s
	return s, nil
}

func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Dials
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], `'\''`, "'")
	}
	return s
}
