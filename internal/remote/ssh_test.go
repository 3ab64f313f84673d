package remote_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/shipyard/internal/remote"
	"golang.org/x/crypto/ssh"
)

// startSSHServer serves password-authenticated exec and sftp sessions on a loopback port.
func startSSHServer(t *testing.T) remote.Endpoint {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if string(password) == "secret" {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg)
		}
	}()
	return remote.Endpoint{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, User: "deploy"}
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, creqs)
	}
}

func serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				status := runCommand(payload.Command, ch)
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				_ = ch.Close()
			}()
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			srv, err := sftp.NewServer(ch)
			if err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				_ = srv.Serve()
				_ = srv.Close()
			}()
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func runCommand(command string, ch ssh.Channel) uint32 {
	switch command {
	case "whoami":
		_, _ = ch.Write([]byte("deploy\n"))
		return 0
	case "tail -f /var/log/app.log":
		// streams until the client goes away
		for {
			if _, err := ch.Write([]byte("tick\n")); err != nil {
				return 0
			}
			time.Sleep(5 * time.Millisecond)
		}
	default:
		_, _ = ch.Stderr().Write([]byte("command not found\n"))
		return 127
	}
}

func dialTestServer(t *testing.T, ep remote.Endpoint) remote.Session {
	t.Helper()
	d, err := remote.NewSSHDialer(5*time.Second, "")
	require.NoError(t, err)
	s, err := d.Dial(context.Background(), ep, remote.Auth{Password: "secret"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSSHSession_Run(t *testing.T) {
	s := dialTestServer(t, startSSHServer(t))

	res, err := s.Run(context.Background(), "whoami")
	require.NoError(t, err)
	assert.Equal(t, "deploy\n", res.Stdout)
	assert.Zero(t, res.ExitCode)

	res, err = s.Run(context.Background(), "systemctl restart api")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.Equal(t, "command not found\n", res.Stderr)

	assert.NoError(t, s.Ping(context.Background()))
}

func TestSSHSession_CancelledRunCollectsOutputAfterChannelCloses(t *testing.T) {
	s := dialTestServer(t, startSSHServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	res, err := s.Run(ctx, "tail -f /var/log/app.log")

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, strings.HasPrefix(res.Stdout, "tick\n"), res.Stdout)
	assert.Less(t, time.Since(start), 4*time.Second)

	// the connection stays usable for later commands
	res, err = s.Run(context.Background(), "whoami")
	require.NoError(t, err)
	assert.Equal(t, "deploy\n", res.Stdout)
}

func TestSSHSession_PutFile(t *testing.T) {
	s := dialTestServer(t, startSSHServer(t))

	src := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(src, []byte("PK\x03\x04"), 0o640))
	remoteDir := filepath.Join(t.TempDir(), "srv", "api")

	require.NoError(t, s.MkdirAll(context.Background(), remoteDir))
	require.NoError(t, s.PutFile(context.Background(), src, filepath.Join(remoteDir, "app.jar")))

	data, err := os.ReadFile(filepath.Join(remoteDir, "app.jar"))
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04", string(data))
	info, err := os.Stat(filepath.Join(remoteDir, "app.jar"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestSSHDialer_WrongPassword(t *testing.T) {
	ep := startSSHServer(t)
	d, err := remote.NewSSHDialer(5*time.Second, "")
	require.NoError(t, err)

	_, err = d.Dial(context.Background(), ep, remote.Auth{Password: "nope"})
	var ce *remote.ConnectError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ep, ce.Endpoint)
}
