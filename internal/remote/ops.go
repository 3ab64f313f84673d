package remote

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yz4230/shipyard/internal/utils"
)

// CommandError reports a remote command that exited non-zero.
type CommandError struct {
	Command string
	Result  Result
}

func (e *CommandError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Result.ExitCode, utils.Truncate(msg, 512))
}

type execOptions struct {
	dir string
}

type ExecOption func(*execOptions)

// InDir runs the command from dir on the remote host.
func InDir(dir string) ExecOption {
	return func(o *execOptions) { o.dir = dir }
}

// Exec runs command and turns a non-zero exit status into a *CommandError.
func Exec(ctx context.Context, s Session, command string, opts ...ExecOption) (Result, error) {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}
	full := command
	if o.dir != "" {
		full = "cd " + utils.ShellQuote(o.dir) + " && " + command
	}
	res, err := s.Run(ctx, full)
	if err != nil {
		return res, fmt.Errorf("%s: %w", command, err)
	}
	if !res.OK() {
		return res, &CommandError{Command: command, Result: res}
	}
	return res, nil
}

func PathExists(ctx context.Context, s Session, p string) (bool, error) {
	res, err := s.Run(ctx, "test -e "+utils.ShellQuote(p)+" && echo exists || echo missing")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "exists", nil
}

// BackupPath names the sibling copy of p taken at t.
func BackupPath(p string, t time.Time) string {
	return strings.TrimSuffix(p, "/") + ".bak." + t.UTC().Format("2006-01-02T15-04-05-000Z")
}

// BackupDirectory copies dir to a timestamped sibling. It returns an empty path when dir
// does not exist.
func BackupDirectory(ctx context.Context, s Session, dir string, now time.Time) (string, error) {
	exists, err := PathExists(ctx, s, dir)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", dir, err)
	}
	if !exists {
		return "", nil
	}
	backup := BackupPath(dir, now)
	if _, err := Exec(ctx, s, "cp -r "+utils.ShellQuote(dir)+" "+utils.ShellQuote(backup)); err != nil {
		return "", fmt.Errorf("backup %s: %w", dir, err)
	}
	return backup, nil
}

// RestartService runs the restart script with bash from the script's directory.
func RestartService(ctx context.Context, s Session, script string) (Result, error) {
	exists, err := PathExists(ctx, s, script)
	if err != nil {
		return Result{}, fmt.Errorf("probe restart script: %w", err)
	}
	if !exists {
		return Result{}, fmt.Errorf("restart script %s does not exist", script)
	}
	return Exec(ctx, s, "bash "+utils.ShellQuote(script), InDir(path.Dir(script)))
}

// ReloadNginx validates the nginx configuration and reloads it.
func ReloadNginx(ctx context.Context, s Session) error {
	if _, err := Exec(ctx, s, "nginx -t"); err != nil {
		return fmt.Errorf("nginx configuration test failed: %w", err)
	}
	if _, err := Exec(ctx, s, "nginx -s reload"); err != nil {
		return fmt.Errorf("nginx reload failed: %w", err)
	}
	return nil
}

// TestConnection returns the name of the remote user the session runs as.
func TestConnection(ctx context.Context, s Session) (string, error) {
	res, err := Exec(ctx, s, "whoami")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

type FileInfo struct {
	Name        string `json:"name"`
	Permissions string `json:"permissions"`
	Owner       string `json:"owner"`
	Group       string `json:"group"`
	Size        int64  `json:"size"`
	Modified    string `json:"modified"`
	IsDir       bool   `json:"is_dir"`
}

// ListFiles lists dir with `ls -la`, omitting the . and .. entries.
func ListFiles(ctx context.Context, s Session, dir string) ([]FileInfo, error) {
	res, err := Exec(ctx, s, "ls -la "+utils.ShellQuote(dir))
	if err != nil {
		return nil, err
	}
	return parseListing(res.Stdout), nil
}

func parseListing(out string) []FileInfo {
	var files []FileInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 || fields[0] == "total" {
			continue
		}
		name := strings.Join(fields[8:], " ")
		if name == "." || name == ".." {
			continue
		}
		size, _ := strconv.ParseInt(fields[4], 10, 64)
		files = append(files, FileInfo{
			Name:        name,
			Permissions: fields[0],
			Owner:       fields[2],
			Group:       fields[3],
			Size:        size,
			Modified:    strings.Join(fields[5:8], " "),
			IsDir:       strings.HasPrefix(fields[0], "d"),
		})
	}
	return files
}
