// Package git drives the git CLI on local working copies.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const DefaultTimeout = 2 * time.Minute

var (
	ErrNotRepository      = errors.New("not a git repository")
	ErrUncommittedChanges = errors.New("working tree has uncommitted changes")
)

type Client struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{timeout: timeout}
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zerolog.Ctx(ctx).Debug().Strs("command", cmd.Args).Str("dir", dir).Msg("executing git command")
	if err := cmd.Run(); err != nil {
		return stdout.String(), &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// CommandError is a failed git invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (c *Client) IsRepository(ctx context.Context, dir string) bool {
	_, err := c.run(ctx, dir, "rev-parse", "--git-dir")
	return err == nil
}

func (c *Client) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Branches lists local branch names.
func (c *Client) Branches(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	return lo.Compact(strings.Split(strings.TrimSpace(out), "\n")), nil
}

// Changes lists the porcelain status lines of the working tree.
func (c *Client) Changes(ctx context.Context, dir string) ([]string, error) {
	out, err := c.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return lo.Compact(strings.Split(strings.TrimRight(out, "\n"), "\n")), nil
}

// Checkout switches to branch. It refuses to when the working tree is dirty.
func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	changes, err := c.Changes(ctx, dir)
	if err != nil {
		return err
	}
	if len(changes) > 0 {
		return fmt.Errorf("%w: %d changed files", ErrUncommittedChanges, len(changes))
	}
	_, err = c.run(ctx, dir, "checkout", branch)
	return err
}

// Pull brings dir up to date with origin. When branch is set and differs from the
// current branch it is checked out first.
func (c *Client) Pull(ctx context.Context, dir, branch string) error {
	if !c.IsRepository(ctx, dir) {
		return fmt.Errorf("%w: %s", ErrNotRepository, dir)
	}
	current, err := c.CurrentBranch(ctx, dir)
	if err != nil {
		return err
	}
	if branch != "" && branch != current {
		if err := c.Checkout(ctx, dir, branch); err != nil {
			return fmt.Errorf("checkout %s: %w", branch, err)
		}
		current = branch
	}
	args := []string{"pull"}
	if current != "" {
		args = append(args, "origin", current)
	}
	if _, err := c.run(ctx, dir, args...); err != nil {
		return describePullError(err)
	}
	return nil
}

func describePullError(err error) error {
	var ce *CommandError
	if !errors.As(err, &ce) {
		return err
	}
	switch {
	case strings.Contains(ce.Stderr, "would be overwritten"):
		return fmt.Errorf("pull: local changes would be overwritten, commit or discard them first: %w", err)
	case strings.Contains(ce.Stderr, "no tracking information"):
		return fmt.Errorf("pull: current branch has no upstream: %w", err)
	case strings.Contains(ce.Stderr, "Could not resolve host"):
		return fmt.Errorf("pull: network unreachable: %w", err)
	}
	return fmt.Errorf("pull: %w", err)
}
