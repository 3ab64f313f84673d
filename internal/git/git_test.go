package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

// setupRepos creates a bare origin with one commit on main and a clone of it.
func setupRepos(t *testing.T) (origin, seed, clone string) {
	t.Helper()
	root := t.TempDir()
	origin = filepath.Join(root, "origin.git")
	seed = filepath.Join(root, "seed")
	clone = filepath.Join(root, "clone")

	gitCmd(t, root, "init", "--bare", "-b", "main", origin)
	gitCmd(t, root, "clone", origin, seed)
	gitCmd(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "README.md"), []byte("v1\n"), 0o644))
	gitCmd(t, seed, "add", ".")
	gitCmd(t, seed, "commit", "-m", "v1")
	gitCmd(t, seed, "push", "origin", "main")
	gitCmd(t, root, "clone", "-b", "main", origin, clone)
	return origin, seed, clone
}

func testCtx() context.Context {
	logger := zerolog.New(os.Stdout).Level(zerolog.Disabled)
	return logger.WithContext(context.Background())
}

func TestPull(t *testing.T) {
	_, seed, clone := setupRepos(t)
	c := New(0)

	require.NoError(t, os.WriteFile(filepath.Join(seed, "README.md"), []byte("v2\n"), 0o644))
	gitCmd(t, seed, "commit", "-am", "v2")
	gitCmd(t, seed, "push", "origin", "main")

	require.NoError(t, c.Pull(testCtx(), clone, "main"))
	b, err := os.ReadFile(filepath.Join(clone, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "v2\n", string(b))
}

func TestPull_SwitchesBranch(t *testing.T) {
	_, seed, clone := setupRepos(t)
	c := New(0)

	gitCmd(t, seed, "checkout", "-b", "release")
	require.NoError(t, os.WriteFile(filepath.Join(seed, "VERSION"), []byte("1.0\n"), 0o644))
	gitCmd(t, seed, "add", ".")
	gitCmd(t, seed, "commit", "-m", "release")
	gitCmd(t, seed, "push", "origin", "release")
	gitCmd(t, clone, "fetch", "origin")

	require.NoError(t, c.Pull(testCtx(), clone, "release"))
	branch, err := c.CurrentBranch(testCtx(), clone)
	require.NoError(t, err)
	assert.Equal(t, "release", branch)
	assert.FileExists(t, filepath.Join(clone, "VERSION"))

	branches, err := c.Branches(testCtx(), clone)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "release"}, branches)
}

func TestPull_NotRepository(t *testing.T) {
	err := New(0).Pull(testCtx(), t.TempDir(), "main")
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestCheckout_DirtyTree(t *testing.T) {
	_, _, clone := setupRepos(t)
	require.NoError(t, os.WriteFile(filepath.Join(clone, "README.md"), []byte("local edit\n"), 0o644))

	err := New(0).Checkout(testCtx(), clone, "other")
	assert.ErrorIs(t, err, ErrUncommittedChanges)
}
