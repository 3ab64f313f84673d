package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/shipyard/internal/remote/remotetest"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func distTree(t *testing.T) string {
	t.Helper()
	dist := filepath.Join(t.TempDir(), "dist")
	writeTree(t, dist, map[string]string{
		"index.html":                 "<html></html>",
		"assets/app.js":              "console.log('app')",
		"assets/app.css":             "body{}",
		".env":                       "SECRET=1",
		"assets/.cache/blob":         "cached",
		".git/HEAD":                  "ref: refs/heads/main",
		"node_modules/vue/index.js":  "module.exports = {}",
		"nested/node_modules/x/y.js": "x",
	})
	return dist
}

func TestUpload_PreserveTopFolderWithExclusions(t *testing.T) {
	dist := distTree(t)
	s := remotetest.NewSession()

	var progress, done []Progress
	out, err := Upload(context.Background(), s, dist, "/var/www/html", Options{
		PreserveTopFolder: true,
		OnProgress:        func(p Progress) { progress = append(progress, p) },
		OnFileDone:        func(p Progress) { done = append(done, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, "/var/www/html/dist", out.RemoteRoot)
	remoteFiles := make([]string, 0, len(s.Files))
	for p := range s.Files {
		remoteFiles = append(remoteFiles, p)
	}
	sort.Strings(remoteFiles)
	assert.Equal(t, []string{
		"/var/www/html/dist/assets/app.css",
		"/var/www/html/dist/assets/app.js",
		"/var/www/html/dist/index.html",
	}, remoteFiles)
	assert.Equal(t, "<html></html>", string(s.Files["/var/www/html/dist/index.html"]))
	assert.Contains(t, s.Dirs, "/var/www/html/dist")
	assert.Contains(t, s.Dirs, "/var/www/html/dist/assets")

	total := int64(len("<html></html>") + len("console.log('app')") + len("body{}"))
	assert.Equal(t, 3, out.Files)
	assert.Equal(t, total, out.Bytes)

	require.Len(t, progress, 3)
	require.Len(t, done, 3)
	var sum int64
	for i := range done {
		assert.Equal(t, progress[i].File, done[i].File)
		assert.Equal(t, 3, done[i].TotalFiles)
		assert.Equal(t, total, done[i].TotalBytes)
		assert.Equal(t, progress[i].BytesDone+done[i].FileSize, done[i].BytesDone)
		sum += done[i].FileSize
		assert.LessOrEqual(t, done[i].BytesDone, total)
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, 100, done[2].FilePercent)
	assert.Equal(t, 100, done[2].BytePercent)
	assert.Zero(t, progress[0].BytesDone)
}

func TestUpload_FlattenWithBackupOfExistingTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "target")
	writeTree(t, target, map[string]string{"app.jar": "jar-bytes"})
	s := remotetest.NewSession()
	s.Existing["/opt/app"] = true
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	out, err := Upload(context.Background(), s, target, "/opt/app", Options{Backup: true, Now: func() time.Time { return ts }})
	require.NoError(t, err)

	assert.Equal(t, "/opt/app", out.RemoteRoot)
	assert.Equal(t, "/opt/app.bak.2024-05-01T08-00-00-000Z", out.BackupPath)
	assert.Contains(t, s.CommandLog(), "cp -r /opt/app /opt/app.bak.2024-05-01T08-00-00-000Z")
	assert.Equal(t, "jar-bytes", string(s.Files["/opt/app/app.jar"]))
}

func TestUpload_BackupMissingTargetIsNotAnError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "target")
	writeTree(t, target, map[string]string{"app.jar": "x"})
	s := remotetest.NewSession()

	out, err := Upload(context.Background(), s, target, "/opt/new", Options{Backup: true})
	require.NoError(t, err)
	assert.Empty(t, out.BackupPath)
	assert.Len(t, s.Files, 1)
}

func TestUpload_FileErrorAborts(t *testing.T) {
	dist := filepath.Join(t.TempDir(), "dist")
	writeTree(t, dist, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	s := remotetest.NewSession()
	s.FailPut = "b.txt"

	var done []Progress
	_, err := Upload(context.Background(), s, dist, "/srv", Options{OnFileDone: func(p Progress) { done = append(done, p) }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.txt")
	assert.Len(t, done, 1)
	assert.NotContains(t, s.Files, "/srv/c.txt")
}

func TestUpload_MissingLocalDir(t *testing.T) {
	s := remotetest.NewSession()
	_, err := Upload(context.Background(), s, filepath.Join(t.TempDir(), "nope"), "/srv", Options{})
	require.Error(t, err)
	assert.Empty(t, s.CommandLog())
}

func TestUpload_EmptyTree(t *testing.T) {
	dist := filepath.Join(t.TempDir(), "dist")
	require.NoError(t, os.MkdirAll(dist, 0o755))
	s := remotetest.NewSession()

	out, err := Upload(context.Background(), s, dist, "/srv", Options{})
	require.NoError(t, err)
	assert.Zero(t, out.Files)
	assert.Zero(t, out.Bytes)
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher("*.map")
	require.NoError(t, err)

	for rel, want := range map[string]bool{
		"index.html":             false,
		"assets/app.js":          false,
		".env":                   true,
		"assets/.DS_Store":       true,
		"node_modules/a/b.js":    true,
		"lib/node_modules/x.js":  true,
		".git/config":            true,
		"app.js.map":             true,
		"assets/app.js.map":      false,
		"docs/.vitepress/config": true,
	} {
		got, err := m.Excluded(rel)
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}
