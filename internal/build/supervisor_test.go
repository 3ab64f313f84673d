//go:build unix

package build

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script writes an executable shell script into a temp dir and returns the dir.
func script(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return dir
}

func newTestSupervisor(timeout, grace time.Duration) *Supervisor {
	return NewSupervisor(Config{Timeout: timeout, StopGrace: grace, AllowedTools: []string{"./run.sh"}}, zerolog.Nop())
}

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []LogChunk
}

func (r *chunkRecorder) add(c LogChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
}

func (r *chunkRecorder) all() []LogChunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogChunk(nil), r.chunks...)
}

func TestSupervisor_RunStreamsOutput(t *testing.T) {
	dir := script(t, "echo compiling\necho warning >&2\necho done")
	s := newTestSupervisor(10*time.Second, time.Second)
	rec := &chunkRecorder{}

	out := s.Run(context.Background(), Request{RunID: "7", Command: "./run.sh", Dir: dir, Phase: PhaseBuild, OnLog: rec.add})

	require.True(t, out.Success, out.Message)
	assert.Equal(t, 0, out.ExitCode)
	assert.NotEmpty(t, out.BuildID)

	var stdout, stderr []string
	for _, c := range rec.all() {
		assert.Equal(t, out.BuildID, c.BuildID)
		assert.Equal(t, "7", c.RunID)
		assert.Equal(t, PhaseBuild, c.Phase)
		if c.IsError {
			stderr = append(stderr, c.Text)
		} else {
			stdout = append(stdout, c.Text)
		}
	}
	assert.Equal(t, []string{"compiling", "done"}, stdout)
	assert.Equal(t, []string{"warning"}, stderr)
	assert.Empty(t, s.ListActive())
}

func TestSupervisor_NonZeroExit(t *testing.T) {
	dir := script(t, "echo boom >&2\nexit 3")
	s := newTestSupervisor(10*time.Second, time.Second)

	out := s.Run(context.Background(), Request{Command: "./run.sh", Dir: dir})

	assert.False(t, out.Success)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "command exited with code 3", out.Message)
	assert.Error(t, out.Err())
}

func TestSupervisor_RejectsUnlistedTool(t *testing.T) {
	s := newTestSupervisor(10*time.Second, time.Second)

	out := s.Run(context.Background(), Request{Command: "rm -rf /tmp/x", Dir: t.TempDir()})

	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "not an allowed build tool")
}

func TestSupervisor_Timeout(t *testing.T) {
	dir := script(t, "sleep 30")
	s := newTestSupervisor(200*time.Millisecond, 200*time.Millisecond)

	start := time.Now()
	out := s.Run(context.Background(), Request{Command: "./run.sh", Dir: dir})

	assert.False(t, out.Success)
	assert.True(t, out.TimedOut)
	assert.Contains(t, out.Message, "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSupervisor_StopAndListActive(t *testing.T) {
	dir := script(t, "echo started\nsleep 30")
	s := newTestSupervisor(time.Minute, 200*time.Millisecond)

	started := make(chan struct{})
	var once sync.Once
	result := make(chan Outcome, 1)
	go func() {
		result <- s.Run(context.Background(), Request{
			BuildID: "b-1",
			RunID:   "9",
			Command: "./run.sh",
			Dir:     dir,
			Phase:   PhaseInstall,
			OnLog:   func(LogChunk) { once.Do(func() { close(started) }) },
		})
	}()

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("build did not start")
	}

	active := s.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "b-1", active[0].BuildID)
	assert.Equal(t, PhaseInstall, active[0].Phase)
	assert.Positive(t, active[0].PID)

	require.NoError(t, s.Stop("b-1"))
	assert.Empty(t, s.ListActive())

	select {
	case out := <-result:
		assert.False(t, out.Success)
		assert.True(t, out.Stopped)
		assert.Equal(t, "build stopped", out.Message)
	case <-time.After(10 * time.Second):
		t.Fatal("stopped build did not exit")
	}

	assert.ErrorIs(t, s.Stop("b-1"), ErrBuildNotFound)
}

func TestSupervisor_StopUnknown(t *testing.T) {
	s := newTestSupervisor(time.Minute, time.Second)
	assert.ErrorIs(t, s.Stop("nope"), ErrBuildNotFound)
}

func TestSupervisor_KillsAfterGrace(t *testing.T) {
	dir := script(t, "trap '' TERM\necho ready\nwhile true; do sleep 0.1; done")
	s := newTestSupervisor(time.Minute, 300*time.Millisecond)

	ready := make(chan struct{})
	var once sync.Once
	result := make(chan Outcome, 1)
	go func() {
		result <- s.Run(context.Background(), Request{
			BuildID: "stubborn",
			Command: "./run.sh",
			Dir:     dir,
			OnLog:   func(LogChunk) { once.Do(func() { close(ready) }) },
		})
	}()
	<-ready

	stoppedAt := time.Now()
	require.NoError(t, s.Stop("stubborn"))

	select {
	case out := <-result:
		assert.True(t, out.Stopped)
		assert.GreaterOrEqual(t, time.Since(stoppedAt), 300*time.Millisecond)
	case <-time.After(10 * time.Second):
		t.Fatal("process survived SIGKILL")
	}
}

func TestSupervisor_ContextCancel(t *testing.T) {
	dir := script(t, "sleep 30")
	s := newTestSupervisor(time.Minute, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	out := s.Run(ctx, Request{Command: "./run.sh", Dir: dir})

	assert.False(t, out.Success)
	assert.True(t, out.Stopped)
}
