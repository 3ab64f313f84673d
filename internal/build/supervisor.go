package build

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/metrics"
)

const (
	DefaultTimeout   = 300 * time.Second
	DefaultStopGrace = 5 * time.Second
)

var ErrBuildNotFound = errors.New("build not found or already finished")

type Phase string

const (
	PhaseInstall Phase = "install"
	PhaseBuild   Phase = "build"
	PhaseClean   Phase = "clean"
)

// LogChunk is one line of process output.
type LogChunk struct {
	BuildID string
	RunID   string
	Phase   Phase
	Text    string
	IsError bool
	Time    time.Time
}

type Request struct {
	// BuildID is generated when empty.
	BuildID string
	RunID   string
	Command string
	Dir     string
	Phase   Phase
	Env     []string
	OnLog   func(LogChunk)
}

type Outcome struct {
	BuildID  string
	Success  bool
	ExitCode int
	Duration time.Duration
	TimedOut bool
	Stopped  bool
	Message  string
}

func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	return errors.New(o.Message)
}

// ActiveBuild describes a running supervised process.
type ActiveBuild struct {
	BuildID   string    `json:"build_id"`
	RunID     string    `json:"run_id"`
	Phase     Phase     `json:"phase"`
	PID       int       `json:"pid"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
}

type execution struct {
	info    ActiveBuild
	cmd     *exec.Cmd
	done    chan struct{}
	stopped atomic.Bool
}

type Config struct {
	Timeout      time.Duration
	StopGrace    time.Duration
	AllowedTools []string
}

// Supervisor runs build commands, streams their output and terminates them on timeout
// or request.
type Supervisor struct {
	timeout time.Duration
	grace   time.Duration
	allowed []string
	log     zerolog.Logger

	mu     sync.Mutex
	active map[string]*execution
}

func NewSupervisor(cfg Config, log zerolog.Logger) *Supervisor {
	s := &Supervisor{
		timeout: cfg.Timeout,
		grace:   cfg.StopGrace,
		allowed: cfg.AllowedTools,
		log:     log.With().Str("component", "supervisor").Logger(),
		active:  map[string]*execution{},
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.grace <= 0 {
		s.grace = DefaultStopGrace
	}
	if len(s.allowed) == 0 {
		s.allowed = DefaultAllowedTools
	}
	return s
}

func (s *Supervisor) AllowedTools() []string { return s.allowed }

// Run starts req.Command and blocks until it exits, times out, is stopped, or ctx is done.
func (s *Supervisor) Run(ctx context.Context, req Request) Outcome {
	if req.BuildID == "" {
		req.BuildID = uuid.NewString()
	}
	if req.Phase == "" {
		req.Phase = PhaseBuild
	}
	start := time.Now()
	fail := func(msg string) Outcome {
		return Outcome{BuildID: req.BuildID, ExitCode: -1, Duration: time.Since(start), Message: msg}
	}

	command, err := ParseCommand(req.Command, s.allowed)
	if err != nil {
		return fail(err.Error())
	}

	cmd := exec.Command(command.Name, command.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Sprintf("stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(fmt.Sprintf("stderr pipe: %v", err))
	}

	log := s.log.With().Str("build_id", req.BuildID).Str("run_id", req.RunID).Str("phase", string(req.Phase)).Logger()
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Stringer("command", command).Msg("failed to start build command")
		return fail(fmt.Sprintf("failed to start %s: %v", command.Name, err))
	}

	e := &execution{
		info: ActiveBuild{
			BuildID:   req.BuildID,
			RunID:     req.RunID,
			Phase:     req.Phase,
			PID:       cmd.Process.Pid,
			Command:   command.String(),
			StartedAt: start,
		},
		cmd:  cmd,
		done: make(chan struct{}),
	}
	s.register(e)
	defer s.unregister(e)
	log.Info().Int("pid", e.info.PID).Stringer("command", command).Msg("build command started")

	var timedOut atomic.Bool
	timer := time.AfterFunc(s.timeout, func() {
		timedOut.Store(true)
		log.Warn().Dur("timeout", s.timeout).Msg("build command timed out")
		s.terminate(e)
	})
	defer timer.Stop()

	stopWatch := context.AfterFunc(ctx, func() {
		log.Warn().Msg("context cancelled, terminating build command")
		e.stopped.Store(true)
		s.terminate(e)
	})
	defer stopWatch()

	var wg sync.WaitGroup
	wg.Go(func() { s.stream(stdout, req, false) })
	wg.Go(func() { s.stream(stderr, req, true) })
	wg.Wait()
	waitErr := cmd.Wait()
	close(e.done)

	out := Outcome{
		BuildID:  req.BuildID,
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: time.Since(start),
		TimedOut: timedOut.Load(),
		Stopped:  e.stopped.Load(),
	}
	switch {
	case out.TimedOut:
		out.Message = fmt.Sprintf("build timed out after %s", s.timeout)
	case out.Stopped:
		out.Message = "build stopped"
	case waitErr != nil:
		out.Message = fmt.Sprintf("command exited with code %d", out.ExitCode)
	default:
		out.Success = true
		out.Message = "command completed"
	}

	result := "success"
	switch {
	case out.TimedOut:
		result = "timeout"
	case out.Stopped:
		result = "stopped"
	case !out.Success:
		result = "failed"
	}
	metrics.BuildDurationSeconds.WithLabelValues(string(req.Phase), result).Observe(out.Duration.Seconds())
	log.Info().Bool("success", out.Success).Int("exit_code", out.ExitCode).Dur("duration", out.Duration).Msg(out.Message)
	return out
}

func (s *Supervisor) stream(r io.Reader, req Request, isErr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if req.OnLog == nil {
			continue
		}
		req.OnLog(LogChunk{
			BuildID: req.BuildID,
			RunID:   req.RunID,
			Phase:   req.Phase,
			Text:    scanner.Text(),
			IsError: isErr,
			Time:    time.Now(),
		})
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.log.Debug().Err(err).Str("build_id", req.BuildID).Msg("read build output")
	}
	// drain whatever a too-long line left behind so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// Stop terminates the build with the given id. The build leaves the active set at once.
func (s *Supervisor) Stop(buildID string) error {
	s.mu.Lock()
	e, ok := s.active[buildID]
	if ok {
		delete(s.active, buildID)
		metrics.BuildsActive.Dec()
	}
	s.mu.Unlock()
	if !ok {
		return ErrBuildNotFound
	}
	e.stopped.Store(true)
	s.log.Info().Str("build_id", buildID).Int("pid", e.info.PID).Msg("stopping build")
	s.terminate(e)
	return nil
}

// terminate sends SIGTERM and escalates to SIGKILL once the grace window passes.
func (s *Supervisor) terminate(e *execution) {
	select {
	case <-e.done:
		return
	default:
	}
	if err := terminate(e.cmd); err != nil {
		s.log.Debug().Err(err).Str("build_id", e.info.BuildID).Msg("send SIGTERM")
	}
	go func() {
		select {
		case <-e.done:
		case <-time.After(s.grace):
			s.log.Warn().Str("build_id", e.info.BuildID).Msg("build did not exit after SIGTERM, killing")
			if err := kill(e.cmd); err != nil {
				s.log.Debug().Err(err).Str("build_id", e.info.BuildID).Msg("send SIGKILL")
			}
		}
	}()
}

func (s *Supervisor) ListActive() []ActiveBuild {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]ActiveBuild, 0, len(s.active))
	for _, e := range s.active {
		res = append(res, e.info)
	}
	slices.SortFunc(res, func(a, b ActiveBuild) int { return a.StartedAt.Compare(b.StartedAt) })
	return res
}

func (s *Supervisor) register(e *execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[e.info.BuildID] = e
	metrics.BuildsActive.Inc()
}

func (s *Supervisor) unregister(e *execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[e.info.BuildID] == e {
		delete(s.active, e.info.BuildID)
		metrics.BuildsActive.Dec()
	}
}
