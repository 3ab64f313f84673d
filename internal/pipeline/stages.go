package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/events"
	"github.com/yz4230/shipyard/internal/metrics"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/storage"
	"github.com/yz4230/shipyard/internal/transfer"
)

var stageTitles = map[entity.Stage]string{
	entity.StagePull:    "Pulling latest code",
	entity.StageBuild:   "Building project",
	entity.StageUpload:  "Uploading files",
	entity.StageRestart: "Restarting service",
}

// run is the state of one deployment while its stages execute.
type run struct {
	o       *Orchestrator
	id      entity.ID
	req     RunRequest
	journal *storage.Journal
	log     zerolog.Logger

	// build output arrives from two goroutines
	logMu sync.Mutex

	detection *build.Detection
}

// logf appends a line to the run log and publishes it.
func (r *run) logf(isErr bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.logMu.Lock()
	r.journal.Append(msg)
	r.logMu.Unlock()
	r.publish(events.Log{Message: msg, IsError: isErr})
	if isErr {
		r.log.Warn().Msg(msg)
	} else {
		r.log.Debug().Msg(msg)
	}
}

func (r *run) publish(p events.Payload) {
	r.o.bus.Publish(r.id.String(), events.New(r.id.String(), p))
}

func (r *run) step(stage entity.Stage, index int, status events.StepStatus, message string) {
	r.publish(events.Step{Stage: stage, Index: index, Status: status, Message: message})
}

func (r *run) record(stage entity.Stage, result entity.StageResult) {
	r.journal.Patch(entity.DeploymentPatch{Stage: stage, Result: result})
}

// runStages executes the enabled stages in order and stops at the first failure.
func (r *run) runStages(ctx context.Context) error {
	for i, stage := range entity.Stages {
		title := stageTitles[stage]
		if !r.req.Stages.Enabled(stage) {
			r.logf(false, "Skipping %s stage", stage)
			r.record(stage, entity.StageResultSkipped)
			r.step(stage, i, events.StepSkip, title)
			metrics.StageDurationSeconds.WithLabelValues(string(stage), string(entity.StageResultSkipped)).Observe(0)
			continue
		}

		r.step(stage, i, events.StepProcess, title)
		r.logf(false, "%s...", title)
		start := r.o.now()
		err := r.runStage(ctx, stage)
		elapsed := r.o.now().Sub(start)
		if err != nil {
			r.record(stage, entity.StageResultFailed)
			r.logf(true, "%s failed: %v", title, err)
			r.step(stage, i, events.StepError, err.Error())
			metrics.StageDurationSeconds.WithLabelValues(string(stage), string(entity.StageResultFailed)).Observe(elapsed.Seconds())
			return fmt.Errorf("%s: %w", stage, err)
		}
		r.record(stage, entity.StageResultSuccess)
		r.step(stage, i, events.StepFinish, title)
		metrics.StageDurationSeconds.WithLabelValues(string(stage), string(entity.StageResultSuccess)).Observe(elapsed.Seconds())
	}
	return nil
}

func (r *run) runStage(ctx context.Context, stage entity.Stage) error {
	switch stage {
	case entity.StagePull:
		return r.pull(ctx)
	case entity.StageBuild:
		return r.build(ctx)
	case entity.StageUpload:
		return r.upload(ctx)
	case entity.StageRestart:
		return r.restart(ctx)
	}
	return fmt.Errorf("unknown stage %q", stage)
}

func (r *run) pull(ctx context.Context) error {
	if err := r.o.vcs.Pull(ctx, r.req.Project.Path, r.req.Branch); err != nil {
		return err
	}
	r.logf(false, "Pulled branch %s", r.req.Branch)
	return nil
}

func (r *run) detect() (build.Detection, error) {
	if r.detection != nil {
		return *r.detection, nil
	}
	d, err := r.o.detector.Detect(r.req.Project.Path)
	if err != nil {
		return build.Detection{}, err
	}
	r.detection = &d
	return d, nil
}

func (r *run) build(ctx context.Context) error {
	dir := r.req.Project.Path
	d, detectErr := r.detect()
	if detectErr != nil && r.req.BuildCommand == "" {
		return detectErr
	}
	if detectErr == nil {
		r.logf(false, "Detected %s project (%s)", d.Tool, d.ConfigFile)
	}

	command := d.BuildCommand
	if r.req.BuildCommand != "" {
		command = build.ExplicitCommand(r.req.BuildCommand, r.o.builder.AllowedTools())
	}

	if detectErr == nil && d.InstallCommand != "" {
		_, statErr := os.Stat(filepath.Join(dir, "node_modules"))
		if r.req.ForceInstall || os.IsNotExist(statErr) {
			if err := r.exec(ctx, build.PhaseInstall, d.InstallCommand); err != nil {
				return fmt.Errorf("install dependencies: %w", err)
			}
		}
	}

	if err := r.exec(ctx, build.PhaseBuild, command); err != nil {
		return err
	}

	if detectErr == nil {
		artifacts, err := build.FindArtifacts(dir, d)
		if err != nil {
			r.logf(true, "Could not list build artifacts: %v", err)
		}
		for _, a := range artifacts {
			r.logf(false, "Artifact: %s (%s)", a.Name, units.HumanSize(float64(a.Size)))
		}
	}
	return nil
}

func (r *run) exec(ctx context.Context, phase build.Phase, command string) error {
	r.logf(false, "Running %s", command)
	out := r.o.builder.Run(ctx, build.Request{
		RunID:   r.id.String(),
		Command: command,
		Dir:     r.req.Project.Path,
		Phase:   phase,
		OnLog: func(c build.LogChunk) {
			r.logf(c.IsError, "%s", c.Text)
		},
	})
	if !out.Success {
		return out.Err()
	}
	r.logf(false, "%s finished in %s", phase, units.HumanDuration(out.Duration))
	return nil
}

// session resolves the server credential and acquires a shared session for it. The
// returned release func must be called once the stage is done with the session.
func (r *run) session(ctx context.Context) (remote.Session, func(), error) {
	srv := r.req.Server
	auth, err := r.o.creds.Resolve(ctx, srv)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: server %s: %w", ErrConfig, srv.Name, err)
	}
	if err := auth.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: server %s: %w", ErrConfig, srv.Name, err)
	}
	ep := remote.Endpoint{Host: srv.Host, Port: srv.Port, User: srv.Username}
	s, err := r.o.sessions.Acquire(ctx, ep, auth)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { r.o.sessions.Release(ep, s) }, nil
}

// uploadSource picks the local directory to ship and how it lands remotely.
func (r *run) uploadSource() (local, remoteDir string, preserveTop bool, err error) {
	srv := r.req.Server
	root := r.req.Project.Path
	artifactDir := ""
	if d, derr := r.detect(); derr == nil && d.Kind == r.req.DeployType {
		artifactDir = d.ArtifactDir
	}

	switch r.req.DeployType {
	case entity.DeployTypeBackend:
		if srv.BackendUploadPath == "" {
			return "", "", false, fmt.Errorf("%w: server %s has no backend upload path", ErrConfig, srv.Name)
		}
		if artifactDir == "" {
			artifactDir = "target"
			if _, statErr := os.Stat(filepath.Join(root, "build", "libs")); statErr == nil {
				artifactDir = filepath.Join("build", "libs")
			}
		}
		return filepath.Join(root, artifactDir), srv.BackendUploadPath, false, nil
	case entity.DeployTypeFrontend:
		if srv.FrontendUploadPath == "" {
			return "", "", false, fmt.Errorf("%w: server %s has no frontend upload path", ErrConfig, srv.Name)
		}
		if artifactDir == "" {
			artifactDir = "dist"
		}
		return filepath.Join(root, artifactDir), srv.FrontendUploadPath, true, nil
	}
	return "", "", false, fmt.Errorf("%w: unknown deploy type %q", ErrConfig, r.req.DeployType)
}

func (r *run) upload(ctx context.Context) error {
	local, remoteDir, preserveTop, err := r.uploadSource()
	if err != nil {
		return err
	}
	if _, err := os.Stat(local); err != nil {
		return fmt.Errorf("artifact directory %s: %w", local, err)
	}
	s, release, err := r.session(ctx)
	if err != nil {
		return err
	}
	defer release()

	r.logf(false, "Uploading %s to %s:%s", local, r.req.Server.Host, remoteDir)
	out, err := transfer.Upload(ctx, s, local, remoteDir, transfer.Options{
		Backup:            true,
		PreserveTopFolder: preserveTop,
		Now:               r.o.now,
		OnProgress: func(p transfer.Progress) {
			r.logf(false, "Uploading %s (%s) [%d/%d files, %d%%]",
				p.File, units.HumanSize(float64(p.FileSize)), p.FilesDone+1, p.TotalFiles, p.BytePercent)
		},
		OnFileDone: func(p transfer.Progress) {
			r.logf(false, "Uploaded %s (%s) [%d/%d files, %d%%]",
				p.File, units.HumanSize(float64(p.FileSize)), p.FilesDone, p.TotalFiles, p.BytePercent)
		},
	})
	if out.BackupPath != "" {
		r.logf(false, "Backed up previous release to %s", out.BackupPath)
	}
	if err != nil {
		return err
	}
	r.logf(false, "Uploaded %d files (%s) to %s in %s",
		out.Files, units.HumanSize(float64(out.Bytes)), out.RemoteRoot, units.HumanDuration(out.Duration))
	return nil
}

func (r *run) restart(ctx context.Context) error {
	if r.req.DeployType == entity.DeployTypeFrontend {
		return r.reloadNginx(ctx)
	}

	srv := r.req.Server
	switch {
	case srv.RestartScriptPath != "":
		s, release, err := r.session(ctx)
		if err != nil {
			return err
		}
		defer release()
		r.logf(false, "Running restart script %s", srv.RestartScriptPath)
		res, err := remote.RestartService(ctx, s, srv.RestartScriptPath)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
			if line != "" {
				r.logf(false, "%s", line)
			}
		}
		r.logf(false, "Backend service restarted")
	case srv.DockerContainer != "":
		s, release, err := r.session(ctx)
		if err != nil {
			return err
		}
		defer release()
		r.logf(false, "Restarting container %s", srv.DockerContainer)
		if err := r.o.restartContainer(ctx, s, srv.DockerContainer, defaultContainerStopTimeout); err != nil {
			return err
		}
		r.logf(false, "Container %s restarted", srv.DockerContainer)
	default:
		r.logf(false, "No restart script configured, skipping backend restart")
	}
	return nil
}

// reloadNginx never fails the stage once a session exists; a failed reload is only
// reported in the run log.
func (r *run) reloadNginx(ctx context.Context) error {
	if !r.req.Server.NginxReload {
		r.logf(false, "Nginx reload not enabled")
		return nil
	}
	s, release, err := r.session(ctx)
	if err != nil {
		return err
	}
	defer release()
	r.logf(false, "Reloading Nginx...")
	if err := remote.ReloadNginx(ctx, s); err != nil {
		r.logf(true, "Nginx reload failed: %v", err)
		return nil
	}
	r.logf(false, "Nginx reloaded")
	return nil
}
