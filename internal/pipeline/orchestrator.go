// Package pipeline runs deployments: pull, build, upload and restart, one run per
// project/server pair.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/events"
	"github.com/yz4230/shipyard/internal/metrics"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/storage"
)

const (
	defaultContainerStopTimeout = 10 * time.Second
	journalDrainTimeout         = 30 * time.Second
)

// Deps are the collaborators of an Orchestrator. All fields are required.
type Deps struct {
	Store       Store
	VCS         VCS
	Detector    Detector
	Builder     Builder
	Sessions    Sessions
	Credentials Credentials
	Bus         *events.Bus
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("pipeline: store is required")
	case d.VCS == nil:
		return errors.New("pipeline: vcs is required")
	case d.Detector == nil:
		return errors.New("pipeline: detector is required")
	case d.Builder == nil:
		return errors.New("pipeline: builder is required")
	case d.Sessions == nil:
		return errors.New("pipeline: sessions are required")
	case d.Credentials == nil:
		return errors.New("pipeline: credentials are required")
	case d.Bus == nil:
		return errors.New("pipeline: event bus is required")
	}
	return nil
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithContainerRestarter(fn ContainerRestarter) Option {
	return func(o *Orchestrator) { o.restartContainer = fn }
}

// RunRequest asks for one deployment of Project onto Server.
type RunRequest struct {
	Project *entity.Project
	Server  *entity.Server
	// DeployType and Branch default to the project's.
	DeployType  entity.DeployType
	Branch      string
	Stages      entity.StageToggles
	Description string
	// BuildCommand overrides the detected build command. A command line starting with an
	// allowed tool runs as is; anything else is an npm script name.
	BuildCommand string
	// ForceInstall installs frontend dependencies even when node_modules exists.
	ForceInstall bool
}

func (r *RunRequest) normalize() error {
	if r.Project == nil || r.Server == nil {
		return fmt.Errorf("%w: project and server are required", ErrConfig)
	}
	if r.DeployType == "" {
		r.DeployType = r.Project.Type
	}
	if !r.DeployType.Valid() {
		return fmt.Errorf("%w: unknown deploy type %q", ErrConfig, r.DeployType)
	}
	if r.Branch == "" {
		r.Branch = r.Project.Branch
	}
	if r.BuildCommand == "" {
		r.BuildCommand = r.Project.BuildCommand
	}
	return nil
}

// Orchestrator starts deployment runs and tracks them until they finish.
type Orchestrator struct {
	store            Store
	vcs              VCS
	detector         Detector
	builder          Builder
	sessions         Sessions
	creds            Credentials
	bus              *events.Bus
	log              zerolog.Logger
	now              func() time.Time
	restartContainer ContainerRestarter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(deps Deps, log zerolog.Logger, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:            deps.Store,
		vcs:              deps.VCS,
		detector:         deps.Detector,
		builder:          deps.Builder,
		sessions:         deps.Sessions,
		creds:            deps.Credentials,
		bus:              deps.Bus,
		log:              log.With().Str("component", "pipeline").Logger(),
		now:              time.Now,
		restartContainer: remote.RestartContainer,
		ctx:              ctx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// StartRun records a new deployment and runs it in the background. It returns as soon
// as the record exists.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest) (entity.ID, error) {
	if err := req.normalize(); err != nil {
		return "", err
	}
	dep := &entity.Deployment{
		ProjectID:     req.Project.ID,
		ServerID:      req.Server.ID,
		DeployType:    req.DeployType,
		Branch:        req.Branch,
		Description:   req.Description,
		Stages:        req.Stages,
		PullResult:    entity.StageResultSkipped,
		BuildResult:   entity.StageResultSkipped,
		UploadResult:  entity.StageResultSkipped,
		RestartResult: entity.StageResultSkipped,
		Status:        entity.DeploymentStatusRunning,
		StartedAt:     o.now(),
	}
	created, err := o.store.Create(ctx, dep)
	if err != nil {
		return "", fmt.Errorf("create deployment: %w", err)
	}

	log := o.log.With().Str("run_id", created.ID.String()).Logger()
	r := &run{
		o:       o,
		id:      created.ID,
		req:     req,
		journal: storage.NewJournal(o.store, created.ID, log),
		log:     log,
	}
	metrics.DeploymentsRunning.Inc()
	o.wg.Go(func() { o.execute(log.WithContext(o.ctx), r) })
	return created.ID, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) {
	defer metrics.DeploymentsRunning.Dec()
	start := o.now()
	r.logf(false, "Starting deployment: %s -> %s", r.req.Project.Name, r.req.Server.Name)
	r.logf(false, "Deploy type: %s", r.req.DeployType)
	r.logf(false, "Project path: %s", r.req.Project.Path)

	err := r.runStages(ctx)

	status := entity.DeploymentStatusSuccess
	message := "Deployment completed"
	ended := o.now()
	patch := entity.DeploymentPatch{Status: &status, EndedAt: &ended}
	if err != nil {
		status = entity.DeploymentStatusFailed
		errMsg := err.Error()
		patch.ErrorMessage = &errMsg
		message = "Deployment failed: " + errMsg
		r.logf(true, "%s", message)
	} else {
		r.logf(false, "Deployment completed in %s", ended.Sub(start).Round(time.Millisecond))
	}
	r.journal.Patch(patch)

	drainCtx, cancel := context.WithTimeout(context.Background(), journalDrainTimeout)
	if err := r.journal.Close(drainCtx); err != nil {
		r.log.Error().Err(err).Msg("deployment progress not fully persisted")
	}
	cancel()

	metrics.DeploymentsTotal.WithLabelValues(string(r.req.DeployType), string(status)).Inc()
	r.log.Info().Str("status", string(status)).Dur("duration", ended.Sub(start)).Msg("deployment finished")
	o.bus.Publish(r.id.String(), events.New(r.id.String(), events.Complete{Status: status, Message: message}))
}

// StopBuild terminates a running build. It returns build.ErrBuildNotFound when no
// build with that id is running.
func (o *Orchestrator) StopBuild(buildID string) error {
	return o.builder.Stop(buildID)
}

func (o *Orchestrator) ActiveBuilds() []build.ActiveBuild {
	return o.builder.ListActive()
}

// Subscribe attaches sink to the events of a run, replacing any previous sink.
func (o *Orchestrator) Subscribe(runID entity.ID, sink events.Sink) {
	o.bus.Subscribe(runID.String(), sink)
}

func (o *Orchestrator) Unsubscribe(runID entity.ID, sink events.Sink) {
	o.bus.Unsubscribe(runID.String(), sink)
}

// Wait blocks until every started run has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels all runs and waits for them to record their outcome.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	return o.Wait(ctx)
}
