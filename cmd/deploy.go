package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/credential"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/events"
	"github.com/yz4230/shipyard/internal/git"
	"github.com/yz4230/shipyard/internal/pipeline"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/repository"
)

var deployFlags struct {
	path         string
	deployType   string
	branch       string
	buildCommand string
	forceInstall bool

	host          string
	port          int
	user          string
	password      string
	keyPath       string
	uploadPath    string
	restartScript string
	container     string
	nginxReload   bool

	skipPull    bool
	skipBuild   bool
	skipUpload  bool
	skipRestart bool
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Run one deployment from this machine and stream its progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := provider.Get()
		f := deployFlags

		project := &entity.Project{
			Name:         filepath.Base(lo.Must(filepath.Abs(f.path))),
			Type:         entity.DeployType(f.deployType),
			Path:         lo.Must(filepath.Abs(f.path)),
			Branch:       f.branch,
			BuildCommand: f.buildCommand,
		}
		project.FillDefaults()
		if err := project.Validate(); err != nil {
			return fmt.Errorf("project: %w", err)
		}
		server := &entity.Server{
			Name:              f.host,
			Host:              f.host,
			Port:              f.port,
			Username:          f.user,
			Password:          f.password,
			PrivateKeyPath:    f.keyPath,
			RestartScriptPath: f.restartScript,
			DockerContainer:   f.container,
			NginxReload:       f.nginxReload,
		}
		if project.Type == entity.DeployTypeFrontend {
			server.FrontendUploadPath = f.uploadPath
		} else {
			server.BackendUploadPath = f.uploadPath
		}
		server.FillDefaults()

		// runs are recorded in a throwaway database
		db, err := repository.NewDB(repository.DriverSQLite, ":memory:")
		if err != nil {
			return err
		}
		if project, err = repository.NewProjectRepository(db).Create(cmd.Context(), project); err != nil {
			return err
		}
		if server, err = repository.NewServerRepository(db).Create(cmd.Context(), server); err != nil {
			return err
		}
		// secrets come from flags in clear text
		creds, err := credential.NewProvider("")
		if err != nil {
			return err
		}
		dialer, err := remote.NewSSHDialer(cfg.SSH.ConnectTimeout, cfg.SSH.KnownHosts)
		if err != nil {
			return err
		}
		sessions := remote.NewManager(dialer, log.Logger, remote.WithProbeTimeout(cfg.SSH.ProbeTimeout))
		defer sessions.CloseAll()

		bus := events.NewBus(log.Logger)
		orchestrator, err := pipeline.New(pipeline.Deps{
			Store:       repository.NewDeploymentRepository(db),
			VCS:         git.New(0),
			Detector:    build.Detector{},
			Builder:     build.NewSupervisor(build.Config{Timeout: cfg.Build.Timeout, StopGrace: cfg.Build.StopGrace, AllowedTools: cfg.Build.AllowedTools}, log.Logger),
			Sessions:    sessions,
			Credentials: creds,
			Bus:         bus,
		}, log.Logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		done := make(chan events.Complete, 1)
		// the first run of a fresh database is always id 1
		bus.Subscribe("1", events.NewFuncSink(func(e events.Event) error {
			printEvent(log.Logger, e)
			if c, ok := e.Payload.(events.Complete); ok {
				done <- c
			}
			return nil
		}))

		id, err := orchestrator.StartRun(ctx, pipeline.RunRequest{
			Project:      project,
			Server:       server,
			Stages:       entity.StageToggles{Pull: !f.skipPull, Build: !f.skipBuild, Upload: !f.skipUpload, Restart: !f.skipRestart},
			BuildCommand: f.buildCommand,
			ForceInstall: f.forceInstall,
			Description:  "cli",
		})
		if err != nil {
			return err
		}

		var result events.Complete
		select {
		case result = <-done:
		case <-ctx.Done():
			log.Warn().Msg("interrupted, cancelling deployment")
			_ = orchestrator.Shutdown(context.Background())
			result = <-done
		}
		if err := orchestrator.Wait(context.Background()); err != nil {
			return err
		}
		if result.Status != entity.DeploymentStatusSuccess {
			return fmt.Errorf("deployment %s failed: %s", id, result.Message)
		}
		return nil
	},
}

func printEvent(logger zerolog.Logger, e events.Event) {
	switch p := e.Payload.(type) {
	case events.Log:
		if p.IsError {
			logger.Error().Msg(p.Message)
		} else {
			logger.Info().Msg(p.Message)
		}
	case events.Step:
		logger.Info().Str("stage", string(p.Stage)).Int("step", p.Index).Str("status", string(p.Status)).Msg(p.Message)
	case events.Complete:
		logger.Info().Str("status", string(p.Status)).Msg(p.Message)
	}
}

func init() {
	fl := deployCmd.Flags()
	fl.StringVar(&deployFlags.path, "path", ".", "Project directory")
	fl.StringVar(&deployFlags.deployType, "type", "", "backend or frontend (default backend)")
	fl.StringVar(&deployFlags.branch, "branch", "", "Branch to pull (default main)")
	fl.StringVar(&deployFlags.buildCommand, "build-command", "", "Build command or npm script name; detected when empty")
	fl.BoolVar(&deployFlags.forceInstall, "force-install", false, "Install frontend dependencies even when node_modules exists")

	fl.StringVar(&deployFlags.host, "host", "", "Remote host")
	fl.IntVar(&deployFlags.port, "ssh-port", 22, "Remote SSH port")
	fl.StringVar(&deployFlags.user, "user", "", "Remote user")
	fl.StringVar(&deployFlags.password, "password", "", "SSH password")
	fl.StringVar(&deployFlags.keyPath, "key", "", "SSH private key file")
	fl.StringVar(&deployFlags.uploadPath, "upload-path", "", "Remote directory receiving the artifacts")
	fl.StringVar(&deployFlags.restartScript, "restart-script", "", "Remote restart script (backend)")
	fl.StringVar(&deployFlags.container, "container", "", "Docker container to restart when no restart script is set (backend)")
	fl.BoolVar(&deployFlags.nginxReload, "nginx-reload", false, "Test and reload nginx after upload (frontend)")

	fl.BoolVar(&deployFlags.skipPull, "skip-pull", false, "Skip the pull stage")
	fl.BoolVar(&deployFlags.skipBuild, "skip-build", false, "Skip the build stage")
	fl.BoolVar(&deployFlags.skipUpload, "skip-upload", false, "Skip the upload stage")
	fl.BoolVar(&deployFlags.skipRestart, "skip-restart", false, "Skip the restart stage")
}
