package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/config"
	"github.com/yz4230/shipyard/internal/credential"
	"github.com/yz4230/shipyard/internal/events"
	"github.com/yz4230/shipyard/internal/git"
	"github.com/yz4230/shipyard/internal/pipeline"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/repository"
	"github.com/yz4230/shipyard/internal/server/routes"
	"github.com/yz4230/shipyard/internal/usecase"
	"gorm.io/gorm"
)

type Config struct {
	App    *config.Config
	Logger zerolog.Logger
}

type Server struct {
	e        *echo.Echo
	config   *Config
	injector *do.Injector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(config *Config) *Server {
	e := echo.New()
	e.HidePort = true
	e.HideBanner = true
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogRemoteIP:  true,
		LogHost:      true,
		LogMethod:    true,
		LogURI:       true,
		LogUserAgent: true,
		LogStatus:    true,
		LogLatency:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			config.Logger.Info().
				Str("remote_ip", v.RemoteIP).
				Str("host", v.Host).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("user_agent", v.UserAgent).
				Int("status", v.Status).
				Int64("latency_ms", v.Latency.Milliseconds()).
				Msg("handled request")
			return nil
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			config.Logger.Error().Err(err).Bytes("stack", stack).Send()
			return err
		},
	}))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := config.Logger.WithContext(req.Context())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	})
	e.Use(echoprometheus.NewMiddleware("shipyard"))
	e.GET("/metrics", echoprometheus.NewHandler())
	if secret := config.App.Server.JWTSecret; secret != "" {
		e.Use(jwtMiddleware(secret))
	} else {
		config.Logger.Warn().Msg("server.jwt_secret is empty, API authentication disabled")
	}

	s := &Server{e: e, config: config}
	s.init()
	return s
}

func (s *Server) init() {
	injector := do.New()
	s.injectDependencies(injector)
	s.registerRoutes(injector)
	s.injector = injector
}

func (s *Server) injectDependencies(injector *do.Injector) {
	cfg := s.config.App
	log := s.config.Logger

	do.Provide(injector, func(i *do.Injector) (*gorm.DB, error) {
		return repository.NewDB(cfg.Database.Driver, cfg.Database.DSN)
	})
	do.Provide(injector, func(i *do.Injector) (repository.ProjectRepository, error) {
		return repository.NewProjectRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(injector, func(i *do.Injector) (repository.ServerRepository, error) {
		return repository.NewServerRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(injector, func(i *do.Injector) (repository.DeploymentRepository, error) {
		return repository.NewDeploymentRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(injector, func(i *do.Injector) (*credential.Provider, error) {
		return credential.NewProvider(cfg.Credentials.Secret)
	})
	do.Provide(injector, func(i *do.Injector) (*git.Client, error) {
		return git.New(0), nil
	})
	do.Provide(injector, func(i *do.Injector) (*build.Supervisor, error) {
		return build.NewSupervisor(build.Config{
			Timeout:      cfg.Build.Timeout,
			StopGrace:    cfg.Build.StopGrace,
			AllowedTools: cfg.Build.AllowedTools,
		}, log), nil
	})
	do.Provide(injector, func(i *do.Injector) (*remote.Manager, error) {
		dialer, err := remote.NewSSHDialer(cfg.SSH.ConnectTimeout, cfg.SSH.KnownHosts)
		if err != nil {
			return nil, err
		}
		return remote.NewManager(dialer, log, remote.WithProbeTimeout(cfg.SSH.ProbeTimeout)), nil
	})
	do.Provide(injector, func(i *do.Injector) (*events.Bus, error) {
		return events.NewBus(log), nil
	})
	do.Provide(injector, func(i *do.Injector) (*pipeline.Orchestrator, error) {
		return pipeline.New(pipeline.Deps{
			Store:       do.MustInvoke[repository.DeploymentRepository](i),
			VCS:         do.MustInvoke[*git.Client](i),
			Detector:    build.Detector{},
			Builder:     do.MustInvoke[*build.Supervisor](i),
			Sessions:    do.MustInvoke[*remote.Manager](i),
			Credentials: do.MustInvoke[*credential.Provider](i),
			Bus:         do.MustInvoke[*events.Bus](i),
		}, log)
	})
	do.Provide(injector, usecase.NewCreateProjectUsecase)
	do.Provide(injector, usecase.NewCheckProjectNameUsecase)
	do.Provide(injector, usecase.NewGetProjectByIdUsecase)
	do.Provide(injector, usecase.NewListProjectUsecase)
	do.Provide(injector, usecase.NewDetectProjectUsecase)
	do.Provide(injector, usecase.NewCleanProjectUsecase)
	do.Provide(injector, usecase.NewCreateServerUsecase)
	do.Provide(injector, usecase.NewListServerUsecase)
	do.Provide(injector, usecase.NewTestServerConnectionUsecase)
	do.Provide(injector, usecase.NewStartDeploymentUsecase)
	do.Provide(injector, usecase.NewGetDeploymentByIdUsecase)
	do.Provide(injector, usecase.NewListDeploymentUsecase)
	do.Provide(injector, usecase.NewStopBuildUsecase)
	do.Provide(injector, usecase.NewListActiveBuildUsecase)
}

func (s *Server) registerRoutes(injector *do.Injector) {
	routes.RegisterMisc(injector, s.e)
	routes.RegisterRestAPI(injector, s.e)
	routes.RegisterDeploymentAPI(injector, s.e)
	routes.RegisterStream(injector, s.e)
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() *echo.Echo { return s.e }

func (s *Server) Start() error {
	// fail before listening when the database or ssh settings are broken
	if _, err := do.Invoke[*pipeline.Orchestrator](s.injector); err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	manager := do.MustInvoke[*remote.Manager](s.injector)
	ssh := s.config.App.SSH
	s.wg.Go(func() { manager.RunEvictionLoop(ctx, ssh.EvictInterval, ssh.IdleTimeout) })

	addr := fmt.Sprintf(":%d", s.config.App.Server.Port)
	s.config.Logger.Info().Str("addr", addr).Msg("starting server")
	return s.e.Start(addr)
}

// Stop shuts the HTTP server down, cancels running deployments and closes every cached
// SSH session.
func (s *Server) Stop(ctx context.Context) error {
	errs := []error{s.e.Shutdown(ctx)}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if orch, err := do.Invoke[*pipeline.Orchestrator](s.injector); err == nil {
		errs = append(errs, orch.Shutdown(ctx))
	}
	if manager, err := do.Invoke[*remote.Manager](s.injector); err == nil {
		n := manager.CloseAll()
		s.config.Logger.Info().Int("sessions", n).Msg("closed ssh sessions")
	}
	return errors.Join(errs...)
}
