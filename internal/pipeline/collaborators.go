package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/storage"
)

// ErrConfig marks failures caused by missing or invalid project or server settings.
// They are raised before any remote interaction.
var ErrConfig = errors.New("configuration error")

// Store persists deployment records.
type Store interface {
	Create(ctx context.Context, dep *entity.Deployment) (*entity.Deployment, error)
	storage.Writer
}

type VCS interface {
	Pull(ctx context.Context, dir, branch string) error
}

type Detector interface {
	Detect(projectPath string) (build.Detection, error)
}

// Builder runs build commands. *build.Supervisor implements it.
type Builder interface {
	Run(ctx context.Context, req build.Request) build.Outcome
	Stop(buildID string) error
	ListActive() []build.ActiveBuild
	AllowedTools() []string
}

// Sessions hands out authenticated remote sessions. *remote.Manager implements it.
type Sessions interface {
	Acquire(ctx context.Context, ep remote.Endpoint, auth remote.Auth) (remote.Session, error)
	Release(ep remote.Endpoint, s remote.Session)
}

// Credentials resolves the SSH credential of a server.
type Credentials interface {
	Resolve(ctx context.Context, server *entity.Server) (remote.Auth, error)
}

// ContainerRestarter restarts a docker container on the host behind s.
type ContainerRestarter func(ctx context.Context, s remote.Session, name string, stopTimeout time.Duration) error
