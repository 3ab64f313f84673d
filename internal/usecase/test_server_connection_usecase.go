package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/credential"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/remote"
	"github.com/yz4230/shipyard/internal/repository"
)

// TestServerConnectionUsecase opens (or reuses) the session of a server and returns the
// remote user name.
type TestServerConnectionUsecase interface {
	Execute(ctx context.Context, id entity.ID) (string, error)
}

type testServerConnectionUsecaseImpl struct {
	serverRepository repository.ServerRepository
	credentials      *credential.Provider
	sessions         *remote.Manager
}

// Execute implements TestServerConnectionUsecase.
func (t *testServerConnectionUsecaseImpl) Execute(ctx context.Context, id entity.ID) (string, error) {
	server, err := t.serverRepository.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	auth, err := t.credentials.Resolve(ctx, server)
	if err != nil {
		return "", err
	}
	ep := remote.Endpoint{Host: server.Host, Port: server.Port, User: server.Username}
	s, err := t.sessions.Acquire(ctx, ep, auth)
	if err != nil {
		return "", err
	}
	defer t.sessions.Release(ep, s)
	return remote.TestConnection(ctx, s)
}

func NewTestServerConnectionUsecase(injector *do.Injector) (TestServerConnectionUsecase, error) {
	return &testServerConnectionUsecaseImpl{
		serverRepository: do.MustInvoke[repository.ServerRepository](injector),
		credentials:      do.MustInvoke[*credential.Provider](injector),
		sessions:         do.MustInvoke[*remote.Manager](injector),
	}, nil
}
