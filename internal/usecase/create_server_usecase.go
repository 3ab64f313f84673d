package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/credential"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

// CreateServerUsecase stores a deployment target. Secrets are sealed before they reach
// the database.
type CreateServerUsecase interface {
	Execute(ctx context.Context, server *entity.Server) (*entity.Server, error)
}

type createServerUsecaseImpl struct {
	serverRepository repository.ServerRepository
	credentials      *credential.Provider
}

// Execute implements CreateServerUsecase.
func (c *createServerUsecaseImpl) Execute(ctx context.Context, server *entity.Server) (*entity.Server, error) {
	server.FillDefaults()
	if err := server.Validate(); err != nil {
		return nil, err
	}
	if server.Password == "" && server.PrivateKeyPath == "" {
		return nil, entity.ErrInvalid
	}
	var err error
	if server.Password, err = c.credentials.Seal(server.Password); err != nil {
		return nil, err
	}
	if server.KeyPassphrase, err = c.credentials.Seal(server.KeyPassphrase); err != nil {
		return nil, err
	}
	return c.serverRepository.Create(ctx, server)
}

func NewCreateServerUsecase(injector *do.Injector) (CreateServerUsecase, error) {
	return &createServerUsecaseImpl{
		serverRepository: do.MustInvoke[repository.ServerRepository](injector),
		credentials:      do.MustInvoke[*credential.Provider](injector),
	}, nil
}
