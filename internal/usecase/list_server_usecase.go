package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type ListServerUsecase interface {
	Execute(ctx context.Context) ([]*entity.Server, error)
}

type listServerUsecaseImpl struct {
	serverRepository repository.ServerRepository
}

// Execute implements ListServerUsecase.
func (l *listServerUsecaseImpl) Execute(ctx context.Context) ([]*entity.Server, error) {
	return l.serverRepository.List(ctx)
}

func NewListServerUsecase(injector *do.Injector) (ListServerUsecase, error) {
	return &listServerUsecaseImpl{
		serverRepository: do.MustInvoke[repository.ServerRepository](injector),
	}, nil
}
