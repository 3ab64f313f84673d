package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type ListProjectUsecase interface {
	Execute(ctx context.Context) ([]*entity.Project, error)
}

type listProjectUsecaseImpl struct {
	projectRepository repository.ProjectRepository
}

// Execute implements ListProjectUsecase.
func (l *listProjectUsecaseImpl) Execute(ctx context.Context) ([]*entity.Project, error) {
	return l.projectRepository.List(ctx)
}

func NewListProjectUsecase(injector *do.Injector) (ListProjectUsecase, error) {
	return &listProjectUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
	}, nil
}
