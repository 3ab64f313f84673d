package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type GetProjectByIdUsecase interface {
	Execute(ctx context.Context, id entity.ID) (*entity.Project, error)
}

type getProjectByIdUsecaseImpl struct {
	projectRepository repository.ProjectRepository
}

// Execute implements GetProjectByIdUsecase.
func (g *getProjectByIdUsecaseImpl) Execute(ctx context.Context, id entity.ID) (*entity.Project, error) {
	return g.projectRepository.GetByID(ctx, id)
}

func NewGetProjectByIdUsecase(injector *do.Injector) (GetProjectByIdUsecase, error) {
	return &getProjectByIdUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
	}, nil
}
