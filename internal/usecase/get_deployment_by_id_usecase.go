package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type GetDeploymentByIdUsecase interface {
	Execute(ctx context.Context, id entity.ID) (*entity.Deployment, error)
}

type getDeploymentByIdUsecaseImpl struct {
	deploymentRepository repository.DeploymentRepository
}

// Execute implements GetDeploymentByIdUsecase.
func (g *getDeploymentByIdUsecaseImpl) Execute(ctx context.Context, id entity.ID) (*entity.Deployment, error) {
	return g.deploymentRepository.GetByID(ctx, id)
}

func NewGetDeploymentByIdUsecase(injector *do.Injector) (GetDeploymentByIdUsecase, error) {
	return &getDeploymentByIdUsecaseImpl{
		deploymentRepository: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
