package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

const maxDeploymentPage = 100

// ListDeploymentUsecase lists deployments newest first, optionally for one project.
type ListDeploymentUsecase interface {
	Execute(ctx context.Context, projectID entity.ID, limit, offset int) ([]*entity.Deployment, error)
}

type listDeploymentUsecaseImpl struct {
	deploymentRepository repository.DeploymentRepository
}

// Execute implements ListDeploymentUsecase.
func (l *listDeploymentUsecaseImpl) Execute(ctx context.Context, projectID entity.ID, limit, offset int) ([]*entity.Deployment, error) {
	if projectID != "" {
		return l.deploymentRepository.ListByProject(ctx, projectID)
	}
	if limit <= 0 || limit > maxDeploymentPage {
		limit = maxDeploymentPage
	}
	return l.deploymentRepository.List(ctx, limit, max(offset, 0))
}

func NewListDeploymentUsecase(injector *do.Injector) (ListDeploymentUsecase, error) {
	return &listDeploymentUsecaseImpl{
		deploymentRepository: do.MustInvoke[repository.DeploymentRepository](injector),
	}, nil
}
