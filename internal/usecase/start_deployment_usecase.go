package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/pipeline"
	"github.com/yz4230/shipyard/internal/repository"
)

type StartDeploymentInput struct {
	ProjectID    entity.ID
	ServerID     entity.ID
	DeployType   entity.DeployType
	Branch       string
	Stages       entity.StageToggles
	Description  string
	BuildCommand string
	ForceInstall bool
}

type StartDeploymentUsecase interface {
	Execute(ctx context.Context, in StartDeploymentInput) (entity.ID, error)
}

type startDeploymentUsecaseImpl struct {
	projectRepository repository.ProjectRepository
	serverRepository  repository.ServerRepository
	orchestrator      *pipeline.Orchestrator
}

// Execute implements StartDeploymentUsecase.
func (s *startDeploymentUsecaseImpl) Execute(ctx context.Context, in StartDeploymentInput) (entity.ID, error) {
	project, err := s.projectRepository.GetByID(ctx, in.ProjectID)
	if err != nil {
		return "", err
	}
	server, err := s.serverRepository.GetByID(ctx, in.ServerID)
	if err != nil {
		return "", err
	}
	return s.orchestrator.StartRun(ctx, pipeline.RunRequest{
		Project:      project,
		Server:       server,
		DeployType:   in.DeployType,
		Branch:       in.Branch,
		Stages:       in.Stages,
		Description:  in.Description,
		BuildCommand: in.BuildCommand,
		ForceInstall: in.ForceInstall,
	})
}

func NewStartDeploymentUsecase(injector *do.Injector) (StartDeploymentUsecase, error) {
	return &startDeploymentUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
		serverRepository:  do.MustInvoke[repository.ServerRepository](injector),
		orchestrator:      do.MustInvoke[*pipeline.Orchestrator](injector),
	}, nil
}
