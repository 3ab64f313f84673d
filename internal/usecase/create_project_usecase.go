package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type CreateProjectUsecase interface {
	Execute(ctx context.Context, project *entity.Project) (*entity.Project, error)
}

type createProjectUsecaseImpl struct {
	projectRepository repository.ProjectRepository
}

// Execute implements CreateProjectUsecase.
func (c *createProjectUsecaseImpl) Execute(ctx context.Context, project *entity.Project) (*entity.Project, error) {
	project.FillDefaults()
	if err := project.Validate(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(project.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalid, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: project path %s is not a directory", entity.ErrInvalid, abs)
	}
	project.Path = abs
	return c.projectRepository.Create(ctx, project)
}

func NewCreateProjectUsecase(injector *do.Injector) (CreateProjectUsecase, error) {
	return &createProjectUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
	}, nil
}
