package usecase

import (
	"context"
	"sync"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

// CleanProjectUsecase removes the build outputs of a project and returns the output of
// the clean command.
type CleanProjectUsecase interface {
	Execute(ctx context.Context, id entity.ID) ([]string, error)
}

type cleanProjectUsecaseImpl struct {
	projectRepository repository.ProjectRepository
	supervisor        *build.Supervisor
}

// Execute implements CleanProjectUsecase.
func (c *cleanProjectUsecaseImpl) Execute(ctx context.Context, id entity.ID) ([]string, error) {
	project, err := c.projectRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detection, err := build.Detect(project.Path)
	if err != nil {
		return nil, err
	}
	var (
		mu     sync.Mutex
		output []string
	)
	err = c.supervisor.Clean(ctx, project.Path, detection, func(chunk build.LogChunk) {
		mu.Lock()
		defer mu.Unlock()
		output = append(output, chunk.Text)
	})
	return output, err
}

func NewCleanProjectUsecase(injector *do.Injector) (CleanProjectUsecase, error) {
	return &cleanProjectUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
		supervisor:        do.MustInvoke[*build.Supervisor](injector),
	}, nil
}
