package usecase

import (
	"context"
	"errors"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/repository"
)

type CheckProjectNameUsecase interface {
	Execute(ctx context.Context, name string) (bool, error)
}

type checkProjectNameUsecaseImpl struct {
	projectRepository repository.ProjectRepository
}

func (c *checkProjectNameUsecaseImpl) Execute(ctx context.Context, name string) (bool, error) {
	_, err := c.projectRepository.GetByName(ctx, name)
	if errors.Is(err, entity.ErrNotFound) {
		return true, nil
	}
	return false, err
}

func NewCheckProjectNameUsecase(i *do.Injector) (CheckProjectNameUsecase, error) {
	return &checkProjectNameUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](i),
	}, nil
}
