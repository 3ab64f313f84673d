package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/pipeline"
)

type ListActiveBuildUsecase interface {
	Execute(ctx context.Context) []build.ActiveBuild
}

type listActiveBuildUsecaseImpl struct {
	orchestrator *pipeline.Orchestrator
}

// Execute implements ListActiveBuildUsecase.
func (l *listActiveBuildUsecaseImpl) Execute(context.Context) []build.ActiveBuild {
	return l.orchestrator.ActiveBuilds()
}

func NewListActiveBuildUsecase(injector *do.Injector) (ListActiveBuildUsecase, error) {
	return &listActiveBuildUsecaseImpl{
		orchestrator: do.MustInvoke[*pipeline.Orchestrator](injector),
	}, nil
}
