package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/pipeline"
)

type StopBuildUsecase interface {
	Execute(ctx context.Context, buildID string) error
}

type stopBuildUsecaseImpl struct {
	orchestrator *pipeline.Orchestrator
}

// Execute implements StopBuildUsecase.
func (s *stopBuildUsecaseImpl) Execute(_ context.Context, buildID string) error {
	return s.orchestrator.StopBuild(buildID)
}

func NewStopBuildUsecase(injector *do.Injector) (StopBuildUsecase, error) {
	return &stopBuildUsecaseImpl{
		orchestrator: do.MustInvoke[*pipeline.Orchestrator](injector),
	}, nil
}
