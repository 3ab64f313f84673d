package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/git"
	"github.com/yz4230/shipyard/internal/repository"
)

type ProjectInspection struct {
	Detection build.Detection  `json:"detection"`
	Artifacts []build.Artifact `json:"artifacts"`
	Branch    string           `json:"branch,omitempty"`
	Branches  []string         `json:"branches,omitempty"`
	Changes   []string         `json:"changes,omitempty"`
}

// DetectProjectUsecase reports how a project builds and the state of its working tree.
type DetectProjectUsecase interface {
	Execute(ctx context.Context, id entity.ID) (*ProjectInspection, error)
}

type detectProjectUsecaseImpl struct {
	projectRepository repository.ProjectRepository
	git               *git.Client
}

// Execute implements DetectProjectUsecase.
func (d *detectProjectUsecaseImpl) Execute(ctx context.Context, id entity.ID) (*ProjectInspection, error) {
	project, err := d.projectRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return InspectProject(ctx, d.git, project.Path)
}

// InspectProject detects the build of the project at path and, when it is a git
// checkout, lists its branches and uncommitted changes.
func InspectProject(ctx context.Context, g *git.Client, path string) (*ProjectInspection, error) {
	detection, err := build.Detect(path)
	if err != nil {
		return nil, err
	}
	artifacts, err := build.FindArtifacts(path, detection)
	if err != nil {
		return nil, err
	}
	res := &ProjectInspection{Detection: detection, Artifacts: artifacts}
	if g == nil || !g.IsRepository(ctx, path) {
		return res, nil
	}
	if res.Branch, err = g.CurrentBranch(ctx, path); err != nil {
		return nil, err
	}
	if res.Branches, err = g.Branches(ctx, path); err != nil {
		return nil, err
	}
	if res.Changes, err = g.Changes(ctx, path); err != nil {
		return nil, err
	}
	return res, nil
}

func NewDetectProjectUsecase(injector *do.Injector) (DetectProjectUsecase, error) {
	return &detectProjectUsecaseImpl{
		projectRepository: do.MustInvoke[repository.ProjectRepository](injector),
		git:               do.MustInvoke[*git.Client](injector),
	}, nil
}
