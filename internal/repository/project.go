package repository

import (
	"context"

	"github.com/samber/lo"
	"github.com/yz4230/shipyard/internal/entity"
	"gorm.io/gorm"
)

type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) (*entity.Project, error)
	GetByID(ctx context.Context, id entity.ID) (*entity.Project, error)
	GetByName(ctx context.Context, name string) (*entity.Project, error)
	List(ctx context.Context) ([]*entity.Project, error)
	Update(ctx context.Context, project *entity.Project) (*entity.Project, error)
	Delete(ctx context.Context, id entity.ID) error
}

type ProjectRepositoryImpl struct {
	db *gorm.DB
}

// Create implements ProjectRepository.
func (r *ProjectRepositoryImpl) Create(ctx context.Context, project *entity.Project) (*entity.Project, error) {
	var model Project
	model.FromEntity(project)
	if err := gorm.G[Project](r.db).Create(ctx, &model); err != nil {
		return nil, translate(err)
	}
	return model.ToEntity(), nil
}

// GetByID implements ProjectRepository.
func (r *ProjectRepositoryImpl) GetByID(ctx context.Context, id entity.ID) (*entity.Project, error) {
	found, err := gorm.G[Project](r.db).Where("id = ?", id.Uint()).First(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return found.ToEntity(), nil
}

// GetByName implements ProjectRepository.
func (r *ProjectRepositoryImpl) GetByName(ctx context.Context, name string) (*entity.Project, error) {
	found, err := gorm.G[Project](r.db).Where("name = ?", name).First(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return found.ToEntity(), nil
}

// List implements ProjectRepository.
func (r *ProjectRepositoryImpl) List(ctx context.Context) ([]*entity.Project, error) {
	founds, err := gorm.G[Project](r.db).Find(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(founds, func(f Project, _ int) *entity.Project { return f.ToEntity() }), nil
}

// Update implements ProjectRepository.
func (r *ProjectRepositoryImpl) Update(ctx context.Context, project *entity.Project) (*entity.Project, error) {
	var model Project
	model.FromEntity(project)
	if _, err := gorm.G[Project](r.db).Where("id = ?", project.ID.Uint()).Updates(ctx, model); err != nil {
		return nil, translate(err)
	}
	return r.GetByID(ctx, project.ID)
}

// Delete implements ProjectRepository.
func (r *ProjectRepositoryImpl) Delete(ctx context.Context, id entity.ID) error {
	_, err := gorm.G[Project](r.db).Where("id = ?", id.Uint()).Delete(ctx)
	return err
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &ProjectRepositoryImpl{db: db}
}
