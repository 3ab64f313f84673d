package repository

import (
	"context"

	"github.com/samber/lo"
	"github.com/yz4230/shipyard/internal/entity"
	"gorm.io/gorm"
)

type DeploymentRepository interface {
	Create(ctx context.Context, dep *entity.Deployment) (*entity.Deployment, error)
	GetByID(ctx context.Context, id entity.ID) (*entity.Deployment, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Deployment, error)
	ListByProject(ctx context.Context, projectID entity.ID) ([]*entity.Deployment, error)
	UpdateFields(ctx context.Context, id entity.ID, patch entity.DeploymentPatch) error
	AppendLog(ctx context.Context, id entity.ID, line string) error
	Delete(ctx context.Context, id entity.ID) error
}

type deploymentRepositoryImpl struct {
	db *gorm.DB
}

func NewDeploymentRepository(db *gorm.DB) DeploymentRepository {
	return &deploymentRepositoryImpl{db: db}
}

// Create a new deployment record.
func (r *deploymentRepositoryImpl) Create(ctx context.Context, dep *entity.Deployment) (*entity.Deployment, error) {
	var model Deployment
	model.FromEntity(dep)
	if err := gorm.G[Deployment](r.db).Create(ctx, &model); err != nil {
		return nil, translate(err)
	}
	return model.ToEntity(), nil
}

// GetByID finds deployment by id.
func (r *deploymentRepositoryImpl) GetByID(ctx context.Context, id entity.ID) (*entity.Deployment, error) {
	found, err := gorm.G[Deployment](r.db).Where("id = ?", id.Uint()).First(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return found.ToEntity(), nil
}

// List returns deployments, newest first.
func (r *deploymentRepositoryImpl) List(ctx context.Context, limit, offset int) ([]*entity.Deployment, error) {
	q := gorm.G[Deployment](r.db).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	founds, err := q.Find(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(founds, func(f Deployment, _ int) *entity.Deployment { return f.ToEntity() }), nil
}

// ListByProject lists deployments belonging to a project.
func (r *deploymentRepositoryImpl) ListByProject(ctx context.Context, projectID entity.ID) ([]*entity.Deployment, error) {
	founds, err := gorm.G[Deployment](r.db).Where("project_id = ?", projectID.Uint()).Order("id desc").Find(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(founds, func(f Deployment, _ int) *entity.Deployment { return f.ToEntity() }), nil
}

// UpdateFields writes only the columns named by the patch.
func (r *deploymentRepositoryImpl) UpdateFields(ctx context.Context, id entity.ID, patch entity.DeploymentPatch) error {
	cols := patchColumns(patch)
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&Deployment{}).Where("id = ?", id.Uint()).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// AppendLog appends one line to the stored log without rewriting earlier lines.
func (r *deploymentRepositoryImpl) AppendLog(ctx context.Context, id entity.ID, line string) error {
	expr := gorm.Expr("CASE WHEN log_content IS NULL OR log_content = '' THEN ? ELSE log_content || ? END", line, "\n"+line)
	res := r.db.WithContext(ctx).Model(&Deployment{}).Where("id = ?", id.Uint()).UpdateColumn("log_content", expr)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// Delete deployment by id.
func (r *deploymentRepositoryImpl) Delete(ctx context.Context, id entity.ID) error {
	_, err := gorm.G[Deployment](r.db).Where("id = ?", id.Uint()).Delete(ctx)
	return err
}
