package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/shipyard/internal/entity"
)

func newTestRepos(t *testing.T) (ProjectRepository, ServerRepository, DeploymentRepository) {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	require.NoError(t, err)
	return NewProjectRepository(db), NewServerRepository(db), NewDeploymentRepository(db)
}

func TestDeploymentRepository_UpdateFieldsAndAppendLog(t *testing.T) {
	ctx := context.Background()
	projects, servers, deployments := newTestRepos(t)

	project, err := projects.Create(ctx, &entity.Project{Name: "shop", Type: entity.DeployTypeFrontend, Path: "/src/shop"})
	require.NoError(t, err)
	server, err := servers.Create(ctx, &entity.Server{Name: "web-1", Host: "10.0.0.1", Port: 22, Username: "deploy"})
	require.NoError(t, err)

	dep, err := deployments.Create(ctx, &entity.Deployment{
		ProjectID:     project.ID,
		ServerID:      server.ID,
		DeployType:    entity.DeployTypeFrontend,
		Stages:        entity.AllStages(),
		PullResult:    entity.StageResultSkipped,
		BuildResult:   entity.StageResultSkipped,
		UploadResult:  entity.StageResultSkipped,
		RestartResult: entity.StageResultSkipped,
		Status:        entity.DeploymentStatusRunning,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, dep.ID)
	assert.Empty(t, dep.Logs)

	require.NoError(t, deployments.AppendLog(ctx, dep.ID, "first"))
	require.NoError(t, deployments.AppendLog(ctx, dep.ID, "second"))
	require.NoError(t, deployments.UpdateFields(ctx, dep.ID, entity.DeploymentPatch{
		Stage:  entity.StageBuild,
		Result: entity.StageResultSuccess,
	}))

	status := entity.DeploymentStatusFailed
	msg := "upload failed"
	ended := time.Now()
	require.NoError(t, deployments.UpdateFields(ctx, dep.ID, entity.DeploymentPatch{
		Status:       &status,
		ErrorMessage: &msg,
		EndedAt:      &ended,
	}))

	got, err := deployments.GetByID(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, got.Logs)
	assert.Equal(t, entity.StageResultSuccess, got.BuildResult)
	assert.Equal(t, entity.StageResultSkipped, got.UploadResult)
	assert.Equal(t, entity.DeploymentStatusFailed, got.Status)
	assert.Equal(t, "upload failed", got.ErrorMessage)
	require.NotNil(t, got.EndedAt)
	assert.True(t, got.Stages.Restart)
}

func TestDeploymentRepository_MissingRecord(t *testing.T) {
	ctx := context.Background()
	_, _, deployments := newTestRepos(t)

	_, err := deployments.GetByID(ctx, entity.NewID(uint(42)))
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, deployments.AppendLog(ctx, entity.NewID(uint(42)), "x"), entity.ErrNotFound)
}

func TestDeploymentRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	_, _, deployments := newTestRepos(t)

	for i := 1; i <= 3; i++ {
		_, err := deployments.Create(ctx, &entity.Deployment{
			ProjectID: entity.NewID(uint(1)),
			ServerID:  entity.NewID(uint(1)),
			Status:    entity.DeploymentStatusRunning,
		})
		require.NoError(t, err)
	}

	list, err := deployments.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, entity.NewID(uint(3)), list[0].ID)
	assert.Equal(t, entity.NewID(uint(2)), list[1].ID)

	byProject, err := deployments.ListByProject(ctx, entity.NewID(uint(1)))
	require.NoError(t, err)
	assert.Len(t, byProject, 3)
}

func TestProjectRepository_DuplicateName(t *testing.T) {
	ctx := context.Background()
	projects, _, _ := newTestRepos(t)

	_, err := projects.Create(ctx, &entity.Project{Name: "api", Type: entity.DeployTypeBackend, Path: "/src/api"})
	require.NoError(t, err)
	_, err = projects.Create(ctx, &entity.Project{Name: "api", Type: entity.DeployTypeBackend, Path: "/src/api2"})
	assert.ErrorIs(t, err, entity.ErrConflict)

	found, err := projects.GetByName(ctx, "api")
	require.NoError(t, err)
	assert.Equal(t, "/src/api", found.Path)
}
