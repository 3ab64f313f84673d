package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/shipyard/internal/credential"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/git"
	"github.com/yz4230/shipyard/internal/repository"
	"gorm.io/gorm"
)

func newInjector(t *testing.T) *do.Injector {
	t.Helper()
	i := do.New()
	do.Provide(i, func(*do.Injector) (*gorm.DB, error) {
		return repository.NewSQLiteDB(":memory:")
	})
	do.Provide(i, func(i *do.Injector) (repository.ProjectRepository, error) {
		return repository.NewProjectRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(i, func(i *do.Injector) (repository.ServerRepository, error) {
		return repository.NewServerRepository(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(i, func(*do.Injector) (*credential.Provider, error) {
		return credential.NewProvider("test-secret")
	})
	do.Provide(i, func(*do.Injector) (*git.Client, error) {
		return git.New(0), nil
	})
	do.Provide(i, NewCreateProjectUsecase)
	do.Provide(i, NewCheckProjectNameUsecase)
	do.Provide(i, NewDetectProjectUsecase)
	do.Provide(i, NewCreateServerUsecase)
	do.Provide(i, NewListServerUsecase)
	return i
}

func TestCreateProject(t *testing.T) {
	i := newInjector(t)
	ctx := context.Background()
	create := do.MustInvoke[CreateProjectUsecase](i)
	check := do.MustInvoke[CheckProjectNameUsecase](i)

	available, err := check.Execute(ctx, "api")
	require.NoError(t, err)
	assert.True(t, available)

	p, err := create.Execute(ctx, &entity.Project{Name: "api", Path: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "main", p.Branch)
	assert.Equal(t, entity.DeployTypeBackend, p.Type)
	assert.True(t, filepath.IsAbs(p.Path))

	available, err = check.Execute(ctx, "api")
	require.NoError(t, err)
	assert.False(t, available)

	_, err = create.Execute(ctx, &entity.Project{Name: "api", Path: t.TempDir()})
	assert.ErrorIs(t, err, entity.ErrConflict)

	_, err = create.Execute(ctx, &entity.Project{Name: "web", Path: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, entity.ErrInvalid)
}

func TestCreateServer_SealsSecrets(t *testing.T) {
	i := newInjector(t)
	ctx := context.Background()
	create := do.MustInvoke[CreateServerUsecase](i)

	s, err := create.Execute(ctx, &entity.Server{Name: "web-1", Host: "10.0.0.5", Username: "deploy", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, 22, s.Port)

	servers, err := do.MustInvoke[ListServerUsecase](i).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.True(t, strings.HasPrefix(servers[0].Password, "enc:"))

	auth, err := do.MustInvoke[*credential.Provider](i).Resolve(ctx, servers[0])
	require.NoError(t, err)
	assert.Equal(t, "hunter2", auth.Password)

	_, err = create.Execute(ctx, &entity.Server{Name: "web-2", Host: "10.0.0.6", Username: "deploy"})
	assert.ErrorIs(t, err, entity.ErrInvalid)
}

func TestDetectProject(t *testing.T) {
	i := newInjector(t)
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pom.xml"), []byte("<project/>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "app.jar"), []byte("jar"), 0o644))

	p, err := do.MustInvoke[CreateProjectUsecase](i).Execute(ctx, &entity.Project{Name: "api", Path: dir})
	require.NoError(t, err)

	res, err := do.MustInvoke[DetectProjectUsecase](i).Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "mvn clean package -Dmaven.test.skip=true", res.Detection.BuildCommand)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "app.jar", res.Artifacts[0].Name)
	assert.Empty(t, res.Branch)

	_, err = do.MustInvoke[DetectProjectUsecase](i).Execute(ctx, "999")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
