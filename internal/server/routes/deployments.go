package routes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/usecase"
)

func RegisterDeploymentAPI(injector *do.Injector, e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/deployments", func(c echo.Context) error {
		type request struct {
			ProjectID    entity.ID            `json:"project_id"`
			ServerID     entity.ID            `json:"server_id"`
			DeployType   entity.DeployType    `json:"deploy_type"`
			Branch       string               `json:"branch"`
			Stages       *entity.StageToggles `json:"stages"`
			Description  string               `json:"description"`
			BuildCommand string               `json:"build_command"`
			ForceInstall bool                 `json:"force_install"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		if _, err := strconv.ParseUint(req.ProjectID.String(), 10, 64); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		if _, err := strconv.ParseUint(req.ServerID.String(), 10, 64); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		stages := entity.AllStages()
		if req.Stages != nil {
			stages = *req.Stages
		}

		start := do.MustInvoke[usecase.StartDeploymentUsecase](injector)
		id, err := start.Execute(c.Request().Context(), usecase.StartDeploymentInput{
			ProjectID:    req.ProjectID,
			ServerID:     req.ServerID,
			DeployType:   req.DeployType,
			Branch:       req.Branch,
			Stages:       stages,
			Description:  req.Description,
			BuildCommand: req.BuildCommand,
			ForceInstall: req.ForceInstall,
		})
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			DeploymentID entity.ID `json:"deployment_id"`
			Message      string    `json:"message"`
		}
		return c.JSON(http.StatusAccepted, &response{DeploymentID: id, Message: "deployment started"})
	})
	g.GET("/deployments", func(c echo.Context) error {
		projectID := c.QueryParam("project_id")
		if _, err := strconv.ParseUint(projectID, 10, 64); projectID != "" && err != nil {
			return c.NoContent(http.StatusBadRequest)
		}
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))
		usecase := do.MustInvoke[usecase.ListDeploymentUsecase](injector)
		deployments, err := usecase.Execute(c.Request().Context(), entity.ID(projectID), limit, offset)
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			Deployments []*entity.Deployment `json:"deployments"`
		}
		result := &response{Deployments: make([]*entity.Deployment, len(deployments))}
		copy(result.Deployments, deployments)
		return c.JSON(http.StatusOK, result)
	})
	g.GET("/deployments/:id", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.GetDeploymentByIdUsecase](injector)
		deployment, err := usecase.Execute(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, deployment)
	})

	g.GET("/builds", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.ListActiveBuildUsecase](injector)
		type response struct {
			Builds []build.ActiveBuild `json:"builds"`
		}
		return c.JSON(http.StatusOK, &response{Builds: usecase.Execute(c.Request().Context())})
	})
	g.POST("/builds/:id/stop", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.StopBuildUsecase](injector)
		if err := usecase.Execute(c.Request().Context(), c.Param("id")); err != nil {
			return respondError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	})
}
