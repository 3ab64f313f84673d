package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/usecase"
)

func RegisterRestAPI(injector *do.Injector, e *echo.Echo) {
	g := e.Group("/api")

	g.POST("/projects/check-name", func(c echo.Context) error {
		type request struct {
			Name string `json:"name"`
		}
		var req request
		if err := c.Bind(&req); err != nil || req.Name == "" {
			return c.NoContent(http.StatusBadRequest)
		}
		usecase := do.MustInvoke[usecase.CheckProjectNameUsecase](injector)
		available, err := usecase.Execute(c.Request().Context(), req.Name)
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			Name      string `json:"name"`
			Available bool   `json:"available"`
		}
		return c.JSON(http.StatusOK, &response{Name: req.Name, Available: available})
	})
	g.POST("/projects", func(c echo.Context) error {
		type request struct {
			Name         string            `json:"name"`
			Type         entity.DeployType `json:"type"`
			Path         string            `json:"path"`
			Branch       string            `json:"branch"`
			BuildCommand string            `json:"build_command"`
			Description  string            `json:"description"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		usecase := do.MustInvoke[usecase.CreateProjectUsecase](injector)
		project, err := usecase.Execute(c.Request().Context(), &entity.Project{
			Name:         req.Name,
			Type:         req.Type,
			Path:         req.Path,
			Branch:       req.Branch,
			BuildCommand: req.BuildCommand,
			Description:  req.Description,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, project)
	})
	g.GET("/projects", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.ListProjectUsecase](injector)
		projects, err := usecase.Execute(c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			Projects []*entity.Project `json:"projects"`
		}
		result := &response{Projects: make([]*entity.Project, len(projects))}
		copy(result.Projects, projects)
		return c.JSON(http.StatusOK, result)
	})
	g.GET("/projects/:id", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.GetProjectByIdUsecase](injector)
		project, err := usecase.Execute(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, project)
	})
	g.GET("/projects/:id/detect", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.DetectProjectUsecase](injector)
		res, err := usecase.Execute(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	})
	g.POST("/projects/:id/clean", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.CleanProjectUsecase](injector)
		output, err := usecase.Execute(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			Output []string `json:"output"`
		}
		return c.JSON(http.StatusOK, &response{Output: output})
	})

	g.POST("/servers", func(c echo.Context) error {
		type request struct {
			Name               string `json:"name"`
			Host               string `json:"host"`
			Port               int    `json:"port"`
			Username           string `json:"username"`
			Password           string `json:"password"`
			PrivateKeyPath     string `json:"private_key_path"`
			KeyPassphrase      string `json:"key_passphrase"`
			BackendUploadPath  string `json:"backend_upload_path"`
			FrontendUploadPath string `json:"frontend_upload_path"`
			RestartScriptPath  string `json:"restart_script_path"`
			DockerContainer    string `json:"docker_container"`
			NginxReload        bool   `json:"nginx_reload"`
		}
		var req request
		if err := c.Bind(&req); err != nil {
			return c.NoContent(http.StatusBadRequest)
		}

		usecase := do.MustInvoke[usecase.CreateServerUsecase](injector)
		server, err := usecase.Execute(c.Request().Context(), &entity.Server{
			Name:               req.Name,
			Host:               req.Host,
			Port:               req.Port,
			Username:           req.Username,
			Password:           req.Password,
			PrivateKeyPath:     req.PrivateKeyPath,
			KeyPassphrase:      req.KeyPassphrase,
			BackendUploadPath:  req.BackendUploadPath,
			FrontendUploadPath: req.FrontendUploadPath,
			RestartScriptPath:  req.RestartScriptPath,
			DockerContainer:    req.DockerContainer,
			NginxReload:        req.NginxReload,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusCreated, server)
	})
	g.GET("/servers", func(c echo.Context) error {
		usecase := do.MustInvoke[usecase.ListServerUsecase](injector)
		servers, err := usecase.Execute(c.Request().Context())
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			Servers []*entity.Server `json:"servers"`
		}
		result := &response{Servers: make([]*entity.Server, len(servers))}
		copy(result.Servers, servers)
		return c.JSON(http.StatusOK, result)
	})
	g.POST("/servers/:id/test", func(c echo.Context) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.NoContent(http.StatusNotFound)
		}
		usecase := do.MustInvoke[usecase.TestServerConnectionUsecase](injector)
		user, err := usecase.Execute(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err)
		}

		type response struct {
			User string `json:"user"`
		}
		return c.JSON(http.StatusOK, &response{User: user})
	})
}
