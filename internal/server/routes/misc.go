package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/do"
	"github.com/yz4230/shipyard/internal/build"
)

func RegisterMisc(injector *do.Injector, e *echo.Echo) {
	e.GET("/api/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/api/tools", func(c echo.Context) error {
		supervisor := do.MustInvoke[*build.Supervisor](injector)
		type response struct {
			Tools map[string]bool `json:"tools"`
		}
		return c.JSON(http.StatusOK, &response{Tools: build.CheckTools(supervisor.AllowedTools())})
	})
}
