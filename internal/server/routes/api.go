package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/yz4230/shipyard/internal/build"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/pipeline"
	"github.com/yz4230/shipyard/internal/remote"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var connErr *remote.ConnectError
	switch {
	case errors.Is(err, entity.ErrNotFound), errors.Is(err, build.ErrBuildNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalid),
		errors.Is(err, pipeline.ErrConfig),
		errors.Is(err, remote.ErrNoCredential),
		errors.Is(err, remote.ErrAmbiguousCredential),
		errors.Is(err, build.ErrProjectPathMissing),
		errors.Is(err, build.ErrUnknownBuildType):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
	}
	return c.JSON(status, &errorResponse{Error: err.Error()})
}

// paramID reads a numeric id path parameter.
func paramID(c echo.Context, name string) (entity.ID, bool) {
	raw := c.Param(name)
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return "", false
	}
	return entity.ID(raw), true
}
