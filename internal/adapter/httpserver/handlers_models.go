package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/streamcave/overlay-api/internal/domain"
	apperrors "github.com/streamcave/overlay-api/internal/platform/errors"
)

func (s *Server) registerModelRoutes() {
	s.echo.GET("/api/models", s.handleListModels)
	s.echo.GET("/api/models/:uuid", s.handleGetModel)
}

func (s *Server) handleListModels(c echo.Context) error {
	models, err := s.models.ListModels(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to list models", err)
	}
	if err := c.JSON(http.StatusOK, models); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) handleGetModel(c echo.Context) error {
	slug := c.Param("uuid")

	model, err := s.models.GetModel(c.Request().Context(), slug)
	if errors.Is(err, domain.ErrModelNotFound) {
		return apperrors.NotFoundError("model not found").WithField("model", slug)
	}
	if err != nil {
		return apperrors.InternalError("failed to load model", err).WithField("model", slug)
	}

	if err := c.JSON(http.StatusOK, model); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
