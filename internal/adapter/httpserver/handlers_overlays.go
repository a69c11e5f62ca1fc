package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/streamcave/overlay-api/internal/domain"
	apperrors "github.com/streamcave/overlay-api/internal/platform/errors"
)

type overlayResponse struct {
	domain.Overlay
	Role string `json:"role"`
}

func (s *Server) registerOverlayRoutes() {
	s.echo.GET("/api/overlays", s.handleListOverlays, s.requireAccessToken)
	s.echo.GET("/api/overlays/:uuid", s.handleGetOverlay, s.requireAccessToken)
}

// currentMember resolves the Discord id overlays are shared by.
func (s *Server) currentMember(c echo.Context) (string, error) {
	holder, err := s.currentHolder(c)
	if err != nil {
		return "", err
	}
	return holder.DiscordID, nil
}

func (s *Server) handleListOverlays(c echo.Context) error {
	member, err := s.currentMember(c)
	if err != nil {
		return err
	}

	overlays, err := s.overlays.OverlaysFor(c.Request().Context(), member)
	if err != nil {
		return apperrors.InternalError("failed to list overlays", err)
	}

	resp := make([]overlayResponse, 0, len(overlays))
	for _, o := range overlays {
		resp = append(resp, overlayResponse{Overlay: o, Role: o.Role(member)})
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// handleGetOverlay answers 404 for overlays the caller cannot see, so their
// existence is not disclosed.
func (s *Server) handleGetOverlay(c echo.Context) error {
	id := c.Param("uuid")

	member, err := s.currentMember(c)
	if err != nil {
		return err
	}

	overlay, err := s.overlays.GetOverlay(c.Request().Context(), id)
	if err != nil && !errors.Is(err, domain.ErrOverlayNotFound) {
		return apperrors.InternalError("failed to load overlay", err).WithField("overlay", id)
	}
	if overlay == nil || !overlay.VisibleTo(member) {
		return apperrors.NotFoundError("overlay not found").WithField("overlay", id)
	}

	resp := overlayResponse{Overlay: *overlay, Role: overlay.Role(member)}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
