package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/streamcave/overlay-api/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 5 * time.Second

const (
	statusReady     = "ready"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthCheck checks one backing service. A failing Optional check degrades
// readiness without failing it.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

type livenessResponse struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime"`
	Version string  `json:"version"`
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Optional  bool   `json:"optional,omitempty"`
}

type readinessResponse struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	resp := livenessResponse{
		Status:  "ok",
		Uptime:  s.clock.Since(s.startTime).Seconds(),
		Version: version.Version,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// runHealthChecks runs every check concurrently under one deadline.
func (s *Server) runHealthChecks(ctx context.Context) readinessResponse {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make([]checkResult, len(s.healthChecks))
	var g errgroup.Group
	for i, hc := range s.healthChecks {
		g.Go(func() error {
			start := s.clock.Now()
			err := hc.Check(ctx)
			res := checkResult{
				Status:    "ok",
				LatencyMS: s.clock.Since(start).Milliseconds(),
				Optional:  hc.Optional,
			}
			if err != nil {
				res.Status = "down"
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: statusReady, Checks: make(map[string]checkResult, len(results))}
	for i, hc := range s.healthChecks {
		res := results[i]
		resp.Checks[hc.Name] = res
		if res.Status == "ok" {
			continue
		}
		if !hc.Optional {
			resp.Status = statusUnhealthy
		} else if resp.Status == statusReady {
			resp.Status = statusDegraded
		}
	}
	return resp
}

func (s *Server) handleReadiness(c echo.Context) error {
	resp := s.runHealthChecks(c.Request().Context())

	status := http.StatusOK
	if resp.Status == statusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	if err := c.JSON(status, resp); err != nil {
		return fmt.Errorf("failed to write readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
