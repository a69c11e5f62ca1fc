package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
	"github.com/streamcave/overlay-api/internal/app"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/config"
)

type sessionService interface {
	Revoke(ctx context.Context, token string) (app.RevokeResult, error)
	SignIn(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, string, error)
	Rotate(ctx context.Context, token string) (app.RotateResult, error)
	Holder(ctx context.Context, id uuid.UUID) (*domain.Holder, error)
}

var _ sessionService = (*app.SessionManager)(nil)

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	sessions sessionService
	identity domain.IdentityProvider
	models   domain.ModelCatalog
	overlays domain.OverlayCatalog

	cookies      *CookieClearingPolicy
	accessTokens *AccessTokenIssuer
	stateStore   *sessions.CookieStore

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	errorMetrics *metrics.ErrorMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, sessionSvc sessionService, identity domain.IdentityProvider, models domain.ModelCatalog, overlays domain.OverlayCatalog, clock clockwork.Clock, reg *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		sessions:     sessionSvc,
		identity:     identity,
		models:       models,
		overlays:     overlays,
		cookies:      NewCookieClearingPolicy(cfg.CookieDomain, cfg.SSOCookieDomain, cfg.SessionMaxAge, clock),
		accessTokens: NewAccessTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, clock),
		stateStore:   setupStateStore(cfg),
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		errorMetrics: metrics.NewErrorMetrics(reg),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// OAuth state cookie
const (
	stateSessionName   = "overlay-oauth"
	sessionKeyState    = "oauth_state"
	oauthStateLifetime = 10 * time.Minute
)

// setupStateStore keeps the OAuth state between the login redirect and the
// Discord callback. It holds nothing else.
func setupStateStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/api/auth",
		MaxAge:   int(oauthStateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   !cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
