package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/streamcave/overlay-api/internal/app"
	"github.com/streamcave/overlay-api/internal/domain"
	apperrors "github.com/streamcave/overlay-api/internal/platform/errors"
)

const (
	oauthTimeout   = 10 * time.Second
	ctxKeyHolderID = "holderID"
)

func (s *Server) registerAuthRoutes(rateLimiter echo.MiddlewareFunc) {
	api := s.echo.Group("/api")
	api.GET("/logout", s.handleLogout)
	api.GET("/auth/discord", s.handleDiscordLogin, rateLimiter)
	api.GET("/auth/discord/callback", s.handleDiscordCallback, rateLimiter)
	api.GET("/token/refresh", s.handleTokenRefresh, rateLimiter)
	api.GET("/me", s.handleMe, s.requireAccessToken)
}

type messageResponse struct {
	Message string `json:"message"`
}

type accessTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type meResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Pseudo    string    `json:"pseudo"`
	Avatar    string    `json:"avatar"`
	DiscordID string    `json:"discord_id,omitempty"`
	TwitchID  string    `json:"twitch_id,omitempty"`
	Roles     []string  `json:"roles"`
	Sessions  int       `json:"sessions"`
	CreatedAt time.Time `json:"created_at"`
}

// presentedToken reads the refresh_token cookie. Only that cookie
// authenticates a logout or a refresh.
func presentedToken(c echo.Context) (string, bool) {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil {
		return "", false
	}
	return domain.ParseCookieToken(cookie.Value)
}

func missingCredentials(c echo.Context) error {
	if err := c.JSON(http.StatusUnauthorized, messageResponse{Message: "missing credentials"}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// handleLogout ends the session of the presented token only. The holder's
// other devices stay signed in. Cookies are cleared only after the store
// confirmed the revocation.
func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()

	token, ok := presentedToken(c)
	if !ok {
		return missingCredentials(c)
	}

	result, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		return apperrors.InternalError("failed to revoke session", err)
	}
	if result.Outcome != app.RevokeRevoked {
		return missingCredentials(c)
	}

	for _, cookie := range s.cookies.ClearingCookies() {
		c.SetCookie(cookie)
	}

	slog.InfoContext(ctx, "Holder logged out", "holder_id", result.HolderID)

	if err := c.JSON(http.StatusOK, messageResponse{Message: "Logged Out"}); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleDiscordLogin(c echo.Context) error {
	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}

	session, err := s.stateStore.Get(c.Request(), stateSessionName)
	if err != nil {
		slog.WarnContext(c.Request().Context(), "Discarding unreadable OAuth state cookie", "error", err)
	}

	session.Values[sessionKeyState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth state session", err)
	}

	if err := c.Redirect(http.StatusFound, s.identity.AuthorizeURL(state)); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleDiscordCallback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		return apperrors.UnauthorizedError("discord authorization was denied").WithField("reason", reason)
	}

	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing code parameter")
	}

	session, err := s.stateStore.Get(c.Request(), stateSessionName)
	if err != nil {
		return apperrors.ValidationError("invalid session")
	}

	expectedState, ok := session.Values[sessionKeyState].(string)
	if !ok || expectedState == "" {
		return apperrors.ValidationError("missing OAuth state")
	}
	if c.QueryParam("state") != expectedState {
		return apperrors.ValidationError("invalid OAuth state")
	}

	// The state is single use.
	delete(session.Values, sessionKeyState)
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to clear OAuth state session", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	profile, err := s.identity.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidProfile) {
			return apperrors.ExternalError("discord returned an incomplete profile", err)
		}
		return apperrors.ExternalError("failed to authenticate with Discord", err)
	}

	holder, token, err := s.sessions.SignIn(ctx, profile)
	if err != nil {
		s.revokeDiscordGrant(c.Request().Context(), profile.AccessToken)
		return apperrors.InternalError("failed to sign in holder", err).WithField("discord_id", profile.ID)
	}

	c.SetCookie(s.cookies.RefreshCookie(token))

	slog.InfoContext(ctx, "Holder logged in", "holder_id", holder.ID, "discord_id", profile.ID, "sessions", holder.Tokens.Len())

	if err := c.Redirect(http.StatusFound, s.config.FrontendURL); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

// revokeDiscordGrant drops the Discord token of a login that could not be
// completed. Failures are logged only.
func (s *Server) revokeDiscordGrant(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), oauthTimeout)
	defer cancel()

	if err := s.identity.Revoke(ctx, accessToken); err != nil {
		slog.WarnContext(ctx, "Failed to revoke Discord grant of aborted login", "error", err)
	}
}

// handleTokenRefresh rotates the refresh_token cookie and returns a new
// access token.
func (s *Server) handleTokenRefresh(c echo.Context) error {
	ctx := c.Request().Context()

	token, ok := presentedToken(c)
	if !ok {
		return apperrors.UnauthorizedError("missing credentials")
	}

	result, err := s.sessions.Rotate(ctx, token)
	if err != nil {
		return apperrors.InternalError("failed to rotate session", err)
	}
	if result.Outcome != app.RotateRotated {
		return apperrors.UnauthorizedError("invalid session")
	}

	holder, err := s.sessions.Holder(ctx, result.HolderID)
	if errors.Is(err, domain.ErrHolderNotFound) {
		return apperrors.UnauthorizedError("invalid session")
	}
	if err != nil {
		return apperrors.InternalError("failed to load holder", err).WithField("holder_id", result.HolderID.String())
	}

	access, err := s.accessTokens.Issue(holder)
	if err != nil {
		return apperrors.InternalError("failed to issue access token", err)
	}

	c.SetCookie(s.cookies.RefreshCookie(result.Token))

	resp := accessTokenResponse{Token: access, ExpiresIn: int(s.accessTokens.TTL().Seconds())}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

func (s *Server) requireAccessToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return apperrors.UnauthorizedError("missing access token")
		}

		holderID, err := s.accessTokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			return apperrors.UnauthorizedError("invalid access token")
		}

		c.Set(ctxKeyHolderID, holderID)
		return next(c)
	}
}

// currentHolder loads the holder authenticated by requireAccessToken.
func (s *Server) currentHolder(c echo.Context) (*domain.Holder, error) {
	holderID, _ := c.Get(ctxKeyHolderID).(uuid.UUID)

	holder, err := s.sessions.Holder(c.Request().Context(), holderID)
	if errors.Is(err, domain.ErrHolderNotFound) {
		return nil, apperrors.UnauthorizedError("unknown holder")
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load holder", err)
	}
	return holder, nil
}

func (s *Server) handleMe(c echo.Context) error {
	holder, err := s.currentHolder(c)
	if err != nil {
		return err
	}

	resp := meResponse{
		ID:        holder.ID,
		Email:     holder.Email,
		Pseudo:    holder.Pseudo,
		Avatar:    holder.Avatar,
		DiscordID: holder.DiscordID,
		TwitchID:  holder.TwitchID,
		Roles:     holder.Roles,
		Sessions:  holder.Tokens.Len(),
		CreatedAt: holder.CreatedAt,
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
