// Package discord implements domain.IdentityProvider against the Discord
// OAuth2 and REST APIs.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/retry"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIURL   = "https://discord.com/api"
	avatarCDN       = "https://cdn.discordapp.com/avatars"
	httpCallTimeout = 10 * time.Second
)

var Scopes = []string{"identify", "email"}

// StatusError is a non-2xx answer from the Discord API.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord %s returned status %d", e.Endpoint, e.StatusCode)
}

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// APIURL defaults to DefaultAPIURL.
	APIURL     string
	HTTPClient *http.Client
	Retry      retry.Policy
}

type Client struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
	retry      retry.Policy
}

var _ domain.IdentityProvider = (*Client)(nil)

func NewClient(cfg Config) *Client {
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpCallTimeout}
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
		}
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Discord API call failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   apiURL + "/oauth2/authorize",
				TokenURL:  apiURL + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     apiURL,
		httpClient: httpClient,
		retry:      policy,
	}
}

func (c *Client) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (c *Client) Exchange(ctx context.Context, code string) (domain.DiscordProfile, error) {
	token, err := c.oauth.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("token exchange failed: %w", err)
	}

	user, err := retry.Do(ctx, c.retry, classify, func() (*discordUser, error) {
		return c.fetchUser(ctx, token.AccessToken)
	})
	if err != nil {
		return domain.DiscordProfile{}, fmt.Errorf("user info fetch failed: %w", err)
	}

	profile := domain.DiscordProfile{
		ID:           user.ID,
		Username:     user.Username,
		GlobalName:   user.GlobalName,
		Email:        user.Email,
		Avatar:       avatarURL(user.ID, user.Avatar),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
	}
	if err := profile.Validate(); err != nil {
		return domain.DiscordProfile{}, err
	}
	return profile, nil
}

// Refresh trades a Discord refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	return token, nil
}

// Revoke invalidates a Discord access token.
func (c *Client) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("client_id", c.oauth.ClientID)
	form.Set("client_secret", c.oauth.ClientSecret)
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	return retry.DoVoid(ctx, c.retry, classify, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/oauth2/token/revoke", strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("failed to create revoke request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute revoke request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return &StatusError{Endpoint: "token/revoke", StatusCode: resp.StatusCode}
		}
		return nil
	})
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Email      string `json:"email"`
	Avatar     string `json:"avatar"`
}

func (c *Client) fetchUser(ctx context.Context, accessToken string) (*discordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute user request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: "users/@me", StatusCode: resp.StatusCode}
	}

	var user discordUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// classify retries 5xx and transport errors, waits out 429 and gives up on
// any other status.
func classify(err error) retry.Action {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return retry.Retry
	}
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		return retry.After
	case statusErr.StatusCode >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func avatarURL(userID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s.png", avatarCDN, userID, hash)
}
