package domain

import "context"

// IdentityProvider is the Discord OAuth flow as seen by the login handlers.
type IdentityProvider interface {
	AuthorizeURL(state string) string
	// Exchange trades an authorization code for credentials and resolves them
	// to a profile.
	Exchange(ctx context.Context, code string) (DiscordProfile, error)
	Revoke(ctx context.Context, token string) error
}
