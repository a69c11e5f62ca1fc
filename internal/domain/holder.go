package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role names granted to holders.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// Holder is an account that may be signed in on several devices at once.
// Each device holds one opaque session token from Tokens; a token belongs to
// at most one holder.
type Holder struct {
	ID        uuid.UUID
	Email     string
	Pseudo    string
	Avatar    string
	DiscordID string
	TwitchID  string
	Roles     []string
	Tokens    TokenSet

	// Discord credentials, plaintext in memory. Stores seal them at rest.
	DiscordAccessToken  string
	DiscordRefreshToken string
	DiscordTokenExpiry  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Revoke ends the session identified by token on this holder only.
func (h *Holder) Revoke(token string) bool {
	return h.Tokens.Remove(token)
}

func (h *Holder) HasRole(role string) bool {
	for _, r := range h.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no mutable state with h.
func (h *Holder) Clone() *Holder {
	c := *h
	c.Roles = append([]string(nil), h.Roles...)
	c.Tokens = h.Tokens.Clone()
	return &c
}

// DiscordProfile is the identity returned by Discord after login, plus the
// OAuth credentials that were used to fetch it.
type DiscordProfile struct {
	ID           string
	Username     string
	GlobalName   string
	Email        string
	Avatar       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// DisplayName prefers the Discord global name over the legacy username.
func (p DiscordProfile) DisplayName() string {
	if p.GlobalName != "" {
		return p.GlobalName
	}
	return p.Username
}

func (p DiscordProfile) Validate() error {
	if p.ID == "" || p.Username == "" {
		return ErrInvalidProfile
	}
	return nil
}
