package domain

import (
	"context"

	"github.com/google/uuid"
)

// SessionStore persists holders and the token -> holder index.
//
// Token mutations are atomic per element: concurrent RevokeToken and
// ReplaceToken calls on the same holder never lose each other's effect.
type SessionStore interface {
	// FindHolderByToken returns ErrHolderNotFound when no holder owns token.
	FindHolderByToken(ctx context.Context, token string) (*Holder, error)
	GetHolder(ctx context.Context, id uuid.UUID) (*Holder, error)

	// RevokeToken removes token from the holder's set. It reports false when
	// the token was already gone, which is not an error.
	RevokeToken(ctx context.Context, holderID uuid.UUID, token string) (bool, error)
	AddToken(ctx context.Context, holderID uuid.UUID, token string) error
	// ReplaceToken swaps oldToken for newToken in one step. It reports false,
	// and changes nothing, when oldToken is no longer present.
	ReplaceToken(ctx context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error)

	UpsertDiscordHolder(ctx context.Context, profile DiscordProfile) (*Holder, error)
	Save(ctx context.Context, holder *Holder) error
}
