package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
	"github.com/streamcave/overlay-api/internal/domain"
)

// ErrPersistence wraps any store failure surfaced by SessionManager.
var ErrPersistence = errors.New("session store failure")

type RevokeOutcome int

const (
	// RevokeUnauthenticated means no token was presented or no holder owns it.
	RevokeUnauthenticated RevokeOutcome = iota
	RevokeRevoked
)

type RevokeResult struct {
	Outcome  RevokeOutcome
	HolderID uuid.UUID
	// Removed is false when a concurrent logout removed the token first.
	Removed bool
}

type RotateOutcome int

const (
	RotateUnauthenticated RotateOutcome = iota
	RotateRotated
)

type RotateResult struct {
	Outcome  RotateOutcome
	HolderID uuid.UUID
	Token    string
}

// SessionManager implements the session token lifecycle on top of a store.
type SessionManager struct {
	store    domain.SessionStore
	metrics  *metrics.SessionMetrics
	newToken func() (string, error)
}

// NewSessionManager wires a manager. m may be nil.
func NewSessionManager(store domain.SessionStore, m *metrics.SessionMetrics) *SessionManager {
	return &SessionManager{
		store:    store,
		metrics:  m,
		newToken: domain.NewSessionToken,
	}
}

// Revoke ends the session identified by token and leaves the holder's other
// sessions alone. Revoking an already revoked token of a known holder is
// still RevokeRevoked.
func (s *SessionManager) Revoke(ctx context.Context, token string) (RevokeResult, error) {
	if token == "" {
		s.countRevocation(metrics.OutcomeUnauthenticated)
		return RevokeResult{Outcome: RevokeUnauthenticated}, nil
	}

	holder, err := s.store.FindHolderByToken(ctx, token)
	if errors.Is(err, domain.ErrHolderNotFound) {
		s.countRevocation(metrics.OutcomeUnauthenticated)
		return RevokeResult{Outcome: RevokeUnauthenticated}, nil
	}
	if err != nil {
		s.countRevocation(metrics.OutcomeError)
		return RevokeResult{}, fmt.Errorf("%w: find holder: %w", ErrPersistence, err)
	}

	removed, err := s.store.RevokeToken(ctx, holder.ID, token)
	if err != nil {
		s.countRevocation(metrics.OutcomeError)
		return RevokeResult{}, fmt.Errorf("%w: revoke token: %w", ErrPersistence, err)
	}

	if removed {
		s.countRevocation(metrics.OutcomeRevoked)
	} else {
		s.countRevocation(metrics.OutcomeAlreadyRevoked)
	}
	slog.InfoContext(ctx, "Session revoked", "holder_id", holder.ID, "removed", removed)

	return RevokeResult{Outcome: RevokeRevoked, HolderID: holder.ID, Removed: removed}, nil
}

// Issue mints a new session token for holderID and stores it.
func (s *SessionManager) Issue(ctx context.Context, holderID uuid.UUID) (string, error) {
	token, err := s.newToken()
	if err != nil {
		return "", err
	}
	if err := s.store.AddToken(ctx, holderID, token); err != nil {
		return "", fmt.Errorf("%w: add token: %w", ErrPersistence, err)
	}
	if s.metrics != nil {
		s.metrics.Issued.Inc()
	}
	return token, nil
}

// SignIn upserts the Discord holder and opens a new session for it.
func (s *SessionManager) SignIn(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, string, error) {
	if err := profile.Validate(); err != nil {
		return nil, "", err
	}

	holder, err := s.store.UpsertDiscordHolder(ctx, profile)
	if err != nil {
		return nil, "", fmt.Errorf("%w: upsert holder: %w", ErrPersistence, err)
	}

	token, err := s.Issue(ctx, holder.ID)
	if err != nil {
		return nil, "", err
	}
	holder.Tokens.Add(token)

	slog.InfoContext(ctx, "Holder signed in", "holder_id", holder.ID, "discord_id", profile.ID, "sessions", holder.Tokens.Len())
	return holder, token, nil
}

// Rotate swaps the presented token for a fresh one. A token revoked while
// the rotation was in flight yields RotateUnauthenticated.
func (s *SessionManager) Rotate(ctx context.Context, token string) (RotateResult, error) {
	if token == "" {
		s.countRotation(metrics.OutcomeUnauthenticated)
		return RotateResult{Outcome: RotateUnauthenticated}, nil
	}

	holder, err := s.store.FindHolderByToken(ctx, token)
	if errors.Is(err, domain.ErrHolderNotFound) {
		s.countRotation(metrics.OutcomeUnauthenticated)
		return RotateResult{Outcome: RotateUnauthenticated}, nil
	}
	if err != nil {
		s.countRotation(metrics.OutcomeError)
		return RotateResult{}, fmt.Errorf("%w: find holder: %w", ErrPersistence, err)
	}

	next, err := s.newToken()
	if err != nil {
		s.countRotation(metrics.OutcomeError)
		return RotateResult{}, err
	}

	replaced, err := s.store.ReplaceToken(ctx, holder.ID, token, next)
	if err != nil {
		s.countRotation(metrics.OutcomeError)
		return RotateResult{}, fmt.Errorf("%w: replace token: %w", ErrPersistence, err)
	}
	if !replaced {
		s.countRotation(metrics.OutcomeUnauthenticated)
		return RotateResult{Outcome: RotateUnauthenticated}, nil
	}

	s.countRotation(metrics.OutcomeRotated)
	return RotateResult{Outcome: RotateRotated, HolderID: holder.ID, Token: next}, nil
}

func (s *SessionManager) Holder(ctx context.Context, id uuid.UUID) (*domain.Holder, error) {
	holder, err := s.store.GetHolder(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrHolderNotFound) {
		return nil, fmt.Errorf("%w: get holder: %w", ErrPersistence, err)
	}
	return holder, err
}

func (s *SessionManager) countRevocation(outcome string) {
	if s.metrics != nil {
		s.metrics.Revocations.WithLabelValues(outcome).Inc()
	}
}

func (s *SessionManager) countRotation(outcome string) {
	if s.metrics != nil {
		s.metrics.Rotations.WithLabelValues(outcome).Inc()
	}
}
