// Package memory is a process-local domain.SessionStore for development
// runs without PostgreSQL and for tests. State is lost on restart.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/streamcave/overlay-api/internal/domain"
)

var errTokenTaken = errors.New("session token already belongs to another holder")

type SessionStore struct {
	clock clockwork.Clock

	mu        sync.Mutex
	holders   map[uuid.UUID]*domain.Holder
	byToken   map[string]uuid.UUID
	byDiscord map[string]uuid.UUID
}

var _ domain.SessionStore = (*SessionStore)(nil)

func NewSessionStore(clock clockwork.Clock) *SessionStore {
	return &SessionStore{
		clock:     clock,
		holders:   make(map[uuid.UUID]*domain.Holder),
		byToken:   make(map[string]uuid.UUID),
		byDiscord: make(map[string]uuid.UUID),
	}
}

func (s *SessionStore) FindHolderByToken(_ context.Context, token string) (*domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, domain.ErrHolderNotFound
	}
	return s.holders[id].Clone(), nil
}

func (s *SessionStore) GetHolder(_ context.Context, id uuid.UUID) (*domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holders[id]
	if !ok {
		return nil, domain.ErrHolderNotFound
	}
	return h.Clone(), nil
}

func (s *SessionStore) RevokeToken(_ context.Context, holderID uuid.UUID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holders[holderID]
	if !ok {
		return false, nil
	}
	if !h.Revoke(token) {
		return false, nil
	}
	delete(s.byToken, token)
	h.UpdatedAt = s.clock.Now()
	return true, nil
}

func (s *SessionStore) AddToken(_ context.Context, holderID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holders[holderID]
	if !ok {
		return domain.ErrHolderNotFound
	}
	if owner, taken := s.byToken[token]; taken && owner != holderID {
		return errTokenTaken
	}
	h.Tokens.Add(token)
	s.byToken[token] = holderID
	h.UpdatedAt = s.clock.Now()
	return nil
}

func (s *SessionStore) ReplaceToken(_ context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.holders[holderID]
	if !ok || !h.Tokens.Contains(oldToken) {
		return false, nil
	}
	if _, taken := s.byToken[newToken]; taken {
		return false, errTokenTaken
	}
	h.Tokens.Remove(oldToken)
	delete(s.byToken, oldToken)
	h.Tokens.Add(newToken)
	s.byToken[newToken] = holderID
	h.UpdatedAt = s.clock.Now()
	return true, nil
}

func (s *SessionStore) UpsertDiscordHolder(_ context.Context, p domain.DiscordProfile) (*domain.Holder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	h, ok := s.holders[s.byDiscord[p.ID]]
	if !ok {
		h = &domain.Holder{
			ID:        uuid.New(),
			DiscordID: p.ID,
			Roles:     []string{domain.RoleUser},
			CreatedAt: now,
		}
		s.holders[h.ID] = h
		s.byDiscord[p.ID] = h.ID
	}

	h.Pseudo = p.DisplayName()
	h.Email = p.Email
	h.Avatar = p.Avatar
	h.DiscordAccessToken = p.AccessToken
	h.DiscordRefreshToken = p.RefreshToken
	h.DiscordTokenExpiry = p.TokenExpiry
	h.UpdatedAt = now
	return h.Clone(), nil
}

// Save replaces the stored holder, token set included. Tokens dropped from
// the set stop resolving.
func (s *SessionStore) Save(_ context.Context, holder *domain.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range holder.Tokens.Values() {
		if owner, taken := s.byToken[t]; taken && owner != holder.ID {
			return errTokenTaken
		}
	}

	if prev, ok := s.holders[holder.ID]; ok {
		for _, t := range prev.Tokens.Values() {
			delete(s.byToken, t)
		}
		if prev.DiscordID != "" {
			delete(s.byDiscord, prev.DiscordID)
		}
	}

	stored := holder.Clone()
	stored.UpdatedAt = s.clock.Now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	s.holders[stored.ID] = stored
	for _, t := range stored.Tokens.Values() {
		s.byToken[t] = stored.ID
	}
	if stored.DiscordID != "" {
		s.byDiscord[stored.DiscordID] = stored.ID
	}
	return nil
}
