package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/streamcave/overlay-api/internal/domain"
)

type mockSessionStore struct {
	findHolderByTokenFn   func(ctx context.Context, token string) (*domain.Holder, error)
	getHolderFn           func(ctx context.Context, id uuid.UUID) (*domain.Holder, error)
	revokeTokenFn         func(ctx context.Context, holderID uuid.UUID, token string) (bool, error)
	addTokenFn            func(ctx context.Context, holderID uuid.UUID, token string) error
	replaceTokenFn        func(ctx context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error)
	upsertDiscordHolderFn func(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, error)

	findCalls   int
	revokeCalls int
}

func (m *mockSessionStore) FindHolderByToken(ctx context.Context, token string) (*domain.Holder, error) {
	m.findCalls++
	if m.findHolderByTokenFn != nil {
		return m.findHolderByTokenFn(ctx, token)
	}
	return nil, domain.ErrHolderNotFound
}

func (m *mockSessionStore) GetHolder(ctx context.Context, id uuid.UUID) (*domain.Holder, error) {
	if m.getHolderFn != nil {
		return m.getHolderFn(ctx, id)
	}
	return nil, domain.ErrHolderNotFound
}

func (m *mockSessionStore) RevokeToken(ctx context.Context, holderID uuid.UUID, token string) (bool, error) {
	m.revokeCalls++
	if m.revokeTokenFn != nil {
		return m.revokeTokenFn(ctx, holderID, token)
	}
	return true, nil
}

func (m *mockSessionStore) AddToken(ctx context.Context, holderID uuid.UUID, token string) error {
	if m.addTokenFn != nil {
		return m.addTokenFn(ctx, holderID, token)
	}
	return nil
}

func (m *mockSessionStore) ReplaceToken(ctx context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error) {
	if m.replaceTokenFn != nil {
		return m.replaceTokenFn(ctx, holderID, oldToken, newToken)
	}
	return true, nil
}

func (m *mockSessionStore) UpsertDiscordHolder(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, error) {
	if m.upsertDiscordHolderFn != nil {
		return m.upsertDiscordHolderFn(ctx, profile)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSessionStore) Save(context.Context, *domain.Holder) error {
	return nil
}
