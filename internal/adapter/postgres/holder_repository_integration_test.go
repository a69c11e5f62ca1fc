package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestRepo(t *testing.T) *HolderRepo {
	t.Helper()
	pool := setupTestDB(t)
	svc, err := crypto.NewAESGCM(testEncryptionKey)
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	return NewHolderRepo(pool, svc, clock)
}

func createHolder(t *testing.T, repo *HolderRepo, pseudo string, tokens ...string) *domain.Holder {
	t.Helper()
	h := &domain.Holder{
		ID:     uuid.New(),
		Pseudo: pseudo,
		Email:  pseudo + "@example.com",
		Roles:  []string{domain.RoleUser},
		Tokens: domain.NewTokenSet(tokens...),
	}
	require.NoError(t, repo.Save(context.Background(), h))
	return h
}

func TestFindHolderByToken_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u1 := createHolder(t, repo, "u1", "tok_A", "tok_B", "tok_C")

	got, err := repo.FindHolderByToken(ctx, "tok_B")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, got.ID)
	assert.Equal(t, "u1", got.Pseudo)
	assert.Equal(t, []string{"tok_A", "tok_B", "tok_C"}, got.Tokens.Values())
	assert.Equal(t, []string{domain.RoleUser}, got.Roles)

	_, err = repo.FindHolderByToken(ctx, "tok_missing")
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)
}

func TestGetHolder_NotFound_Integration(t *testing.T) {
	repo := newTestRepo(t)
	h, err := repo.GetHolder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)
	assert.Nil(t, h)
}

func TestRevokeToken_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u1 := createHolder(t, repo, "u1", "tok_A", "tok_B", "tok_C")
	u2 := createHolder(t, repo, "u2", "tok_X")

	removed, err := repo.RevokeToken(ctx, u1.ID, "tok_B")
	require.NoError(t, err)
	assert.True(t, removed)

	got, err := repo.GetHolder(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_A", "tok_C"}, got.Tokens.Values())

	removed, err = repo.RevokeToken(ctx, u1.ID, "tok_B")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = repo.RevokeToken(ctx, u1.ID, "tok_X")
	require.NoError(t, err)
	assert.False(t, removed)

	other, err := repo.GetHolder(ctx, u2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_X"}, other.Tokens.Values())
}

func TestRevokeToken_ConcurrentRemovals_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tokens := make([]string, 20)
	for i := range tokens {
		tokens[i] = uuid.NewString()
	}
	h := createHolder(t, repo, "busy", tokens...)

	var wg sync.WaitGroup
	for _, tok := range tokens[:10] {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := repo.RevokeToken(ctx, h.ID, tok)
			assert.NoError(t, err)
		}(tok)
	}
	wg.Wait()

	got, err := repo.GetHolder(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, tokens[10:], got.Tokens.Values())
}

func TestAddToken_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u1 := createHolder(t, repo, "u1", "tok_A")
	u2 := createHolder(t, repo, "u2")

	require.NoError(t, repo.AddToken(ctx, u1.ID, "tok_B"))
	require.NoError(t, repo.AddToken(ctx, u1.ID, "tok_B"))
	assert.ErrorIs(t, repo.AddToken(ctx, u2.ID, "tok_A"), ErrTokenTaken)
	assert.ErrorIs(t, repo.AddToken(ctx, uuid.New(), "tok_Z"), domain.ErrHolderNotFound)

	got, err := repo.GetHolder(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_A", "tok_B"}, got.Tokens.Values())
}

func TestReplaceToken_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u1 := createHolder(t, repo, "u1", "tok_A", "tok_B")

	replaced, err := repo.ReplaceToken(ctx, u1.ID, "tok_A", "tok_N")
	require.NoError(t, err)
	assert.True(t, replaced)

	got, err := repo.GetHolder(ctx, u1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_B", "tok_N"}, got.Tokens.Values())

	replaced, err = repo.ReplaceToken(ctx, u1.ID, "tok_A", "tok_M")
	require.NoError(t, err)
	assert.False(t, replaced)

	_, err = repo.FindHolderByToken(ctx, "tok_M")
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)
}

func TestUpsertDiscordHolder_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	expiry := time.Date(2026, 4, 8, 10, 0, 0, 0, time.UTC)

	first, err := repo.UpsertDiscordHolder(ctx, domain.DiscordProfile{
		ID: "80351110224678912", Username: "nelly", Email: "nelly@example.com",
		AccessToken: "discord-access", RefreshToken: "discord-refresh", TokenExpiry: expiry,
	})
	require.NoError(t, err)
	assert.Equal(t, "80351110224678912", first.DiscordID)
	assert.Equal(t, "discord-access", first.DiscordAccessToken)
	assert.True(t, expiry.Equal(first.DiscordTokenExpiry))
	assert.Equal(t, []string{domain.RoleUser}, first.Roles)

	var stored string
	require.NoError(t, testPool.QueryRow(ctx,
		"SELECT discord_access_token FROM holders WHERE id = $1", first.ID).Scan(&stored))
	assert.NotEqual(t, "discord-access", stored)

	require.NoError(t, repo.AddToken(ctx, first.ID, "tok_A"))

	second, err := repo.UpsertDiscordHolder(ctx, domain.DiscordProfile{
		ID: "80351110224678912", Username: "nelly", GlobalName: "Nelly", Email: "nelly@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Nelly", second.Pseudo)
	assert.Equal(t, []string{"tok_A"}, second.Tokens.Values())
}

func TestSave_SyncsTokens_Integration(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	h := createHolder(t, repo, "u1", "tok_A", "tok_B")
	other := createHolder(t, repo, "u2", "tok_X")

	h.Tokens = domain.NewTokenSet("tok_B", "tok_C")
	h.TwitchID = "twitch-1"
	require.NoError(t, repo.Save(ctx, h))

	got, err := repo.GetHolder(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_B", "tok_C"}, got.Tokens.Values())
	assert.Equal(t, "twitch-1", got.TwitchID)

	h.Tokens.Add("tok_X")
	assert.ErrorIs(t, repo.Save(ctx, h), ErrTokenTaken)

	owner, err := repo.FindHolderByToken(ctx, "tok_X")
	require.NoError(t, err)
	assert.Equal(t, other.ID, owner.ID)
}
