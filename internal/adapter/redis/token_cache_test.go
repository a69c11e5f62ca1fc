package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streamcave/overlay-api/internal/adapter/memory"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPrimary(t *testing.T, tokens ...string) (*memory.SessionStore, *domain.Holder) {
	t.Helper()
	store := memory.NewSessionStore(clockwork.NewFakeClock())
	h := &domain.Holder{ID: uuid.New(), Pseudo: "u1", Tokens: domain.NewTokenSet(tokens...)}
	require.NoError(t, store.Save(context.Background(), h))
	return store, h
}

func newCacheMetrics() *metrics.TokenCacheMetrics {
	return metrics.NewTokenCacheMetrics(prometheus.NewRegistry())
}

// unreachableClient fails every command quickly.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestTokenKey_HashesToken(t *testing.T) {
	key := tokenKey("tok_A")
	assert.NotContains(t, key, "tok_A")
	assert.Len(t, key, len(tokenKeyPrefix)+64)
	assert.Equal(t, key, tokenKey("tok_A"))
	assert.NotEqual(t, key, tokenKey("tok_B"))
}

func TestTokenCache_DegradesWhenRedisDown(t *testing.T) {
	primary, h := newPrimary(t, "tok_A", "tok_B")
	m := newCacheMetrics()
	cache := NewTokenCache(unreachableClient(t), primary, time.Minute, m)
	ctx := context.Background()

	got, err := cache.FindHolderByToken(ctx, "tok_A")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)

	removed, err := cache.RevokeToken(ctx, h.ID, "tok_A")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = cache.FindHolderByToken(ctx, "tok_A")
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Errors.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("del")))
}

func TestTokenCache_HitVerifiesOwnership_Integration(t *testing.T) {
	rdb := setupTestClient(t)
	primary, h := newPrimary(t, "tok_A", "tok_B")
	m := newCacheMetrics()
	cache := NewTokenCache(rdb, primary, time.Minute, m)
	ctx := context.Background()

	_, err := cache.FindHolderByToken(ctx, "tok_A")
	require.NoError(t, err)
	cached, err := rdb.Get(ctx, tokenKey("tok_A")).Result()
	require.NoError(t, err)
	assert.Equal(t, h.ID.String(), cached)

	got, err := cache.FindHolderByToken(ctx, "tok_A")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses))

	// Revoked behind the cache's back: the stale entry must not authenticate.
	_, err = primary.RevokeToken(ctx, h.ID, "tok_A")
	require.NoError(t, err)

	_, err = cache.FindHolderByToken(ctx, "tok_A")
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)
	assert.Equal(t, int64(0), rdb.Exists(ctx, tokenKey("tok_A")).Val())
}

func TestTokenCache_RevokeInvalidates_Integration(t *testing.T) {
	rdb := setupTestClient(t)
	primary, h := newPrimary(t, "tok_A", "tok_B", "tok_C")
	cache := NewTokenCache(rdb, primary, time.Minute, newCacheMetrics())
	ctx := context.Background()

	for _, tok := range []string{"tok_A", "tok_B", "tok_C"} {
		_, err := cache.FindHolderByToken(ctx, tok)
		require.NoError(t, err)
	}

	removed, err := cache.RevokeToken(ctx, h.ID, "tok_B")
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, int64(0), rdb.Exists(ctx, tokenKey("tok_B")).Val())
	assert.Equal(t, int64(2), rdb.Exists(ctx, tokenKey("tok_A"), tokenKey("tok_C")).Val())

	got, err := cache.GetHolder(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_A", "tok_C"}, got.Tokens.Values())
}

func TestTokenCache_ReplaceInvalidatesOldToken_Integration(t *testing.T) {
	rdb := setupTestClient(t)
	primary, h := newPrimary(t, "tok_A")
	cache := NewTokenCache(rdb, primary, time.Minute, newCacheMetrics())
	ctx := context.Background()

	_, err := cache.FindHolderByToken(ctx, "tok_A")
	require.NoError(t, err)

	replaced, err := cache.ReplaceToken(ctx, h.ID, "tok_A", "tok_N")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, int64(0), rdb.Exists(ctx, tokenKey("tok_A")).Val())

	_, err = cache.FindHolderByToken(ctx, "tok_A")
	assert.ErrorIs(t, err, domain.ErrHolderNotFound)

	got, err := cache.FindHolderByToken(ctx, "tok_N")
	require.NoError(t, err)
	assert.Equal(t, h.ID, got.ID)
}

func TestTokenCache_EntriesExpire_Integration(t *testing.T) {
	rdb := setupTestClient(t)
	primary, _ := newPrimary(t, "tok_A")
	cache := NewTokenCache(rdb, primary, 10*time.Minute, newCacheMetrics())
	ctx := context.Background()

	_, err := cache.FindHolderByToken(ctx, "tok_A")
	require.NoError(t, err)

	ttl, err := rdb.TTL(ctx, tokenKey("tok_A")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 9*time.Minute)
}

func TestTokenCache_PassThrough(t *testing.T) {
	primary, h := newPrimary(t)
	cache := NewTokenCache(unreachableClient(t), primary, time.Minute, newCacheMetrics())
	ctx := context.Background()

	require.NoError(t, cache.AddToken(ctx, h.ID, "tok_new"))
	holder, err := cache.UpsertDiscordHolder(ctx, domain.DiscordProfile{ID: "7", Username: "seven"})
	require.NoError(t, err)
	holder.Tokens.Add("tok_seven")
	require.NoError(t, cache.Save(ctx, holder))

	got, err := primary.FindHolderByToken(ctx, "tok_seven")
	require.NoError(t, err)
	assert.Equal(t, holder.ID, got.ID)
}

// blockingStore holds FindHolderByToken until release is closed or the
// lookup context ends.
type blockingStore struct {
	*memory.SessionStore
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingStore) FindHolderByToken(ctx context.Context, token string) (*domain.Holder, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
	}
	select {
	case <-s.release:
		return s.SessionStore.FindHolderByToken(ctx, token)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTokenCache_CancelledCallerDoesNotFailSharedLookup(t *testing.T) {
	mem, h := newPrimary(t, "tok_A")
	primary := &blockingStore{SessionStore: mem, entered: make(chan struct{}), release: make(chan struct{})}
	cache := NewTokenCache(unreachableClient(t), primary, time.Minute, newCacheMetrics())

	type result struct {
		holder *domain.Holder
		err    error
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	resA := make(chan result, 1)
	go func() {
		got, err := cache.FindHolderByToken(ctxA, "tok_A")
		resA <- result{got, err}
	}()
	<-primary.entered

	resB := make(chan result, 1)
	go func() {
		got, err := cache.FindHolderByToken(context.Background(), "tok_A")
		resB <- result{got, err}
	}()
	// Let B join the flight A started.
	time.Sleep(100 * time.Millisecond)

	cancelA()
	a := <-resA
	assert.ErrorIs(t, a.err, context.Canceled)

	close(primary.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, h.ID, b.holder.ID)
	assert.Equal(t, int32(1), primary.calls.Load())
}
