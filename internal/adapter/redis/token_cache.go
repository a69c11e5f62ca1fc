package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
	"github.com/streamcave/overlay-api/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	tokenKeyPrefix = "session_token:"
	lookupTimeout  = 5 * time.Second
)

// TokenCache caches the token -> holder id index in Redis in front of a
// primary SessionStore. The primary store stays authoritative: a cache hit is
// only trusted after the holder loaded from the primary still owns the token,
// and every Redis failure falls back to the primary.
type TokenCache struct {
	rdb     goredis.Cmdable
	primary domain.SessionStore
	ttl     time.Duration
	metrics *metrics.TokenCacheMetrics
	lookups singleflight.Group
}

var _ domain.SessionStore = (*TokenCache)(nil)

func NewTokenCache(rdb goredis.Cmdable, primary domain.SessionStore, ttl time.Duration, m *metrics.TokenCacheMetrics) *TokenCache {
	return &TokenCache{rdb: rdb, primary: primary, ttl: ttl, metrics: m}
}

// tokenKey hashes the token so bearer secrets are never written to Redis.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return tokenKeyPrefix + hex.EncodeToString(sum[:])
}

func (c *TokenCache) FindHolderByToken(ctx context.Context, token string) (*domain.Holder, error) {
	key := tokenKey(token)

	if h, ok := c.fromCache(ctx, key, token); ok {
		c.metrics.Hits.Inc()
		return h, nil
	}
	c.metrics.Misses.Inc()

	// The shared lookup is detached from every caller; each caller only stops
	// waiting when its own context ends.
	ch := c.lookups.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		h, err := c.primary.FindHolderByToken(lookupCtx, token)
		if err != nil {
			return nil, err
		}
		if err := c.rdb.Set(lookupCtx, key, h.ID.String(), c.ttl).Err(); err != nil {
			c.fail("set", err)
		}
		return h, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers sharing a flight must not share the holder.
		return res.Val.(*domain.Holder).Clone(), nil
	}
}

func (c *TokenCache) fromCache(ctx context.Context, key, token string) (*domain.Holder, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false
	}
	if err != nil {
		c.fail("get", err)
		return nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		c.invalidate(ctx, key)
		return nil, false
	}

	h, err := c.primary.GetHolder(ctx, id)
	if err != nil || !h.Tokens.Contains(token) {
		c.invalidate(ctx, key)
		return nil, false
	}
	return h, true
}

func (c *TokenCache) GetHolder(ctx context.Context, id uuid.UUID) (*domain.Holder, error) {
	return c.primary.GetHolder(ctx, id)
}

func (c *TokenCache) RevokeToken(ctx context.Context, holderID uuid.UUID, token string) (bool, error) {
	removed, err := c.primary.RevokeToken(ctx, holderID, token)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, tokenKey(token))
	return removed, nil
}

func (c *TokenCache) AddToken(ctx context.Context, holderID uuid.UUID, token string) error {
	return c.primary.AddToken(ctx, holderID, token)
}

func (c *TokenCache) ReplaceToken(ctx context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error) {
	replaced, err := c.primary.ReplaceToken(ctx, holderID, oldToken, newToken)
	if err != nil {
		return false, err
	}
	if replaced {
		c.invalidate(ctx, tokenKey(oldToken))
	}
	return replaced, nil
}

func (c *TokenCache) UpsertDiscordHolder(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, error) {
	return c.primary.UpsertDiscordHolder(ctx, profile)
}

// Save does not touch the cache; entries for tokens it drops fail the
// ownership check on their next hit and are removed then.
func (c *TokenCache) Save(ctx context.Context, holder *domain.Holder) error {
	return c.primary.Save(ctx, holder)
}

func (c *TokenCache) invalidate(ctx context.Context, key string) {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.fail("del", err)
		return
	}
	c.metrics.Invalidations.Inc()
}

func (c *TokenCache) fail(op string, err error) {
	c.metrics.Errors.WithLabelValues(op).Inc()
	slog.Warn("Token cache operation failed, using primary store", "op", op, "error", err)
}
