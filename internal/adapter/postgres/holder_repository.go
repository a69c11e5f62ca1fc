package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/crypto"
)

const pgForeignKeyViolation = "23503"

var ErrTokenTaken = errors.New("session token already belongs to another holder")

// HolderRepo stores holders in "holders" and their session tokens in
// "holder_tokens". Discord credentials are sealed with the crypto service.
type HolderRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
	clock  clockwork.Clock
}

var _ domain.SessionStore = (*HolderRepo)(nil)

func NewHolderRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service, clock clockwork.Clock) *HolderRepo {
	return &HolderRepo{pool: pool, crypto: cryptoSvc, clock: clock}
}

const selectHolder = `
SELECT h.id, h.email, h.pseudo, h.avatar, COALESCE(h.discord_id, ''), COALESCE(h.twitch_id, ''), h.roles,
       h.discord_access_token, h.discord_refresh_token, h.discord_token_expiry,
       h.created_at, h.updated_at,
       COALESCE((SELECT array_agg(t.token ORDER BY t.seq) FROM holder_tokens t WHERE t.holder_id = h.id), '{}')
FROM holders h`

func (r *HolderRepo) scanHolder(row pgx.Row) (*domain.Holder, error) {
	var (
		h            domain.Holder
		accessToken  string
		refreshToken string
		expiry       *time.Time
		tokens       []string
	)
	err := row.Scan(&h.ID, &h.Email, &h.Pseudo, &h.Avatar, &h.DiscordID, &h.TwitchID, &h.Roles,
		&accessToken, &refreshToken, &expiry, &h.CreatedAt, &h.UpdatedAt, &tokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrHolderNotFound
	}
	if err != nil {
		return nil, err
	}

	if h.DiscordAccessToken, err = r.crypto.Decrypt(accessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt discord access token: %w", err)
	}
	if h.DiscordRefreshToken, err = r.crypto.Decrypt(refreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt discord refresh token: %w", err)
	}
	if expiry != nil {
		h.DiscordTokenExpiry = *expiry
	}
	h.Tokens = domain.NewTokenSet(tokens...)
	return &h, nil
}

func (r *HolderRepo) FindHolderByToken(ctx context.Context, token string) (*domain.Holder, error) {
	row := r.pool.QueryRow(ctx, "-- name: FindHolderByToken\n"+selectHolder+`
WHERE h.id = (SELECT holder_id FROM holder_tokens WHERE token = $1)`, token)

	h, err := r.scanHolder(row)
	if err != nil && !errors.Is(err, domain.ErrHolderNotFound) {
		return nil, fmt.Errorf("failed to find holder by token: %w", err)
	}
	return h, err
}

func (r *HolderRepo) GetHolder(ctx context.Context, id uuid.UUID) (*domain.Holder, error) {
	row := r.pool.QueryRow(ctx, "-- name: GetHolder\n"+selectHolder+`
WHERE h.id = $1`, id)

	h, err := r.scanHolder(row)
	if err != nil && !errors.Is(err, domain.ErrHolderNotFound) {
		return nil, fmt.Errorf("failed to get holder: %w", err)
	}
	return h, err
}

// RevokeToken deletes the single token row. Concurrent revocations of
// different tokens touch different rows and never overwrite each other.
func (r *HolderRepo) RevokeToken(ctx context.Context, holderID uuid.UUID, token string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `-- name: RevokeToken
WITH removed AS (
    DELETE FROM holder_tokens WHERE holder_id = $1 AND token = $2 RETURNING holder_id
)
UPDATE holders SET updated_at = $3 WHERE id IN (SELECT holder_id FROM removed)`,
		holderID, token, r.clock.Now())
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *HolderRepo) AddToken(ctx context.Context, holderID uuid.UUID, token string) error {
	// The no-op update makes a retry by the same holder succeed while a
	// token owned by someone else affects zero rows.
	tag, err := r.pool.Exec(ctx, `-- name: AddToken
INSERT INTO holder_tokens (token, holder_id) VALUES ($1, $2)
ON CONFLICT (token) DO UPDATE SET token = EXCLUDED.token
WHERE holder_tokens.holder_id = EXCLUDED.holder_id`, token, holderID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.ErrHolderNotFound
		}
		return fmt.Errorf("failed to add token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenTaken
	}
	return nil
}

func (r *HolderRepo) ReplaceToken(ctx context.Context, holderID uuid.UUID, oldToken, newToken string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `-- name: ReplaceTokenDelete
DELETE FROM holder_tokens WHERE holder_id = $1 AND token = $2`, holderID, oldToken)
	if err != nil {
		return false, fmt.Errorf("failed to remove rotated token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `-- name: ReplaceTokenInsert
INSERT INTO holder_tokens (token, holder_id) VALUES ($1, $2)`, newToken, holderID); err != nil {
		return false, fmt.Errorf("failed to insert rotated token: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE holders SET updated_at = $2 WHERE id = $1`, holderID, r.clock.Now()); err != nil {
		return false, fmt.Errorf("failed to touch holder: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (r *HolderRepo) UpsertDiscordHolder(ctx context.Context, p domain.DiscordProfile) (*domain.Holder, error) {
	accessToken, err := r.crypto.Encrypt(p.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt discord access token: %w", err)
	}
	refreshToken, err := r.crypto.Encrypt(p.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt discord refresh token: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx, `-- name: UpsertDiscordHolder
INSERT INTO holders (id, discord_id, email, pseudo, avatar, discord_access_token, discord_refresh_token,
                     discord_token_expiry, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (discord_id) DO UPDATE SET
    email = EXCLUDED.email,
    pseudo = EXCLUDED.pseudo,
    avatar = EXCLUDED.avatar,
    discord_access_token = EXCLUDED.discord_access_token,
    discord_refresh_token = EXCLUDED.discord_refresh_token,
    discord_token_expiry = EXCLUDED.discord_token_expiry,
    updated_at = EXCLUDED.updated_at
RETURNING id`,
		uuid.New(), p.ID, p.Email, p.DisplayName(), p.Avatar, accessToken, refreshToken,
		nullTime(p.TokenExpiry), r.clock.Now()).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert discord holder: %w", err)
	}

	return r.GetHolder(ctx, id)
}

// Save writes profile fields and makes holder_tokens match holder.Tokens.
func (r *HolderRepo) Save(ctx context.Context, h *domain.Holder) error {
	accessToken, err := r.crypto.Encrypt(h.DiscordAccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt discord access token: %w", err)
	}
	refreshToken, err := r.crypto.Encrypt(h.DiscordRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt discord refresh token: %w", err)
	}

	roles := h.Roles
	if roles == nil {
		roles = []string{domain.RoleUser}
	}
	now := r.clock.Now()
	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	tokens := h.Tokens.Values()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `-- name: SaveHolder
INSERT INTO holders (id, email, pseudo, avatar, discord_id, twitch_id, roles, discord_access_token,
                     discord_refresh_token, discord_token_expiry, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    email = EXCLUDED.email,
    pseudo = EXCLUDED.pseudo,
    avatar = EXCLUDED.avatar,
    discord_id = EXCLUDED.discord_id,
    twitch_id = EXCLUDED.twitch_id,
    roles = EXCLUDED.roles,
    discord_access_token = EXCLUDED.discord_access_token,
    discord_refresh_token = EXCLUDED.discord_refresh_token,
    discord_token_expiry = EXCLUDED.discord_token_expiry,
    updated_at = EXCLUDED.updated_at`,
		h.ID, h.Email, h.Pseudo, h.Avatar, h.DiscordID, h.TwitchID, roles, accessToken, refreshToken,
		nullTime(h.DiscordTokenExpiry), createdAt, now); err != nil {
		return fmt.Errorf("failed to save holder: %w", err)
	}

	var taken bool
	if err := tx.QueryRow(ctx, `-- name: SaveTokensConflict
SELECT EXISTS (SELECT 1 FROM holder_tokens WHERE token = ANY($2) AND holder_id <> $1)`,
		h.ID, tokens).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check token ownership: %w", err)
	}
	if taken {
		return ErrTokenTaken
	}

	if _, err := tx.Exec(ctx, `-- name: SaveTokensPrune
DELETE FROM holder_tokens WHERE holder_id = $1 AND NOT (token = ANY($2))`, h.ID, tokens); err != nil {
		return fmt.Errorf("failed to prune tokens: %w", err)
	}
	if _, err := tx.Exec(ctx, `-- name: SaveTokensInsert
INSERT INTO holder_tokens (token, holder_id)
SELECT u.token, $1 FROM unnest($2::text[]) WITH ORDINALITY AS u(token, ord) ORDER BY u.ord
ON CONFLICT (token) DO NOTHING`, h.ID, tokens); err != nil {
		return fmt.Errorf("failed to insert tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
