package httpserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/streamcave/overlay-api/internal/domain"
)

const accessTokenIssuer = "overlay-api"

var errInvalidAccessToken = errors.New("invalid access token")

type accessClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenIssuer signs the short-lived HS256 access tokens handed out by
// the refresh endpoint.
type AccessTokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewAccessTokenIssuer(secret string, ttl time.Duration, clock clockwork.Clock) *AccessTokenIssuer {
	return &AccessTokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (i *AccessTokenIssuer) Issue(holder *domain.Holder) (string, error) {
	now := i.clock.Now()
	claims := &accessClaims{
		Roles: holder.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    accessTokenIssuer,
			Subject:   holder.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and returns the holder id.
func (i *AccessTokenIssuer) Verify(raw string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(raw, &accessClaims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(accessTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", errInvalidAccessToken, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, errInvalidAccessToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errInvalidAccessToken)
	}
	return id, nil
}

func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}
