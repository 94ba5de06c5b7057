// Package jwt issues HS256 access tokens whose ids are tracked server-side,
// so signing out revokes a token before it expires.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aridosvaldez/aridos/internal/accounts"
	"github.com/aridosvaldez/aridos/internal/domain"
	"github.com/aridosvaldez/aridos/internal/pkg/httputil"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "aridos"

// SessionStore records live token ids.
type SessionStore interface {
	Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error
	Exists(ctx context.Context, tokenID string) (bool, error)
	Delete(ctx context.Context, tokenID string) error
}

// Config holds token settings.
type Config struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

// Authenticator issues and validates access tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. A zero TTL means 12h.
func NewAuthenticator(config Config, store SessionStore) (*Authenticator, error) {
	if len(config.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 12 * time.Hour
	}
	return &Authenticator{
		secret: []byte(config.Secret),
		ttl:    config.TokenTTL,
		store:  store,
		now:    time.Now,
	}, nil
}

type claims struct {
	Role domain.Role `json:"role"`
	gojwt.RegisteredClaims
}

// Issue signs a token for user and records its id.
func (a *Authenticator) Issue(ctx context.Context, user *domain.User) (*domain.AuthToken, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	jti := uuid.NewString()

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims{
		Role: user.Role,
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        jti,
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	if err := a.store.Save(ctx, jti, user.ID, a.ttl); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	return &domain.AuthToken{
		AccessToken: signed,
		ExpiresAt:   expiresAt.UTC().Truncate(time.Second),
		User:        user,
	}, nil
}

// ValidateToken checks signature, expiry and that the token was not revoked.
func (a *Authenticator) ValidateToken(ctx context.Context, tokenString string) (*httputil.Principal, error) {
	var c claims
	_, err := gojwt.ParseWithClaims(tokenString, &c, func(t *gojwt.Token) (any, error) {
		return a.secret, nil
	},
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithIssuer(issuer),
		gojwt.WithExpirationRequired(),
		gojwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", accounts.ErrInvalidToken, err)
	}

	live, err := a.store.Exists(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !live {
		return nil, fmt.Errorf("%w: revoked", accounts.ErrInvalidToken)
	}

	return &httputil.Principal{UserID: c.Subject, Role: c.Role, TokenID: c.ID}, nil
}

// Revoke forgets the token id.
func (a *Authenticator) Revoke(ctx context.Context, tokenID string) error {
	return a.store.Delete(ctx, tokenID)
}
