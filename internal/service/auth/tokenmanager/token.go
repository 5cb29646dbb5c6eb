// Package tokenmanager issues and validates the platform tokens.
//
// Access tokens are short-lived JWTs signed with a shared secret and are
// never persisted. Refresh, password-reset and email-verification tokens
// are random opaque strings persisted in the token repository with a
// blacklisted flag, so they can be revoked without deleting the record.
package tokenmanager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"studyhub/internal/apperrors"
	"studyhub/internal/models"
	"studyhub/internal/repository"
)

const (
	defaultSigningMethod   = "HS256"
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 30 * 24 * time.Hour
	defaultResetTokenTTL   = 10 * time.Minute
	defaultVerifyTokenTTL  = 24 * time.Hour
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Token manager config with sensible defaults
type Config struct {
	// Secret key to sign access tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Token lifetimes
	// If not set than defaults are used
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	VerifyTTL  time.Duration
}

type TokenManager struct {
	// Secret key to sign access tokens
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Token lifetimes
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	verifyTTL  time.Duration

	// Persisted token repo
	tokenRepo repository.TokenRepo
}

func New(cfg Config, tokenRepo repository.TokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)
	setDefaultDuration(&cfg.ResetTTL, defaultResetTokenTTL)
	setDefaultDuration(&cfg.VerifyTTL, defaultVerifyTokenTTL)

	return &TokenManager{
		key:        cfg.SecretKey,
		alg:        jwt.GetSigningMethod(cfg.Alg),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
		verifyTTL:  cfg.VerifyTTL,
		tokenRepo:  tokenRepo,
	}, nil
}

// ResetTTL returns the lifetime password-reset tokens are issued with
func (m *TokenManager) ResetTTL() time.Duration { return m.resetTTL }

// VerifyTTL returns the lifetime email-verification tokens are issued with
func (m *TokenManager) VerifyTTL() time.Duration { return m.verifyTTL }

// RefreshTTL returns the lifetime refresh tokens are issued with
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// Issue generates a random opaque token of the given kind and persists it
// with expiry now+ttl. ttl=0 issues an already expired token.
func (m *TokenManager) Issue(ctx context.Context, userID uuid.UUID, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	// Random token 16 bytes length
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while generating token. Err: %w", err)
	}

	value := hex.EncodeToString(b)

	_, err = m.tokenRepo.Save(ctx, models.Token{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     value,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while saving token. Err: %w", err)
	}

	return models.IssuedToken{Value: value, ExpiresAt: expiresAt}, nil
}

// Validate checks the token without mutating it.
// Fails with apperrors.ErrTokenNotFound, ErrTokenExpired, ErrTokenRevoked or
// ErrTokenKindMismatch; on success returns the stored token with its owner.
func (m *TokenManager) Validate(ctx context.Context, tokenString string, kind models.TokenKind) (models.Token, error) {
	token, err := m.tokenRepo.Get(ctx, tokenString)
	if err != nil {
		return token, fmt.Errorf("error while validating token. Err: %w", err)
	}

	return token, m.check(token, kind)
}

// Consume validates the token and blacklists it in one step.
// The repository guarantees only one concurrent caller wins consumption,
// the losers get ErrTokenRevoked. Used for refresh rotation and for
// single-use reset and verify tokens.
func (m *TokenManager) Consume(ctx context.Context, tokenString string, kind models.TokenKind) (models.Token, error) {
	token, err := m.tokenRepo.Consume(ctx, tokenString)
	if err != nil {
		return token, fmt.Errorf("error while consuming token. Err: %w", err)
	}

	// The returned record is blacklisted already, here only expiry and kind
	// matter. The token is burned either way, a mismatched or expired one
	// must not pass.
	switch {
	case token.ExpiresAt.Before(time.Now()):
		return token, fmt.Errorf("error while consuming token. Err: %w", apperrors.ErrTokenExpired)
	case token.Kind != kind:
		return token, fmt.Errorf("error while consuming token. Err: %w", apperrors.ErrTokenKindMismatch)
	}

	return token, nil
}

func (m *TokenManager) check(token models.Token, kind models.TokenKind) error {
	switch {
	case token.ExpiresAt.Before(time.Now()):
		return fmt.Errorf("error while validating token. Err: %w", apperrors.ErrTokenExpired)
	case token.Blacklisted:
		return fmt.Errorf("error while validating token. Err: %w", apperrors.ErrTokenRevoked)
	case token.Kind != kind:
		return fmt.Errorf("error while validating token. Err: %w", apperrors.ErrTokenKindMismatch)
	default:
		return nil
	}
}

// Revoke blacklists the token. Idempotent, unknown tokens are not an error.
func (m *TokenManager) Revoke(ctx context.Context, tokenString string) error {
	return m.tokenRepo.Revoke(ctx, tokenString)
}

// RevokeAllForUser blacklists every live token of the kind the user owns
func (m *TokenManager) RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind models.TokenKind) error {
	return m.tokenRepo.RevokeAllForUser(ctx, userID, kind)
}

// GeneratePair issues a signed access token and a persisted refresh token
func (m *TokenManager) GeneratePair(ctx context.Context, user models.User) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)
	accessExpiresAt := now.Add(m.accessTTL)

	// Generate JWT access token decoded as string
	accessToken := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(accessExpiresAt),
			},
			UserID: user.ID,
		},
	)
	access, err := accessToken.SignedString([]byte(m.key))
	if err != nil {
		return pair, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	refresh, err := m.Issue(ctx, user.ID, models.KindRefresh, m.refreshTTL)
	if err != nil {
		return pair, err
	}

	return models.TokenPair{
		Access:  models.IssuedToken{Value: access, ExpiresAt: accessExpiresAt},
		Refresh: refresh,
	}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(ctx context.Context, access string) (userID uuid.UUID, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	return claims.UserID, nil
}
