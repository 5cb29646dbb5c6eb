package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studyhub/internal/apperrors"
	"studyhub/internal/models"
)

type TokenRepo struct {
	DB DBTX
}

const saveToken = `-- name: SaveToken
INSERT INTO tokens (id, user_id, token, kind, created_at, updated_at, expires_at, blacklisted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, token, kind, created_at, updated_at, expires_at, blacklisted
`

func (r *TokenRepo) Save(ctx context.Context, token models.Token) (models.Token, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		token.ID, token.UserID, token.Token, token.Kind,
		token.CreatedAt, token.UpdatedAt, token.ExpiresAt, token.Blacklisted,
	)
	saved, err := pgx.CollectOneRow(rows, rowToToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}
	return saved, nil
}

const getToken = `-- name: GetToken by string itself
SELECT id, user_id, token, kind, created_at, updated_at, expires_at, blacklisted
FROM tokens
WHERE token = $1
`

// Get token
// It should return result even it expired or blacklisted already
func (r *TokenRepo) Get(ctx context.Context, tokenString string) (models.Token, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const consumeToken = `-- name: ConsumeToken if not blacklisted yet
UPDATE tokens
SET blacklisted = TRUE, updated_at = $2
WHERE token = $1 AND NOT blacklisted
RETURNING id, user_id, token, kind, created_at, updated_at, expires_at, blacklisted
`

// Consume blacklists the token if not blacklisted yet
// The WHERE clause makes consumption atomic: of any number of concurrent
// callers exactly one gets the row, others observe ErrTokenRevoked
func (r *TokenRepo) Consume(ctx context.Context, tokenString string) (models.Token, error) {
	rows, _ := r.DB.Query(ctx, consumeToken, tokenString, time.Now())
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Lost the race or the token never existed, look it up to tell apart
		if _, getErr := r.Get(ctx, tokenString); getErr == nil {
			return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenRevoked)
		}
		return token, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const revokeToken = `-- name: RevokeToken
UPDATE tokens
SET blacklisted = TRUE, updated_at = $2
WHERE token = $1 AND NOT blacklisted
`

// Revoke blacklists the token
// Idempotent: revoking a revoked or unknown token is not an error
func (r *TokenRepo) Revoke(ctx context.Context, tokenString string) error {
	_, err := r.DB.Exec(ctx, revokeToken, tokenString, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const revokeAllForUser = `-- name: RevokeAllForUser
UPDATE tokens
SET blacklisted = TRUE, updated_at = $3
WHERE user_id = $1 AND kind = $2 AND NOT blacklisted
`

func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind models.TokenKind) error {
	_, err := r.DB.Exec(ctx, revokeAllForUser, userID, kind, time.Now())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func rowToToken(row pgx.CollectableRow) (models.Token, error) {
	var t models.Token
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.Kind, &t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt, &t.Blacklisted)
	return t, err
}
