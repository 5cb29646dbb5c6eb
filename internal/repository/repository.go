package repository

import (
	"context"

	"github.com/google/uuid"

	"studyhub/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, name string, hashedPassword string) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Replace the stored password hash
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error

	// Set the email verified flag
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
}

// Token repository interface
//
// Records are never physically deleted on revocation: blacklisting keeps the
// row and the validator rejects it.
type TokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.Token) (models.Token, error)

	// Return the token if it exists, even expired or blacklisted
	// If token does not exist must return apperrors.ErrTokenNotFound
	Get(ctx context.Context, tokenString string) (models.Token, error)

	// Atomically blacklist the token and return it.
	// Exactly one concurrent caller may win: if the token is blacklisted
	// already must return apperrors.ErrTokenRevoked, if it does not exist
	// apperrors.ErrTokenNotFound
	Consume(ctx context.Context, tokenString string) (models.Token, error)

	// Blacklist the token. Idempotent: revoking an already revoked or
	// unknown token is not an error
	Revoke(ctx context.Context, tokenString string) error

	// Blacklist every non-blacklisted token of the given kind owned by the user
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind models.TokenKind) error
}

// Storage combines the repositories of a single backend
type Storage interface {
	User() UserRepo
	Token() TokenRepo
}
