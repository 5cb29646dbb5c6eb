package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind is the purpose a persisted token was issued for.
// Kind is immutable after the token is created.
type TokenKind string

const (
	KindRefresh       TokenKind = "refresh"
	KindResetPassword TokenKind = "resetPassword"
	KindVerifyEmail   TokenKind = "verifyEmail"
)

// Token is the persisted record of an issued refresh, password-reset
// or email-verification token. Access tokens are never persisted.
//
// Blacklisted transitions false -> true only and never reverts.
type Token struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Token       string
	Kind        TokenKind
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
	Blacklisted bool
}

type IssuedToken struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires"`
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken `json:"access"`
	Refresh IssuedToken `json:"refresh"`
}
