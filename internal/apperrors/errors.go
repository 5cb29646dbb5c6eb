package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenNotFound     = errors.New("token not found")
	ErrTokenExpired      = errors.New("token is expired")
	ErrTokenRevoked      = errors.New("token is revoked")
	ErrTokenKindMismatch = errors.New("token kind mismatch")
)
