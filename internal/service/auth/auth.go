// Package auth orchestrates login, registration, token refresh, logout,
// password reset, email verification and Google sign-in.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"studyhub/internal/apperrors"
	"studyhub/internal/logger"
	"studyhub/internal/mailer"
	"studyhub/internal/models"
	"studyhub/internal/repository"
	"studyhub/internal/service/auth/google"
	"studyhub/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// OAuthProvider exchanges an authorization code for an external identity
type OAuthProvider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (google.Profile, error)
}

type Config struct {
	// Header and scheme used to pass the access token
	// If not set than defaults are used
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie used to pass the refresh token
	// If not set than default is used
	RefreshCookieName string

	// Hasher to use during registration or login
	Hasher PasswordHasher

	// Mailer that delivers reset and verification tokens out-of-band
	// Defaults to a log-only mailer
	Mailer mailer.Mailer

	// External identity provider for Google sign-in, optional
	OAuth OAuthProvider
}

// AuthResult is what login-shaped operations return: the authenticated
// user snapshot and a fresh token pair
type AuthResult struct {
	User models.User      `json:"user"`
	Pair models.TokenPair `json:"tokens"`
}

type AuthService struct {
	// Manager to issue, validate and consume tokens
	token *tokenmanager.TokenManager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	// Repository to access long term data
	userRepo repository.UserRepo

	mailer mailer.Mailer
	oauth  OAuthProvider

	// Hash compared against when the account does not exist, so login
	// timing does not reveal whether an email is registered
	dummyHash string

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
}

func NewService(cfg Config, token *tokenmanager.TokenManager, userRepo repository.UserRepo) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	m := cfg.Mailer
	if m == nil {
		m = mailer.LogMailer{Logger: logger.NewNoOpLogger()}
	}

	setDefaultString := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefaultString(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefaultString(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefaultString(&cfg.RefreshCookieName, defaultRefreshCookieName)

	dummyHash, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("hasher is not usable. Err: %w", err)
	}

	return &AuthService{
		token:             token,
		hasher:            hasher,
		userRepo:          userRepo,
		mailer:            m,
		oauth:             cfg.OAuth,
		dummyHash:         dummyHash,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, email string, name string, password string) (AuthResult, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, email, name, hash)
	if err != nil {
		return AuthResult{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("token could not be generated, sorry. %w", err)
	}

	return AuthResult{User: user, Pair: pair}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn the same time as a real comparison would
		_ = s.hasher.Compare(s.dummyHash, password)
		return AuthResult{}, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return AuthResult{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("token could not be generated, sorry. %w", err)
	}

	return AuthResult{User: user, Pair: pair}, nil
}

// RefreshPair rotates the refresh token: the presented token is consumed
// atomically and a brand new pair is issued. A stolen refresh token is
// replayable at most once, whoever comes second gets ErrTokenRevoked.
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.token.Consume(ctx, refresh, models.KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	user, err := s.userRepo.GetUserByID(ctx, token.UserID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token owner lookup failed. Err: %w", err)
	}

	return s.token.GeneratePair(ctx, user)
}

// Logout revokes the presented refresh token. Best-effort: an invalid,
// unknown or already revoked token is not an error, the caller clears its
// local session either way.
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if refresh == "" {
		return nil
	}
	return s.token.Revoke(ctx, refresh)
}

// LogoutAll revokes every live refresh token of the user
func (s *AuthService) LogoutAll(ctx context.Context, user models.User) error {
	return s.token.RevokeAllForUser(ctx, user.ID, models.KindRefresh)
}

// ForgotPassword issues a single-use reset token and hands it to the mailer
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	reset, err := s.token.Issue(ctx, user.ID, models.KindResetPassword, s.token.ResetTTL())
	if err != nil {
		return err
	}

	return s.mailer.SendPasswordReset(ctx, user.Email, reset.Value)
}

// ResetPassword consumes the reset token, stores the new password hash and
// kills every refresh token of the user, so stolen sessions die with the
// old password.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken string, newPassword string) error {
	token, err := s.token.Consume(ctx, resetToken, models.KindResetPassword)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, token.UserID, hash); err != nil {
		return err
	}

	return s.token.RevokeAllForUser(ctx, token.UserID, models.KindRefresh)
}

// SendVerificationEmail issues a single-use verify token for the user
func (s *AuthService) SendVerificationEmail(ctx context.Context, user models.User) error {
	if user.EmailVerified {
		return nil
	}

	verify, err := s.token.Issue(ctx, user.ID, models.KindVerifyEmail, s.token.VerifyTTL())
	if err != nil {
		return err
	}

	return s.mailer.SendEmailVerification(ctx, user.Email, verify.Value)
}

// VerifyEmail consumes the verify token and marks the owner verified
func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) error {
	token, err := s.token.Consume(ctx, verifyToken, models.KindVerifyEmail)
	if err != nil {
		return err
	}

	return s.userRepo.MarkEmailVerified(ctx, token.UserID)
}

// GoogleAuthURL returns the consent screen URL for the Google sign-in handoff
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.oauth == nil {
		return "", errors.New("google sign-in is not configured")
	}
	return s.oauth.AuthCodeURL(state), nil
}

// OAuthLogin exchanges the authorization code and behaves like login with
// create-if-absent. Accounts are linked by email: an existing account with
// the identity's email is logged in, not duplicated.
func (s *AuthService) OAuthLogin(ctx context.Context, code string) (AuthResult, error) {
	if s.oauth == nil {
		return AuthResult{}, errors.New("google sign-in is not configured")
	}

	profile, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return AuthResult{}, fmt.Errorf("code exchange failed. Err: %w", err)
	}

	user, err := s.userRepo.GetUserByEmail(ctx, profile.Email)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		user, err = s.createOAuthUser(ctx, profile)
		if err != nil {
			return AuthResult{}, err
		}
	default:
		return AuthResult{}, err
	}

	pair, err := s.token.GeneratePair(ctx, user)
	if err != nil {
		return AuthResult{}, fmt.Errorf("token could not be generated, sorry. %w", err)
	}

	return AuthResult{User: user, Pair: pair}, nil
}

func (s *AuthService) createOAuthUser(ctx context.Context, profile google.Profile) (models.User, error) {
	// There is no password to store, a random unguessable one keeps the
	// password login path closed until the user resets it
	hash, err := s.hasher.Hash(randomPassword())
	if err != nil {
		return models.User{}, fmt.Errorf("can't generate placeholder password. Err: %w", err)
	}

	user, err := s.userRepo.CreateUser(ctx, profile.Email, profile.Name, hash)
	if err != nil {
		return models.User{}, err
	}

	if profile.EmailVerified {
		if err := s.userRepo.MarkEmailVerified(ctx, user.ID); err != nil {
			return models.User{}, err
		}
		user.EmailVerified = true
	}

	return user, nil
}

func randomPassword() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
