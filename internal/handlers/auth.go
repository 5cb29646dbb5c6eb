package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"studyhub/internal/apperrors"
	"studyhub/internal/handlers/render"
	"studyhub/internal/logger"
	"studyhub/internal/models"
	"studyhub/internal/service/auth"
)

// Auth service surface the handlers need
type AuthService interface {
	Register(ctx context.Context, email string, name string, password string) (auth.AuthResult, error)
	Login(ctx context.Context, email string, password string) (auth.AuthResult, error)
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)
	Logout(ctx context.Context, refresh string) error

	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, resetToken string, newPassword string) error
	SendVerificationEmail(ctx context.Context, user models.User) error
	VerifyEmail(ctx context.Context, verifyToken string) error

	GoogleAuthURL(state string) (string, error)
	OAuthLogin(ctx context.Context, code string) (auth.AuthResult, error)

	// Transport helpers: tokens travel in the auth header and refresh cookie
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)
	ReadRefresh(r *http.Request) (string, error)
}

type AuthHandler struct {
	authService AuthService
	logger      logger.Logger
}

func NewAuth(auth AuthService, l logger.Logger) *AuthHandler {
	return &AuthHandler{authService: auth, logger: l}
}

// Handler mounts the auth routes. withAuth guards the routes that need an
// authenticated caller.
func (h *AuthHandler) Handler(withAuth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", h.register)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /refresh", h.refresh)
	mux.HandleFunc("POST /logout", h.logout)
	mux.HandleFunc("POST /forgot-password", h.forgotPassword)
	mux.HandleFunc("POST /reset-password", h.resetPassword)
	mux.HandleFunc("POST /verify-email", h.verifyEmail)
	mux.Handle("POST /send-verification-email", withAuth(http.HandlerFunc(h.sendVerificationEmail)))
	mux.HandleFunc("GET /google", h.google)
	mux.HandleFunc("GET /google/callback", h.googleCallback)

	return mux
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Name     string `json:"name" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	result, err := h.authService.Register(r.Context(), data.Email, data.Name, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			h.logger.Error("register failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokens(w, result.Pair)
	render.JSON(w, result)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	result, err := h.authService.Login(r.Context(), data.Email, data.Password)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		default:
			h.logger.Error("login failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.authService.SetTokens(w, result.Pair)
	render.JSON(w, result)
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshSuccessResponse struct {
		Tokens models.TokenPair `json:"tokens"`
	}

	refresh := h.readRefresh(r)
	if refresh == "" {
		render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		return
	}

	pair, err := h.authService.RefreshPair(r.Context(), refresh)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrTokenExpired):
			render.ServiceError(w, "Refresh token expired", http.StatusUnauthorized)
		default:
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
		}
		return
	}

	h.authService.SetTokens(w, pair)
	render.JSON(w, RefreshSuccessResponse{Tokens: pair})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	// Logout always succeeds for the caller, revocation is best-effort
	if err := h.authService.Logout(r.Context(), h.readRefresh(r)); err != nil {
		h.logger.Warn("logout revocation failed", "error", err.Error())
	}

	h.authService.ClearTokens(w)
	render.JSON(w, LogoutSuccessResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	type ForgotPasswordRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
	type ForgotPasswordSuccessResponse struct {
		Message string `json:"message"`
	}

	data, err := render.BindAndValidate[ForgotPasswordRequest](w, r)
	if err != nil {
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), data.Email); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			h.logger.Error("forgot password failed", "error", err.Error())
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	render.JSON(w, ForgotPasswordSuccessResponse{Message: "Reset email sent"})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	type ResetPasswordRequest struct {
		Password string `json:"password" validate:"required,min=8"`
	}
	type ResetPasswordSuccessResponse struct {
		Message string `json:"message"`
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		render.ServiceError(w, "Reset token not found", http.StatusBadRequest)
		return
	}

	data, err := render.BindAndValidate[ResetPasswordRequest](w, r)
	if err != nil {
		return
	}

	if err := h.authService.ResetPassword(r.Context(), token, data.Password); err != nil {
		h.renderTokenError(w, err, "Reset")
		return
	}

	render.JSON(w, ResetPasswordSuccessResponse{Message: "Password reset successfully"})
}

func (h *AuthHandler) sendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	type SendVerificationSuccessResponse struct {
		Message string `json:"message"`
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.authService.SendVerificationEmail(r.Context(), user); err != nil {
		h.logger.Error("send verification failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	render.JSON(w, SendVerificationSuccessResponse{Message: "Verification email sent"})
}

func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	type VerifyEmailSuccessResponse struct {
		Message string `json:"message"`
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		render.ServiceError(w, "Verify token not found", http.StatusBadRequest)
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), token); err != nil {
		h.renderTokenError(w, err, "Verify")
		return
	}

	render.JSON(w, VerifyEmailSuccessResponse{Message: "Email verified successfully"})
}

func (h *AuthHandler) google(w http.ResponseWriter, r *http.Request) {
	type GoogleSignInResponse struct {
		URL string `json:"url"`
	}

	url, err := h.authService.GoogleAuthURL(r.URL.Query().Get("state"))
	if err != nil {
		render.ServiceError(w, "Google sign-in is not available", http.StatusNotImplemented)
		return
	}

	render.JSON(w, GoogleSignInResponse{URL: url})
}

func (h *AuthHandler) googleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		render.ServiceError(w, "Authorization code not found", http.StatusBadRequest)
		return
	}

	result, err := h.authService.OAuthLogin(r.Context(), code)
	if err != nil {
		h.logger.Error("google sign-in failed", "error", err.Error())
		render.ServiceError(w, "Google sign-in failed", http.StatusUnauthorized)
		return
	}

	h.authService.SetTokens(w, result.Pair)
	render.JSON(w, result)
}

// readRefresh takes the refresh token from the cookie, falling back to the
// request body for clients that do not use cookies
func (h *AuthHandler) readRefresh(r *http.Request) string {
	if refresh, err := h.authService.ReadRefresh(r); err == nil {
		return refresh
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body.RefreshToken
}

func (h *AuthHandler) renderTokenError(w http.ResponseWriter, err error, label string) {
	switch {
	case errors.Is(err, apperrors.ErrTokenExpired):
		render.ServiceError(w, label+" token expired", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenRevoked):
		render.ServiceError(w, label+" token already used", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrTokenNotFound), errors.Is(err, apperrors.ErrTokenKindMismatch):
		render.ServiceError(w, label+" token invalid", http.StatusUnauthorized)
	default:
		h.logger.Error("token operation failed", "error", err.Error())
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
