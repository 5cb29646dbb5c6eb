package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studyhub/internal/models"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

// SetTokens writes the pair to the response: access token in the auth
// header, refresh token in a HttpOnly cookie
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh))
}

// SetTokenPairToRequest decorates an outgoing request the same way
// SetTokens decorates a response. Handy in tests and clients.
func (s *AuthService) SetTokenPairToRequest(req *http.Request, pair models.TokenPair) {
	req.Header.Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	req.AddCookie(s.refreshCookie(pair.Refresh))
}

func (s *AuthService) refreshCookie(refresh models.IssuedToken) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    refresh.Value,
		Path:     "/",
		MaxAge:   int(time.Until(refresh.ExpiresAt).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearTokens expires the refresh cookie, the local session is gone
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ReadRefresh extracts the refresh token from the request cookie
func (s *AuthService) ReadRefresh(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", fmt.Errorf("no refresh cookie: %w", err)
	}
	return cookie.Value, nil
}

// Auth authenticates the request by its access token and returns the user
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	if header == "" {
		return models.User{}, errors.New("no auth header")
	}

	access, found := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !found {
		return models.User{}, fmt.Errorf("auth header is not %q scheme", s.accessAuthScheme)
	}

	userID, err := s.token.ParseAccess(ctx, access)
	if err != nil {
		return models.User{}, err
	}

	return s.userRepo.GetUserByID(ctx, userID)
}
