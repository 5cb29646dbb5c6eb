// Package client is the Go client for the studyhub API. It owns the user
// session: every request carries the current access token, and a 401
// triggers exactly one refresh attempt shared by all concurrent requests.
// If the refresh fails the session is cleared and callers get
// ErrSessionExpired, the signal to send the user back to login.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"studyhub/internal/logger"
	"studyhub/internal/models"
)

type Client struct {
	baseURL string
	http    *http.Client
	store   SessionStore
	logger  logger.Logger

	// collapses concurrent refresh attempts into a single in-flight call
	refreshGroup singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, store SessionStore, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
		logger:  logger.NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Login exchanges credentials for a session and persists it
func (c *Client) Login(ctx context.Context, email string, password string) (Session, error) {
	return c.startSession(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an account, the response shape matches login
func (c *Client) Register(ctx context.Context, email string, name string, password string) (Session, error) {
	return c.startSession(ctx, "/api/auth/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	})
}

// GoogleSignInURL asks the server for the consent screen URL
func (c *Client) GoogleSignInURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/auth/google", nil, &resp, ""); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// GoogleCallback completes the third-party sign-in with the code the
// provider redirected back with
func (c *Client) GoogleCallback(ctx context.Context, code string) (Session, error) {
	return c.startSession(ctx, "/api/auth/google/callback?code="+code, nil)
}

func (c *Client) startSession(ctx context.Context, path string, body any) (Session, error) {
	var session Session

	method := http.MethodPost
	if body == nil {
		method = http.MethodGet
	}

	if err := c.send(ctx, method, path, body, &session, ""); err != nil {
		return Session{}, err
	}

	if err := c.store.Save(session); err != nil {
		return Session{}, fmt.Errorf("persist session: %w", err)
	}

	return session, nil
}

// Logout revokes the refresh token on the server and clears the local
// session. The local clear always happens, even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	session, ok, err := c.store.Load()
	if err == nil && ok {
		body := map[string]string{"refreshToken": session.Tokens.Refresh.Value}
		if sendErr := c.send(ctx, http.MethodPost, "/api/auth/logout", body, nil, session.Tokens.Access.Value); sendErr != nil {
			c.logger.Warn("server-side logout failed", "error", sendErr.Error())
		}
	}

	return c.store.Clear()
}

// ForgotPassword asks the server to mail a reset token
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.send(ctx, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, nil, "")
}

// ResetPassword completes the password reset with the mailed token
func (c *Client) ResetPassword(ctx context.Context, token string, password string) error {
	return c.send(ctx, http.MethodPost, "/api/auth/reset-password?token="+token, map[string]string{"password": password}, nil, "")
}

// Authenticated reports whether a stored session exists, the route guard
// predicate of the UI
func (c *Client) Authenticated() bool {
	session, ok, err := c.store.Load()
	return err == nil && ok && session.Authenticated()
}

// CurrentUser returns the stored user snapshot
func (c *Client) CurrentUser() (models.User, bool) {
	session, ok, err := c.store.Load()
	if err != nil || !ok {
		return models.User{}, false
	}
	return session.User, true
}

// Do performs an authorized request. On 401 it refreshes the token pair
// (one in-flight refresh regardless of how many requests failed
// concurrently) and retries the request exactly once.
func (c *Client) Do(ctx context.Context, method string, path string, body any, out any) error {
	session, ok, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return ErrNotAuthenticated
	}

	err = c.send(ctx, method, path, body, out, session.Tokens.Access.Value)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if err := c.refreshSession(ctx); err != nil {
		return err
	}

	session, ok, err = c.store.Load()
	if err != nil || !ok {
		return ErrSessionExpired
	}

	return c.send(ctx, method, path, body, out, session.Tokens.Access.Value)
}

// refreshSession rotates the token pair. Concurrent callers share one
// refresh call and observe the same outcome. On failure the session is
// cleared: there is nothing valid left to retry with.
func (c *Client) refreshSession(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		session, ok, err := c.store.Load()
		if err != nil || !ok {
			return nil, ErrSessionExpired
		}

		var resp struct {
			Tokens models.TokenPair `json:"tokens"`
		}
		body := map[string]string{"refreshToken": session.Tokens.Refresh.Value}
		if err := c.send(ctx, http.MethodPost, "/api/auth/refresh", body, &resp, ""); err != nil {
			c.logger.Info("token refresh failed, clearing session", "error", err.Error())
			_ = c.store.Clear()
			return nil, fmt.Errorf("%w: %s", ErrSessionExpired, err)
		}

		session.Tokens = resp.Tokens
		if err := c.store.Save(session); err != nil {
			return nil, fmt.Errorf("persist refreshed session: %w", err)
		}

		return nil, nil
	})

	return err
}

// send performs one HTTP round-trip: JSON in, JSON out. Non-2xx responses
// come back as *APIError with the server's structured failure payload.
func (c *Client) send(ctx context.Context, method string, path string, body any, out any, accessToken string) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}

		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &payload); err == nil {
			apiErr.Type = payload.Error
			apiErr.Message = payload.Message
		}

		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
