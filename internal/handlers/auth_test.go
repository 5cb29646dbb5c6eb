package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"studyhub/internal/handlers"
	"studyhub/internal/handlers/middleware"
	"studyhub/internal/logger"
	"studyhub/internal/repository/postgres"
	"studyhub/internal/service/auth"
	"studyhub/internal/service/auth/tokenmanager"
	"studyhub/internal/testutil"
)

func Test_AuthHandler(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Run http server and attach auth handlers
	// Production AuthService will be used
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(url string, auth *auth.AuthService)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(
				tokenmanager.Config{SecretKey: "test-secret", RefreshTTL: 24 * time.Hour},
				storage.Token(),
			)
			require.NoError(t, err, "token manager should be created without errors")

			s, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
			require.NoError(t, err, "auth service starting error")

			h := handlers.NewAuth(s, logger.NewNoOpLogger())
			srv := httptest.NewServer(h.Handler(middleware.AuthMiddleware(s)))
			defer srv.Close()

			fn(srv.URL, s)
		})
	}

	post := func(t *testing.T, url string, data string) (*http.Response, string) {
		t.Helper()

		resp, err := http.Post(url, "application/json", strings.NewReader(data))
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()

		return resp, string(body)
	}

	t.Run("register ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			data := `{"email": "nick@example.com", "name": "Nick", "password": "StrongEnoughPassword"}`

			resp, body := post(t, url+"/register", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"user"`)
			require.Contains(t, body, `"tokens"`)
			require.Contains(t, body, `"nick@example.com"`)
			require.NotContains(t, body, "password", "password hash must never leak into response")

			require.Equal(t, 1, len(resp.Cookies()))
			require.Equal(t, "refreshtoken", resp.Cookies()[0].Name)
		})
	})

	t.Run("register duplicate email", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			data := `{"email": "nick@example.com", "name": "Nick", "password": "StrongEnoughPassword"}`

			resp, _ := post(t, url+"/register", data)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp, body := post(t, url+"/register", data)
			require.Equalf(t, http.StatusConflict, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "User already exists"
				}`, body)
		})
	})

	t.Run("register invalid payload", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			data := `{"email": "not-an-email", "name": "N", "password": "short"}`

			resp, body := post(t, url+"/register", data)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, "validation_failed")
		})
	})

	t.Run("login ok", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			_, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"email": "nick@example.com", "password": "StrongEnoughPassword"}`
			resp, body := post(t, url+"/login", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"tokens"`)

			require.Equal(t, 1, len(resp.Cookies()))
			cookie := resp.Cookies()[0]
			require.Equal(t, "refreshtoken", cookie.Name)
			require.Equal(t, true, cookie.HttpOnly, "refresh cookie should be HttpOnly")
			require.Equal(t, "/", cookie.Path, "refresh cookie should be available on / path")
			require.Equal(t, http.SameSiteStrictMode, cookie.SameSite, "refresh cookie should be SameSite Strict")
			require.InDelta(t, (24 * time.Hour).Seconds(), cookie.MaxAge, 1, "max age should be refresh TTL with 1 second delta")
			require.NotEmpty(t, cookie.Value, "refresh cookie should not be empty")

			require.Contains(t, resp.Header, "Authorization")
			header := resp.Header.Get("Authorization")
			require.Contains(t, header, "Bearer")
		})
	})

	t.Run("login failed", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			data := `{"email": "nick@example.com", "password": "WrongPassword"}`

			resp, body := post(t, url+"/login", data)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"error": "service_error",
					"message": "Invalid email or password"
				}`, body)

			require.Equal(t, 0, len(resp.Cookies()), "no cookies should be set on login error")
			require.NotContains(t, resp.Header, "Authorization", "Authorization header should not be set")
		})
	})

	t.Run("refresh with cookie", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodPost, url+"/refresh", nil)
			require.NoError(t, err)
			s.SetTokenPairToRequest(req, registered.Pair)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
			require.Contains(t, string(body), `"tokens"`)

			require.Equal(t, 1, len(resp.Cookies()), "rotated refresh cookie should be set")
			require.NotEqual(t, registered.Pair.Refresh.Value, resp.Cookies()[0].Value, "refresh token must rotate")
		})
	})

	t.Run("refresh with body fallback", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"refreshToken": "` + registered.Pair.Refresh.Value + `"}`
			resp, body := post(t, url+"/refresh", data)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.Contains(t, body, `"tokens"`)
		})
	})

	t.Run("refresh with used token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"refreshToken": "` + registered.Pair.Refresh.Value + `"}`
			resp, _ := post(t, url+"/refresh", data)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp, body := post(t, url+"/refresh", data)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("refresh without token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/refresh", `{}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("logout always succeeds", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/logout", `{}`)

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", body)
			require.JSONEq(t, `
				{
					"message": "Logged out successfully"
				}`, body)

			// Cookie is cleared
			require.Equal(t, 1, len(resp.Cookies()))
			require.Equal(t, "refreshtoken", resp.Cookies()[0].Name)
			require.Less(t, resp.Cookies()[0].MaxAge, 0, "refresh cookie should be expired")
		})
	})

	t.Run("logout revokes the session", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			data := `{"refreshToken": "` + registered.Pair.Refresh.Value + `"}`
			resp, _ := post(t, url+"/logout", data)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp, body := post(t, url+"/refresh", data)
			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "revoked token must not refresh. Body: %s", body)
		})
	})

	t.Run("forgot password unknown email", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/forgot-password", `{"email": "nobody@example.com"}`)

			require.Equalf(t, http.StatusNotFound, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("reset password without token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/reset-password", `{"password": "NewPassword1234"}`)

			require.Equalf(t, http.StatusBadRequest, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("verify email with bad token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/verify-email?token=no-such-token", `{}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("send verification requires auth", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, body := post(t, url+"/send-verification-email", `{}`)

			require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "not expected code. Body: %s", body)
		})
	})

	t.Run("send verification with access token", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodPost, url+"/send-verification-email", nil)
			require.NoError(t, err)
			s.SetTokenPairToRequest(req, registered.Pair)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
		})
	})

	t.Run("google sign-in not configured", func(t *testing.T) {
		withTx(pg.Pool, t, func(url string, s *auth.AuthService) {
			resp, err := http.Get(url + "/google")
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
		})
	})
}
