package handlers_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"studyhub/internal/handlers"
	"studyhub/internal/handlers/middleware"
	"studyhub/internal/repository/postgres"
	"studyhub/internal/service/auth"
	"studyhub/internal/service/auth/tokenmanager"
	"studyhub/internal/testutil"
)

func Test_UserHandler(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("me", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)

			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Token())
			require.NoError(t, err)
			s, err := auth.NewService(auth.Config{}, tokenManager, storage.User())
			require.NoError(t, err)

			h := handlers.NewUser()
			srv := httptest.NewServer(h.Handler(middleware.AuthMiddleware(s)))
			defer srv.Close()

			registered, err := s.Register(t.Context(), "nick@example.com", "Nick", "StrongEnoughPassword")
			require.NoError(t, err)

			t.Run("with access token", func(t *testing.T) {
				req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
				require.NoError(t, err)
				s.SetTokenPairToRequest(req, registered.Pair)

				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				require.Equalf(t, http.StatusOK, resp.StatusCode, "not expected code. Body: %s", string(body))
				require.Contains(t, string(body), `"nick@example.com"`)
				require.Contains(t, string(body), `"user"`)
			})

			t.Run("without access token", func(t *testing.T) {
				resp, err := http.Get(srv.URL + "/me")
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			})

			t.Run("with garbage token", func(t *testing.T) {
				req, err := http.NewRequest(http.MethodGet, srv.URL+"/me", nil)
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer not-a-jwt")

				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				defer func() { _ = resp.Body.Close() }()

				require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			})
		})
	})
}
