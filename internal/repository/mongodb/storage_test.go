package mongodb_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyhub/internal/apperrors"
	"studyhub/internal/models"
	"studyhub/internal/testutil"
)

func Test_MongoStorage(t *testing.T) {
	t.Parallel()

	mg := testutil.StartMongoContainer(t)
	t.Cleanup(mg.Terminate)

	// No transactions to roll back here, so every case gets its own email
	// and token values to stay independent
	uniqueEmail := func() string {
		return fmt.Sprintf("user-%s@example.com", uuid.NewString())
	}

	newToken := func(userID uuid.UUID, kind models.TokenKind) models.Token {
		now := time.Now().Truncate(time.Millisecond)
		return models.Token{
			ID:        uuid.New(),
			UserID:    userID,
			Token:     uuid.NewString(),
			Kind:      kind,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(24 * time.Hour),
		}
	}

	t.Run("users", func(t *testing.T) {
		t.Run("create and get", func(t *testing.T) {
			repo := mg.Storage.User()
			email := uniqueEmail()

			created, err := repo.CreateUser(t.Context(), email, "Nick", "hashed_password")
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, created.ID)
			require.Equal(t, email, created.Email)
			require.False(t, created.EmailVerified)

			byID, err := repo.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created.Email, byID.Email)

			byEmail, err := repo.GetUserByEmail(t.Context(), email)
			require.NoError(t, err)
			require.Equal(t, created.ID, byEmail.ID)
		})

		t.Run("duplicate email", func(t *testing.T) {
			repo := mg.Storage.User()
			email := uniqueEmail()

			_, err := repo.CreateUser(t.Context(), email, "Nick", "hashed_password")
			require.NoError(t, err)

			_, err = repo.CreateUser(t.Context(), email, "Other", "other_hash")
			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})

		t.Run("not found", func(t *testing.T) {
			repo := mg.Storage.User()

			_, err := repo.GetUserByID(t.Context(), uuid.New())
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

			_, err = repo.GetUserByEmail(t.Context(), uniqueEmail())
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})

		t.Run("update password and verify email", func(t *testing.T) {
			repo := mg.Storage.User()

			created, err := repo.CreateUser(t.Context(), uniqueEmail(), "Nick", "old_hash")
			require.NoError(t, err)

			require.NoError(t, repo.UpdatePassword(t.Context(), created.ID, "new_hash"))
			require.NoError(t, repo.MarkEmailVerified(t.Context(), created.ID))

			got, err := repo.GetUserByID(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, "new_hash", got.HashedPassword)
			require.True(t, got.EmailVerified)
		})
	})

	t.Run("tokens", func(t *testing.T) {
		t.Run("save and get", func(t *testing.T) {
			repo := mg.Storage.Token()
			token := newToken(uuid.New(), models.KindRefresh)

			saved, err := repo.Save(t.Context(), token)
			require.NoError(t, err)
			require.Equal(t, token.Token, saved.Token)
			require.False(t, saved.Blacklisted)

			got, err := repo.Get(t.Context(), token.Token)
			require.NoError(t, err)
			require.Equal(t, token.UserID, got.UserID)
			require.Equal(t, models.KindRefresh, got.Kind)
			require.WithinDuration(t, token.ExpiresAt, got.ExpiresAt, time.Millisecond)
		})

		t.Run("get not existed", func(t *testing.T) {
			repo := mg.Storage.Token()

			_, err := repo.Get(t.Context(), uuid.NewString())
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})

		t.Run("consume once then revoked", func(t *testing.T) {
			repo := mg.Storage.Token()
			token := newToken(uuid.New(), models.KindRefresh)

			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			got, err := repo.Consume(t.Context(), token.Token)
			require.NoError(t, err)
			require.True(t, got.Blacklisted, "consumed token must come back blacklisted")

			_, err = repo.Consume(t.Context(), token.Token)
			require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
		})

		t.Run("consume not existed", func(t *testing.T) {
			repo := mg.Storage.Token()

			_, err := repo.Consume(t.Context(), uuid.NewString())
			assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
		})

		t.Run("consume concurrently exactly one winner", func(t *testing.T) {
			repo := mg.Storage.Token()
			token := newToken(uuid.New(), models.KindRefresh)

			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			const workers = 10
			var wg sync.WaitGroup
			results := make(chan error, workers)

			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := repo.Consume(t.Context(), token.Token)
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			winners := 0
			for err := range results {
				if err == nil {
					winners++
					continue
				}
				require.ErrorIs(t, err, apperrors.ErrTokenRevoked, "losers must observe ErrTokenRevoked")
			}
			require.Equal(t, 1, winners, "exactly one concurrent consumer must win")
		})

		t.Run("revoke is idempotent", func(t *testing.T) {
			repo := mg.Storage.Token()
			token := newToken(uuid.New(), models.KindRefresh)

			_, err := repo.Save(t.Context(), token)
			require.NoError(t, err)

			require.NoError(t, repo.Revoke(t.Context(), token.Token))
			require.NoError(t, repo.Revoke(t.Context(), token.Token))
			require.NoError(t, repo.Revoke(t.Context(), uuid.NewString()))
		})

		t.Run("revoke all for user by kind", func(t *testing.T) {
			repo := mg.Storage.Token()
			userID := uuid.New()

			refresh1 := newToken(userID, models.KindRefresh)
			refresh2 := newToken(userID, models.KindRefresh)
			reset := newToken(userID, models.KindResetPassword)

			for _, tok := range []models.Token{refresh1, refresh2, reset} {
				_, err := repo.Save(t.Context(), tok)
				require.NoError(t, err)
			}

			require.NoError(t, repo.RevokeAllForUser(t.Context(), userID, models.KindRefresh))

			for _, tokenString := range []string{refresh1.Token, refresh2.Token} {
				got, err := repo.Get(t.Context(), tokenString)
				require.NoError(t, err)
				require.True(t, got.Blacklisted)
			}

			got, err := repo.Get(t.Context(), reset.Token)
			require.NoError(t, err)
			require.False(t, got.Blacklisted, "other kinds must stay live")
		})
	})
}
