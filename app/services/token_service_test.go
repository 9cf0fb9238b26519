package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, accessTTL time.Duration) TokenService {
	t.Helper()
	svc, err := NewTokenService(accessTTL, 24*time.Hour, "meridian-test", "meridian-api", "test-secret-key-for-jwt-signing")
	require.NoError(t, err)
	return svc
}

func TestTokenService(t *testing.T) {
	svc := newTestTokenService(t, 15*time.Minute)

	t.Run("GenerateAndValidate", func(t *testing.T) {
		accessToken, refreshToken, err := svc.GenerateTokens(42)
		require.NoError(t, err)
		require.NotEmpty(t, accessToken)
		require.NotEmpty(t, refreshToken)
		assert.NotEqual(t, accessToken, refreshToken)

		claims, err := svc.ValidateToken(accessToken)
		require.NoError(t, err)
		assert.Equal(t, uint(42), claims.UserID)
		assert.Equal(t, "access", claims.TokenType)
		assert.NotEmpty(t, claims.TokenID)
		assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))

		refreshClaims, err := svc.ValidateToken(refreshToken)
		require.NoError(t, err)
		assert.Equal(t, "refresh", refreshClaims.TokenType)
		assert.NotEqual(t, claims.TokenID, refreshClaims.TokenID)
	})

	t.Run("RefreshIssuesNewPair", func(t *testing.T) {
		_, refreshToken, err := svc.GenerateTokens(7)
		require.NoError(t, err)

		newAccess, newRefresh, err := svc.RefreshToken(refreshToken)
		require.NoError(t, err)

		claims, err := svc.ValidateToken(newAccess)
		require.NoError(t, err)
		assert.Equal(t, uint(7), claims.UserID)
		assert.Equal(t, "access", claims.TokenType)

		claims, err = svc.ValidateToken(newRefresh)
		require.NoError(t, err)
		assert.Equal(t, "refresh", claims.TokenType)
	})

	t.Run("RefreshRejectsAccessToken", func(t *testing.T) {
		accessToken, _, err := svc.GenerateTokens(7)
		require.NoError(t, err)

		_, _, err = svc.RefreshToken(accessToken)
		assert.Error(t, err)
	})

	t.Run("TamperedTokenRejected", func(t *testing.T) {
		accessToken, _, err := svc.GenerateTokens(7)
		require.NoError(t, err)

		_, err = svc.ValidateToken(accessToken + "x")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("WrongSecretRejected", func(t *testing.T) {
		other, err := NewTokenService(15*time.Minute, 24*time.Hour, "meridian-test", "meridian-api", "a-different-secret")
		require.NoError(t, err)

		accessToken, _, err := other.GenerateTokens(7)
		require.NoError(t, err)

		_, err = svc.ValidateToken(accessToken)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("ExpiredTokenRejected", func(t *testing.T) {
		// TTL clamps to the default when non-positive, so use a tiny
		// positive TTL and wait it out.
		shortLived, err := NewTokenService(time.Millisecond, 24*time.Hour, "meridian-test", "meridian-api", "test-secret-key-for-jwt-signing")
		require.NoError(t, err)

		accessToken, _, err := shortLived.GenerateTokens(7)
		require.NoError(t, err)

		time.Sleep(1100 * time.Millisecond)

		_, err = shortLived.ValidateToken(accessToken)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("RequiresSecret", func(t *testing.T) {
		_, err := NewTokenService(15*time.Minute, 24*time.Hour, "meridian-test", "meridian-api", "")
		assert.Error(t, err)
	})
}
