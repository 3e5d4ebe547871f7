package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, jti, err := GenerateToken("test-secret-key", "user-123", "reader", time.Hour)

	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Len(t, jti, 32)
}

func TestParseToken(t *testing.T) {
	secret := "test-secret-key"
	userID := "user-123"

	t.Run("valid token", func(t *testing.T) {
		token, jti, err := GenerateToken(secret, userID, "reader", time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.Subject)
		assert.Equal(t, "reader", claims.Username)
		assert.Equal(t, jti, claims.ID)
	})

	t.Run("invalid signature", func(t *testing.T) {
		token, _, err := GenerateToken("wrong-secret", userID, "", time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("expired token", func(t *testing.T) {
		c := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
		assert.Nil(t, claims)
	})

	t.Run("missing subject", func(t *testing.T) {
		c := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = ParseToken(secret, token)
		assert.Error(t, err)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		c := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = ParseToken(secret, token)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseToken(secret, "not-a-token")
		assert.Error(t, err)
	})
}

func TestTokenIssuer(t *testing.T) {
	issuer := NewTokenIssuer("issuer-secret", 30*time.Minute)

	token, err := issuer.Issue("user-42", "ada")
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
	assert.Equal(t, 30*time.Minute, issuer.TTL())

	other := NewTokenIssuer("another-secret", time.Minute)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Valid123!")
	require.NoError(t, err)

	assert.NotEqual(t, "Valid123!", hash)
	assert.True(t, VerifyPassword(hash, "Valid123!"))
	assert.False(t, VerifyPassword(hash, "Valid123?"))
}
