package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

func TestGenerateAndParseToken(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	token, err := maker.GenerateToken("user_1", "user@example.com", models.AccessPartial)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.ClerkID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, models.AccessPartial, claims.AccessLevel)
	assert.Equal(t, "user_1", claims.Subject)
}

func TestParseTokenWithoutAccessLevel(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	token, err := maker.GenerateToken("user_1", "user@example.com", "")
	require.NoError(t, err)

	claims, err := maker.ParseToken(token)
	require.NoError(t, err)
	assert.Empty(t, claims.AccessLevel)
}

func TestParseTokenWrongSecret(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)
	other := NewMaker("another-secret", time.Hour)

	token, err := maker.GenerateToken("user_1", "user@example.com", "")
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.Error(t, err)
}

func TestParseExpiredToken(t *testing.T) {
	maker := NewMaker("test-secret", -time.Minute)

	token, err := maker.GenerateToken("user_1", "user@example.com", "")
	require.NoError(t, err)

	_, err = maker.ParseToken(token)
	assert.Error(t, err)
}

func TestParseGarbageToken(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)
	_, err := maker.ParseToken("not-a-token")
	assert.Error(t, err)
}
