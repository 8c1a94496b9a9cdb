package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoubt/manim-tutor-api/pkg/db"
)

func testUser() *db.User {
	return &db.User{
		ID:       uuid.New(),
		Email:    "ada@example.com",
		Username: "ada",
	}
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	svc := NewJWTService("test-secret")
	user := testUser()

	pair, err := svc.GenerateTokenPair(user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.ValidateToken(pair.AccessToken, TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, "manim-tutor-api", claims.Issuer)
	assert.Equal(t, user.ID.String(), claims.Subject)

	refreshClaims, err := svc.ValidateToken(pair.RefreshToken, TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refreshClaims.TokenType)
}

// A refresh token must never be accepted where an access token is required,
// and the other way around.
func TestValidateTokenRejectsWrongType(t *testing.T) {
	svc := NewJWTService("test-secret")
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(pair.RefreshToken, TokenTypeAccess)
	assert.Error(t, err)
	assert.Nil(t, claims)

	claims, err = svc.ValidateToken(pair.AccessToken, TokenTypeRefresh)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewJWTService("test-secret")
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(pair.AccessToken+"x", TokenTypeAccess)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	pair, err := NewJWTService("secret-one").GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := NewJWTService("secret-two").ValidateToken(pair.AccessToken, TokenTypeAccess)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := &JWTService{
		secret:        []byte("test-secret"),
		accessExpiry:  -time.Hour,
		refreshExpiry: -time.Hour,
	}
	pair, err := svc.GenerateTokenPair(testUser())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(pair.AccessToken, TokenTypeAccess)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret")
	claims, err := svc.ValidateToken("not-a-token", TokenTypeAccess)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
