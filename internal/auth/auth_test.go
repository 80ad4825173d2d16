package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter2", Params)
	require.NoError(t, err)

	ok, err := VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("anything", "not-an-encoded-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	Init()

	userID := uuid.New().String()
	token, err := CreateJWT(userID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, sub)

	_, err = AuthenticateJWT(token + "tampered")
	assert.Error(t, err)
}
