package jwthelper

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = []byte("test-signing-key")

const actor = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func TestGenerateAndParse(t *testing.T) {
	token, err := GenerateToken(key, actor, true, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(key, token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Subject)
	assert.True(t, claims.Admin)
}

func TestParseToken_Rejects(t *testing.T) {
	expired, err := GenerateToken(key, actor, false, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(key, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	valid, err := GenerateToken(key, actor, false, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken([]byte("other-key"), valid)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(key, none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken(key, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSubjectMustBeUUID(t *testing.T) {
	_, err := GenerateToken(key, "steve", false, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidSubject)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "steve",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(key)
	require.NoError(t, err)
	_, err = ParseToken(key, token)
	assert.ErrorIs(t, err, ErrInvalidSubject)
}
