package auth

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions(testSecret)
	token, expireAt, err := Generate(opts, "alice")
	require.NoError(t, err)
	assert.True(t, expireAt.After(time.Now()))

	uid, err := NewJWT(opts).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	_, err := NewJWT(DefaultOptions(testSecret)).Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewJWT(DefaultOptions(testSecret)).Verify(context.Background(), "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("other-secret")), "alice")
	require.NoError(t, err)

	_, err = NewJWT(DefaultOptions(testSecret)).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	now := time.Now()
	claims := jwtlib.MapClaims{
		"sub": "alice",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewJWT(DefaultOptions(testSecret)).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	token, _, err := Generate(DefaultOptions(testSecret), "")
	require.NoError(t, err)

	_, err = NewJWT(DefaultOptions(testSecret)).Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateRejectsUnknownAlg(t *testing.T) {
	opts := DefaultOptions(testSecret)
	opts.Alg = "RS256"
	_, _, err := Generate(opts, "alice")
	assert.Error(t, err)
}

func TestVerifyAcceptsHS512(t *testing.T) {
	opts := DefaultOptions(testSecret)
	opts.Alg = "HS512"
	token, _, err := Generate(opts, "bob")
	require.NoError(t, err)

	uid, err := NewJWT(opts).Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "bob", uid)
}
