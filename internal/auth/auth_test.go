package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_AcceptsValidToken(t *testing.T) {
	v := NewJWTVerifier("super-secret")
	token := signToken(t, "super-secret", Claims{
		Email: "ada@example.com",
		Name:  "Ada",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "Ada", identity.Name)
}

func TestJWTVerifier_RejectsWrongSigningSecret(t *testing.T) {
	v := NewJWTVerifier("correct-secret")
	token := signToken(t, "wrong-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestJWTVerifier_RejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier("super-secret")
	token := signToken(t, "super-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestJWTVerifier_RejectsTokenWithoutSubject(t *testing.T) {
	v := NewJWTVerifier("super-secret")
	token := signToken(t, "super-secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.Verify(token)
	assert.Error(t, err)
}

func TestJWTVerifier_RejectsWhenSecretUnconfigured(t *testing.T) {
	v := NewJWTVerifier("")
	_, err := v.Verify("anything")
	assert.Error(t, err)
}

func TestTestModeVerifier_AcceptsMatchingSharedToken(t *testing.T) {
	v := NewTestModeVerifier("shared-secret")
	identity, err := v.Verify("shared-secret")
	require.NoError(t, err)
	assert.Equal(t, "e2e-test-user", identity.UserID)
}

func TestTestModeVerifier_RejectsNonMatchingToken(t *testing.T) {
	v := NewTestModeVerifier("shared-secret")
	_, err := v.Verify("wrong")
	assert.Error(t, err)
}

func TestTestModeVerifier_RejectsEmptyToken(t *testing.T) {
	v := NewTestModeVerifier("shared-secret")
	_, err := v.Verify("")
	assert.Error(t, err)
}
