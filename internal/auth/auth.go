// Package auth is the engine's sole touchpoint with identity: verifying
// a bearer token presented at WebSocket upgrade time. Issuance,
// refresh, and revocation belong to the external identity provider
// (Supabase in the teacher's deployment) — this package only verifies,
// per spec §1's "external collaborator" treatment of auth. Adapted
// from the teacher's Service.VerifyToken (internal/auth/auth.go),
// trimmed to that one responsibility.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the connection handler needs about the caller once
// a token has checked out.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Avatar string
}

type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier checks a bearer token and returns the identity it carries.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// JWTVerifier validates HS256-signed tokens issued by the external
// identity provider.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}

	return &Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// TestModeVerifier accepts a single fixed shared-secret token and maps
// it to a synthetic identity, for local/E2E runs where standing up the
// real identity provider is impractical. Only ever wired in when
// E2E_TEST_AUTH is explicitly set.
type TestModeVerifier struct {
	sharedToken string
}

func NewTestModeVerifier(sharedToken string) *TestModeVerifier {
	return &TestModeVerifier{sharedToken: sharedToken}
}

func (v *TestModeVerifier) Verify(token string) (*Identity, error) {
	if token == "" || token != v.sharedToken {
		return nil, errors.New("invalid test token")
	}
	return &Identity{UserID: "e2e-test-user", Email: "e2e@test.local", Name: "E2E Tester"}, nil
}
