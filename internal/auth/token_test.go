// ABOUTME: Unit tests for control-surface JWT verification and generation
// ABOUTME: Covers round trips, foreign tokens, expiry and missing subjects

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestJWTVerifier_RoundTrip(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("operator-1", time.Hour)
	require.NoError(t, err)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", got)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))
	secret := []byte(testSecret)

	otherSecret, err := NewJWTVerifier([]byte("different-secret")).Generate("operator-1", time.Hour)
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(secret)
		require.NoError(t, err)
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{name: "wrong secret", token: otherSecret},
		{name: "wrong audience", token: sign(jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "op", Audience: jwt.ClaimStrings{"elsewhere"}, ExpiresAt: exp,
		}, jwt.SigningMethodHS256)},
		{name: "wrong issuer", token: sign(jwt.RegisteredClaims{
			Issuer: "someone", Subject: "op", Audience: jwt.ClaimStrings{tokenAudience}, ExpiresAt: exp,
		}, jwt.SigningMethodHS256)},
		{name: "no expiry", token: sign(jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "op", Audience: jwt.ClaimStrings{tokenAudience},
		}, jwt.SigningMethodHS256)},
		{name: "HS512", token: sign(jwt.RegisteredClaims{
			Issuer: tokenIssuer, Subject: "op", Audience: jwt.ClaimStrings{tokenAudience}, ExpiresAt: exp,
		}, jwt.SigningMethodHS512)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("operator-1", -time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	verifier := NewJWTVerifier([]byte(testSecret))

	token, err := verifier.Generate("", time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
