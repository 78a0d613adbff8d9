package main

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := NewTokenIssuer([]byte("secret"))

	token, err := ti.NewAccessToken(User{ID: 42, Email: "a@example.com"})
	require.NoError(t, err)

	userID, err := ti.Verify(token.Access)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	ti := NewTokenIssuer([]byte("secret"))
	ti.now = func() time.Time { return time.Now().Add(-JWTAccessTokenExpirationTime - time.Minute) }

	token, err := ti.NewAccessToken(User{ID: 1})
	require.NoError(t, err)

	_, err = ti.Verify(token.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	ti := NewTokenIssuer([]byte("secret"))

	sign := func(method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}

	valid := jwt.RegisteredClaims{
		Issuer:    JWTIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ID:        "7",
	}

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	badID := valid
	badID.ID = "not-a-number"

	tests := map[string]string{
		"other algorithm": sign(jwt.SigningMethodHS256, valid),
		"other issuer":    sign(jwt.SigningMethodHS512, wrongIssuer),
		"non-numeric id":  sign(jwt.SigningMethodHS512, badID),
		"garbage":         "a.b.c",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ti.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	userID, err := ti.Verify(sign(jwt.SigningMethodHS512, valid))
	assert.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}
