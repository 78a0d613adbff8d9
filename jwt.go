package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	JWTAccessTokenExpirationTime = time.Hour * 12
	JWTSecretEnv                 = "JWT_SECRET_KEY"
	JWTIssuer                    = "subscription_tracker"
)

var ErrInvalidToken = errors.New("jwt: invalid token")

type Token struct {
	Access string `json:"access_token"`
}

// TokenIssuer signs and verifies the session tokens handed out on login.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{secret: secret, now: time.Now}
}

func (ti *TokenIssuer) NewAccessToken(user User) (*Token, error) {
	now := ti.now()
	claims := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    JWTIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(JWTAccessTokenExpirationTime)),
		IssuedAt:  jwt.NewNumericDate(now),
		Audience:  jwt.ClaimStrings{user.Email},
		ID:        fmt.Sprint(user.ID),
	})

	token, err := claims.SignedString(ti.secret)
	if err != nil {
		return nil, err
	}

	return &Token{Access: token}, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token and
// returns the id of the user it was issued to.
func (ti *TokenIssuer) Verify(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}

	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return ti.secret, nil
	})
	if err != nil || !tkn.Valid {
		return 0, ErrInvalidToken
	}

	if !claims.VerifyIssuer(JWTIssuer, true) {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.ID, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}

	return userID, nil
}
