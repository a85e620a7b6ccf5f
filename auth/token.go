package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the user id under "user.id", the shape API clients decode.
type Claims struct {
	User ClaimsUser `json:"user"`
	jwt.RegisteredClaims
}

type ClaimsUser struct {
	ID string `json:"id"`
}

// TokenIssuer signs and verifies HS256 bearer tokens for the JSON API.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	Now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("missing secret")
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, Now: time.Now}, nil
}

func (t *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := t.Now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		User: ClaimsUser{ID: userID},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse verifies the signature and expiry of raw and returns its user id.
func (t *TokenIssuer) Parse(raw string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.Now),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.User.ID == "" {
		return "", errors.New("token carries no user")
	}
	return claims.User.ID, nil
}
