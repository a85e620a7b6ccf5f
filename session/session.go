// Package session keeps server-side session records keyed by the opaque
// token carried in the session cookie.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"scribe/domain"
)

// TokenBytes is the amount of randomness in a session token (64 hex chars).
const TokenBytes = 32

// Store persists sessions. Get returns domain.ErrNotFound for unknown and
// expired tokens alike. Delete of an unknown token is not an error.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
}

func NewToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
