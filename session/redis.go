package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scribe/domain"
)

const keyPrefix = "session:"

// RedisStore keeps each session as a JSON value whose key expires together
// with the session.
type RedisStore struct {
	rdb *redis.Client
	Now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, Now: time.Now}
}

type record struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	UserEmail string    `json:"userEmail"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func key(token string) string {
	return keyPrefix + token
}

func (s *RedisStore) Create(ctx context.Context, sess *domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.Now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired at %s", sess.ExpiresAt)
	}
	payload, err := json.Marshal(record{
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		UserEmail: sess.UserEmail,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(sess.Token), payload, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	data, err := s.rdb.Get(ctx, key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error reading session: %w", err)
	}
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}
	sess := &domain.Session{
		Token:     token,
		UserID:    r.UserID,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
	if sess.IsExpiredAt(s.Now()) {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, key(token)).Err()
}
