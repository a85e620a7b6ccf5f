package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"scribe/domain"
)

// SQLStore keeps sessions in the sessions table of the application database.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

func (s *SQLStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO sessions (token, user_id, user_name, user_email, createdAt, expiresAt) VALUES (?, ?, ?, ?, ?, ?)",
		sess.Token, sess.UserID, sess.UserName, sess.UserEmail,
		sess.CreatedAt.UTC().UnixNano(), sess.ExpiresAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("error inserting into sessions: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT token, user_id, user_name, user_email, createdAt, expiresAt FROM sessions WHERE token = ?", token)
	sess := domain.Session{}
	var createdAt, expiresAt int64
	err := row.Scan(&sess.Token, &sess.UserID, &sess.UserName, &sess.UserEmail, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning sessions: %w", err)
	}
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.ExpiresAt = time.Unix(0, expiresAt).UTC()
	if sess.IsExpiredAt(s.Now()) {
		return nil, domain.ErrNotFound
	}
	return &sess, nil
}

func (s *SQLStore) Delete(ctx context.Context, token string) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("error deleting from sessions: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their expiry and reports how many went.
func (s *SQLStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expiresAt <= ?", s.Now().UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("error deleting expired sessions: %w", err)
	}
	return result.RowsAffected()
}
