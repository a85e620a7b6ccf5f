// Package sqlstore implements store.Store on top of database/sql and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"scribe/domain"
	"scribe/store"
)

type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Timestamps are stored as unix nanoseconds so that ordering is exact.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error, column string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return false
	}
	return strings.Contains(sqliteErr.Error(), column)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (id, name, email, password, createdAt) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, u.PasswordHash, toUnix(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("error inserting into users: %w", err)
	}
	return nil
}

func (s *Store) scanUser(row *sql.Row) (*domain.User, error) {
	u := domain.User{}
	var createdAt int64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning users: %w", err)
	}
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		"SELECT id, name, email, password, createdAt FROM users WHERE id = ?", id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.scanUser(s.DB.QueryRowContext(ctx,
		"SELECT id, name, email, password, createdAt FROM users WHERE email = ?", email))
}

func (s *Store) UsersByID(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, name, email, password, createdAt FROM users WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u := domain.User{}
		var createdAt int64
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning users: %w", err)
		}
		u.CreatedAt = fromUnix(createdAt)
		users[u.ID] = &u
	}
	return users, rows.Err()
}

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO posts (id, title, content, author_id, createdAt) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.Title, p.Content, p.AuthorID, toUnix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("error inserting into posts: %w", err)
	}
	return nil
}

func (s *Store) PostByID(ctx context.Context, id string) (*domain.Post, error) {
	row := s.DB.QueryRowContext(ctx,
		"SELECT id, title, content, author_id, createdAt FROM posts WHERE id = ?", id)
	p := domain.Post{}
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("error scanning posts: %w", err)
	}
	p.CreatedAt = fromUnix(createdAt)

	rows, err := s.DB.QueryContext(ctx, "SELECT id FROM comments WHERE post_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("error querying comments: %w", err)
	}
	defer rows.Close()
	p.CommentIDs = []string{}
	for rows.Next() {
		var commentID string
		if err := rows.Scan(&commentID); err != nil {
			return nil, fmt.Errorf("error scanning comments: %w", err)
		}
		p.CommentIDs = append(p.CommentIDs, commentID)
	}
	return &p, rows.Err()
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]domain.Post, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()
	posts := []domain.Post{}
	for rows.Next() {
		p := domain.Post{}
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning posts: %w", err)
		}
		p.CreatedAt = fromUnix(createdAt)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, error) {
	return s.queryPosts(ctx,
		"SELECT id, title, content, author_id, createdAt FROM posts ORDER BY createdAt DESC, rowid DESC LIMIT ? OFFSET ?",
		limit, offset)
}

func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting posts: %w", err)
	}
	return count, nil
}

func (s *Store) PostsByAuthor(ctx context.Context, authorID string) ([]domain.Post, error) {
	return s.queryPosts(ctx,
		"SELECT id, title, content, author_id, createdAt FROM posts WHERE author_id = ? ORDER BY createdAt DESC, rowid DESC",
		authorID)
}

func (s *Store) UpdatePost(ctx context.Context, id string, draft domain.PostDraft) error {
	result, err := s.DB.ExecContext(ctx, "UPDATE posts SET title = ?, content = ? WHERE id = ?",
		draft.Title, draft.Content, id)
	if err != nil {
		return fmt.Errorf("error updating posts: %w", err)
	}
	return expectAffected(result)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	result, err := s.DB.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting from posts: %w", err)
	}
	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddComment checks the post and inserts the comment in one transaction,
// so a comment is never left without its post's reference.
func (s *Store) AddComment(ctx context.Context, c *domain.Comment) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error in begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM posts WHERE id = ?", c.PostID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("error querying posts: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO comments (id, text, author_id, post_id, createdAt) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.Text, c.AuthorID, c.PostID, toUnix(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("error inserting into comments: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error in commit transaction: %w", err)
	}
	return nil
}

func (s *Store) CommentsByID(ctx context.Context, ids []string) ([]domain.Comment, error) {
	if len(ids) == 0 {
		return []domain.Comment{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.DB.QueryContext(ctx,
		"SELECT id, text, author_id, post_id, createdAt FROM comments WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return nil, fmt.Errorf("error querying comments: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Comment, len(ids))
	for rows.Next() {
		c := domain.Comment{}
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.Text, &c.AuthorID, &c.PostID, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning comments: %w", err)
		}
		c.CreatedAt = fromUnix(createdAt)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	comments := make([]domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			comments = append(comments, c)
		}
	}
	return comments, nil
}
