// Package service implements registration, login and ownership-checked
// content management. Callers identify themselves with an explicit
// domain.SessionContext on every call.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/auth"
	"scribe/domain"
	"scribe/session"
	"scribe/store"
)

const DefaultSessionTTL = 24 * time.Hour

type AuthService struct {
	users    store.Users
	sessions session.Store
	hasher   auth.PasswordHasher
	ttl      time.Duration
	Now      func() time.Time

	// dummyHash is verified against when the email is unknown so both
	// login failures cost the same.
	dummyHash string
}

func NewAuthService(users store.Users, sessions session.Store, hasher auth.PasswordHasher, ttl time.Duration) (*AuthService, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		ttl:       ttl,
		Now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Register creates a user. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "name is required"}
	}
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &domain.ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, &domain.ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}

	_, err := s.users.UserByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrDuplicateEmail
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Internal("lookup user", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, domain.Internal("hash password", err)
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// The unique index catches a concurrent registration of the same email.
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, domain.Internal("create user", err)
	}
	return u, nil
}

// Authenticate checks credentials without creating a session. Unknown
// email and wrong password both yield domain.ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Field: "email", Message: "email and password are required"}
	}
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, domain.Internal("lookup user", err)
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	return u, nil
}

// Login authenticates and opens a session whose token the caller hands
// back to the client as a cookie.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, err := session.NewToken()
	if err != nil {
		return nil, domain.Internal("generate session token", err)
	}
	now := s.Now().UTC()
	sess := &domain.Session{
		Token:     token,
		UserID:    u.ID,
		UserName:  u.Name,
		UserEmail: u.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, domain.Internal("create session", err)
	}
	return sess, nil
}

// Logout destroys the session behind token. An empty or unknown token is
// a successful no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return domain.Internal("delete session", err)
	}
	return nil
}
