package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"scribe/domain"
	"scribe/session"
	"scribe/store"
)

const SessionCookieName = "scribe_session"

// Authenticator resolves the identity behind a request. It returns
// domain.ErrUnauthenticated when its credential is absent or invalid;
// any other error is a store failure.
type Authenticator interface {
	Identify(r *http.Request) (*domain.Identity, error)
}

// SessionAuthenticator resolves the session cookie used by the HTML views.
type SessionAuthenticator struct {
	Sessions session.Store
}

func NewSessionAuthenticator(sessions session.Store) *SessionAuthenticator {
	return &SessionAuthenticator{Sessions: sessions}
}

func (a *SessionAuthenticator) Identify(r *http.Request) (*domain.Identity, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, domain.ErrUnauthenticated
	}
	sess, err := a.Sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, domain.Internal("resolve session", err)
	}
	return sess.Identity(), nil
}

// TokenAuthenticator resolves "Authorization: Bearer <jwt>" used by the JSON API.
type TokenAuthenticator struct {
	Tokens *TokenIssuer
	Users  store.Users
}

func NewTokenAuthenticator(tokens *TokenIssuer, users store.Users) *TokenAuthenticator {
	return &TokenAuthenticator{Tokens: tokens, Users: users}
}

func (a *TokenAuthenticator) Identify(r *http.Request) (*domain.Identity, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil, domain.ErrUnauthenticated
	}
	return a.Verify(r.Context(), raw)
}

// Verify checks raw and loads the user it names, so tokens of unknown
// users are rejected.
func (a *TokenAuthenticator) Verify(ctx context.Context, raw string) (*domain.Identity, error) {
	userID, err := a.Tokens.Parse(raw)
	if err != nil {
		return nil, domain.ErrUnauthenticated
	}
	u, err := a.Users.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, domain.Internal("resolve token user", err)
	}
	return &domain.Identity{UserID: u.ID, Name: u.Name, Email: u.Email}, nil
}
