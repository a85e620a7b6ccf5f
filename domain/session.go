package domain

import "time"

// Session is the server-side record behind a session cookie.
type Session struct {
	Token     string
	UserID    string
	UserName  string
	UserEmail string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

func (s *Session) Identity() *Identity {
	return &Identity{UserID: s.UserID, Name: s.UserName, Email: s.UserEmail}
}
