package domain

import (
	"net/mail"
	"strings"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NormalizeEmail is applied before every lookup and insert so that
// uniqueness holds regardless of case.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &ValidationError{Field: "email", Message: "email is not valid"}
	}
	return nil
}

// Identity is the resolved caller of a request, regardless of which
// credential (cookie session or bearer token) proved it.
type Identity struct {
	UserID string
	Name   string
	Email  string
}

// SessionContext is passed explicitly into every service call.
// A zero value means the caller is anonymous.
type SessionContext struct {
	User *Identity
}

func Anonymous() SessionContext {
	return SessionContext{}
}

func AuthenticatedAs(id *Identity) SessionContext {
	return SessionContext{User: id}
}

func (s SessionContext) Authenticated() bool {
	return s.User != nil && s.User.UserID != ""
}

// Owns reports whether the caller is the author of p.
func (s SessionContext) Owns(p *Post) bool {
	return s.Authenticated() && p != nil && s.User.UserID == p.AuthorID
}
