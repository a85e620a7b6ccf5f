// Package store defines the persistence contracts for users, posts and comments.
//
// Lookups return domain.ErrNotFound when a record does not exist, and
// CreateUser returns domain.ErrDuplicateEmail when the email is taken. Any
// other error is a store failure.
package store

import (
	"context"

	"scribe/domain"
)

type Users interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UserByID(ctx context.Context, id string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	// UsersByID resolves many ids at once. Unknown ids are absent from the map.
	UsersByID(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

type Posts interface {
	CreatePost(ctx context.Context, p *domain.Post) error
	// PostByID returns the post with CommentIDs in insertion order.
	PostByID(ctx context.Context, id string) (*domain.Post, error)
	// ListPosts returns posts newest first.
	ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, error)
	CountPosts(ctx context.Context) (int, error)
	PostsByAuthor(ctx context.Context, authorID string) ([]domain.Post, error)
	// UpdatePost replaces title and content only.
	UpdatePost(ctx context.Context, id string, draft domain.PostDraft) error
	// DeletePost removes the post record. Its comments are left in place.
	DeletePost(ctx context.Context, id string) error
}

type Comments interface {
	// AddComment persists c and appends its id to the post's comment list
	// as one operation. It returns domain.ErrNotFound if the post is gone.
	AddComment(ctx context.Context, c *domain.Comment) error
	// CommentsByID returns the comments for ids, preserving their order.
	CommentsByID(ctx context.Context, ids []string) ([]domain.Comment, error)
}

type Store interface {
	Users
	Posts
	Comments
}
