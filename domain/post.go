package domain

import (
	"strings"
	"time"
)

type Post struct {
	ID         string
	Title      string
	Content    string
	AuthorID   string
	CreatedAt  time.Time
	CommentIDs []string
}

type Comment struct {
	ID        string
	Text      string
	AuthorID  string
	PostID    string
	CreatedAt time.Time
}

// PostDraft holds the mutable fields of a post as submitted by a client.
type PostDraft struct {
	Title   string
	Content string
}

func (d PostDraft) Normalize() PostDraft {
	return PostDraft{Title: strings.TrimSpace(d.Title), Content: d.Content}
}

func (d PostDraft) Validate() error {
	if d.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(d.Content) == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}

// PostSummary is a post with its author populated, as shown in listings.
type PostSummary struct {
	Post
	AuthorName string
}

type CommentView struct {
	Comment
	AuthorName string
}

// PostDetail is a post with its author and comments (and their authors) populated.
type PostDetail struct {
	Post
	AuthorName string
	Comments   []CommentView
}

type PostPage struct {
	Posts      []PostSummary
	Page       int
	PageSize   int
	TotalPages int
	Total      int
}

func (p PostPage) HasPrev() bool { return p.Page > 1 }
func (p PostPage) HasNext() bool { return p.Page < p.TotalPages }

type AuthorPosts struct {
	AuthorID   string
	AuthorName string
	Posts      []PostSummary
}
