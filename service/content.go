package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/domain"
	"scribe/store"
)

const DefaultPageSize = 5

type ContentService struct {
	store    store.Store
	pageSize int
	Now      func() time.Time
}

func NewContentService(s store.Store, pageSize int) *ContentService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ContentService{store: s, pageSize: pageSize, Now: time.Now}
}

func (s *ContentService) PageSize() int {
	return s.pageSize
}

// ListPosts returns one 1-indexed page of posts, newest first. Pages past
// the end are empty; pages below 1 are treated as 1.
func (s *ContentService) ListPosts(ctx context.Context, page int) (*domain.PostPage, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.store.CountPosts(ctx)
	if err != nil {
		return nil, domain.Internal("count posts", err)
	}
	result := &domain.PostPage{
		Posts:      []domain.PostSummary{},
		Page:       page,
		PageSize:   s.pageSize,
		Total:      total,
		TotalPages: (total + s.pageSize - 1) / s.pageSize,
	}
	if page > result.TotalPages {
		return result, nil
	}

	posts, err := s.store.ListPosts(ctx, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return nil, domain.Internal("list posts", err)
	}
	result.Posts, err = s.summarize(ctx, posts)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetPost returns the post with its author and comments populated.
func (s *ContentService) GetPost(ctx context.Context, id string) (*domain.PostDetail, error) {
	post, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.CommentsByID(ctx, post.CommentIDs)
	if err != nil {
		return nil, domain.Internal("load comments", err)
	}

	ids := []string{post.AuthorID}
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	authors, err := s.store.UsersByID(ctx, ids)
	if err != nil {
		return nil, domain.Internal("load authors", err)
	}

	detail := &domain.PostDetail{
		Post:       *post,
		AuthorName: nameOf(authors, post.AuthorID),
		Comments:   make([]domain.CommentView, 0, len(comments)),
	}
	for _, c := range comments {
		detail.Comments = append(detail.Comments, domain.CommentView{Comment: c, AuthorName: nameOf(authors, c.AuthorID)})
	}
	return detail, nil
}

// EditablePost returns the post only if the caller may change it. It backs
// the edit form, which applies the same gates as UpdatePost.
func (s *ContentService) EditablePost(ctx context.Context, sc domain.SessionContext, id string) (*domain.Post, error) {
	post, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(sc, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *ContentService) CreatePost(ctx context.Context, sc domain.SessionContext, draft domain.PostDraft) (*domain.Post, error) {
	if !sc.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	post := &domain.Post{
		ID:         uuid.NewString(),
		Title:      draft.Title,
		Content:    draft.Content,
		AuthorID:   sc.User.UserID,
		CreatedAt:  s.Now().UTC(),
		CommentIDs: []string{},
	}
	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, domain.Internal("create post", err)
	}
	return post, nil
}

// UpdatePost changes title and content. Author and creation time never change.
func (s *ContentService) UpdatePost(ctx context.Context, sc domain.SessionContext, id string, draft domain.PostDraft) (*domain.Post, error) {
	post, err := s.EditablePost(ctx, sc, id)
	if err != nil {
		return nil, err
	}
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePost(ctx, id, draft); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Internal("update post", err)
	}
	post.Title = draft.Title
	post.Content = draft.Content
	return post, nil
}

// DeletePost removes the post. Its comments are not deleted.
func (s *ContentService) DeletePost(ctx context.Context, sc domain.SessionContext, id string) error {
	if _, err := s.EditablePost(ctx, sc, id); err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return domain.Internal("delete post", err)
	}
	return nil
}

func (s *ContentService) AddComment(ctx context.Context, sc domain.SessionContext, postID, text string) (*domain.Comment, error) {
	if _, err := s.post(ctx, postID); err != nil {
		return nil, err
	}
	if !sc.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &domain.ValidationError{Field: "text", Message: "comment text is required"}
	}
	c := &domain.Comment{
		ID:        uuid.NewString(),
		Text:      text,
		AuthorID:  sc.User.UserID,
		PostID:    postID,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.store.AddComment(ctx, c); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Internal("add comment", err)
	}
	return c, nil
}

func (s *ContentService) ListPostsByAuthor(ctx context.Context, authorID string) (*domain.AuthorPosts, error) {
	author, err := s.store.UserByID(ctx, authorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Internal("load author", err)
	}
	posts, err := s.store.PostsByAuthor(ctx, authorID)
	if err != nil {
		return nil, domain.Internal("list posts by author", err)
	}
	summaries := make([]domain.PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, domain.PostSummary{Post: p, AuthorName: author.Name})
	}
	return &domain.AuthorPosts{AuthorID: author.ID, AuthorName: author.Name, Posts: summaries}, nil
}

func (s *ContentService) post(ctx context.Context, id string) (*domain.Post, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	post, err := s.store.PostByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, domain.Internal("load post", err)
	}
	return post, nil
}

func (s *ContentService) summarize(ctx context.Context, posts []domain.Post) ([]domain.PostSummary, error) {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.AuthorID)
	}
	authors, err := s.store.UsersByID(ctx, ids)
	if err != nil {
		return nil, domain.Internal("load authors", err)
	}
	summaries := make([]domain.PostSummary, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, domain.PostSummary{Post: p, AuthorName: nameOf(authors, p.AuthorID)})
	}
	return summaries, nil
}

func checkOwner(sc domain.SessionContext, post *domain.Post) error {
	if !sc.Authenticated() {
		return domain.ErrUnauthenticated
	}
	if !sc.Owns(post) {
		return domain.ErrUnauthorized
	}
	return nil
}

func nameOf(users map[string]*domain.User, id string) string {
	if u, ok := users[id]; ok {
		return u.Name
	}
	return "[deleted]"
}
