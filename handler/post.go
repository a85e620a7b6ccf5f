package handler

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"scribe/domain"
)

type PostDTO struct {
	ID         string
	Title      string
	Content    template.HTML
	AuthorID   string
	AuthorName string
	CreatedAt  string
}

type CommentDTO struct {
	Text       string
	AuthorID   string
	AuthorName string
	CreatedAt  string
}

func summaryDTO(p domain.PostSummary) PostDTO {
	return PostDTO{
		ID:         p.ID,
		Title:      p.Title,
		Content:    safeMd(p.Content),
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		CreatedAt:  p.CreatedAt.Format(time.DateOnly),
	}
}

func summaryDTOs(posts []domain.PostSummary) []PostDTO {
	dtos := make([]PostDTO, 0, len(posts))
	for _, p := range posts {
		dtos = append(dtos, summaryDTO(p))
	}
	return dtos
}

func pageParam(c echo.Context) int {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// viewFailure turns a service error into a flash message and a redirect.
func viewFailure(c echo.Context, err error, fallback, message string) error {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return failure(c, "/", "Post not found.")
	case errors.Is(err, domain.ErrUnauthenticated):
		return failure(c, "/login", "Please log in to continue.")
	case errors.Is(err, domain.ErrUnauthorized):
		return failure(c, "/", "You are not authorized to change this post.")
	case errors.As(err, &verr):
		return failure(c, fallback, verr.Message)
	default:
		c.Logger().Error(err)
		return failure(c, fallback, message)
	}
}

func (h *Handler) GetPosts(c echo.Context) error {
	page, err := h.Content.ListPosts(c.Request().Context(), pageParam(c))
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "index.html", struct {
		View
		Posts       []PostDTO
		CurrentPage int
		TotalPages  int
		PrevPage    int
		NextPage    int
		HasPrev     bool
		HasNext     bool
	}{
		View:        h.view(c),
		Posts:       summaryDTOs(page.Posts),
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
		PrevPage:    page.Page - 1,
		NextPage:    page.Page + 1,
		HasPrev:     page.HasPrev(),
		HasNext:     page.HasNext(),
	})
}

func (h *Handler) GetPost(c echo.Context) error {
	detail, err := h.Content.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return viewFailure(c, err, "/", "Could not load the post.")
	}

	comments := make([]CommentDTO, 0, len(detail.Comments))
	for _, cm := range detail.Comments {
		comments = append(comments, CommentDTO{
			Text:       cm.Text,
			AuthorID:   cm.AuthorID,
			AuthorName: cm.AuthorName,
			CreatedAt:  cm.CreatedAt.Format(time.DateOnly),
		})
	}
	sc := sessionContext(c)
	return c.Render(http.StatusOK, "post-view.html", struct {
		View
		Post     PostDTO
		Comments []CommentDTO
		CanEdit  bool
	}{
		View:     h.view(c),
		Post:     summaryDTO(domain.PostSummary{Post: detail.Post, AuthorName: detail.AuthorName}),
		Comments: comments,
		CanEdit:  sc.Owns(&detail.Post),
	})
}

func (h *Handler) GetNewPostForm(c echo.Context) error {
	if !sessionContext(c).Authenticated() {
		return failure(c, "/login", "Please log in to create a post.")
	}
	return c.Render(http.StatusOK, "post-new.html", h.view(c))
}

func (h *Handler) NewPost(c echo.Context) error {
	sc := sessionContext(c)
	if !sc.Authenticated() {
		return failure(c, "/login", "You must be logged in to create a post.")
	}
	_, err := h.Content.CreatePost(c.Request().Context(), sc, domain.PostDraft{
		Title:   c.FormValue("title"),
		Content: c.FormValue("content"),
	})
	if err != nil {
		return viewFailure(c, err, "/posts/new", "Something went wrong. Please try again.")
	}
	return success(c, "/", "Post created successfully!")
}

func (h *Handler) GetEditPostForm(c echo.Context) error {
	post, err := h.Content.EditablePost(c.Request().Context(), sessionContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrUnauthorized) {
			return failure(c, "/", "You are not authorized to edit this post.")
		}
		return viewFailure(c, err, "/", "Could not load the post.")
	}
	return c.Render(http.StatusOK, "post-edit.html", struct {
		View
		ID      string
		Title   string
		Content string
	}{View: h.view(c), ID: post.ID, Title: post.Title, Content: post.Content})
}

func (h *Handler) EditPost(c echo.Context) error {
	id := c.Param("id")
	_, err := h.Content.UpdatePost(c.Request().Context(), sessionContext(c), id, domain.PostDraft{
		Title:   c.FormValue("title"),
		Content: c.FormValue("content"),
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrUnauthorized) {
			return failure(c, "/", "You are not authorized to edit this post.")
		}
		return viewFailure(c, err, "/posts/"+id+"/edit", "Error updating post.")
	}
	return success(c, "/posts/"+id, "Post updated successfully!")
}

func (h *Handler) DeletePost(c echo.Context) error {
	err := h.Content.DeletePost(c.Request().Context(), sessionContext(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) || errors.Is(err, domain.ErrUnauthorized) {
			return failure(c, "/", "You are not authorized to delete this post.")
		}
		return viewFailure(c, err, "/", "Error deleting post.")
	}
	return success(c, "/", "Post deleted successfully!")
}

func (h *Handler) NewComment(c echo.Context) error {
	id := c.Param("id")
	_, err := h.Content.AddComment(c.Request().Context(), sessionContext(c), id, c.FormValue("commentText"))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthenticated) {
			return failure(c, "/login", "Please log in to comment.")
		}
		return viewFailure(c, err, "/posts/"+id, "Error adding comment. Please try again.")
	}
	return success(c, "/posts/"+id, "Comment added successfully!")
}

func (h *Handler) GetPostsByAuthor(c echo.Context) error {
	result, err := h.Content.ListPostsByAuthor(c.Request().Context(), c.Param("authorId"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(c, "/", "Author not found.")
		}
		c.Logger().Error(err)
		return failure(c, "/", "Could not retrieve posts.")
	}
	return c.Render(http.StatusOK, "author-posts.html", struct {
		View
		AuthorName string
		Posts      []PostDTO
	}{View: h.view(c), AuthorName: result.AuthorName, Posts: summaryDTOs(result.Posts)})
}
