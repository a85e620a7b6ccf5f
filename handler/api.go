package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scribe/domain"
)

type registerRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type postRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type authorJSON struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type commentJSON struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Author    authorJSON `json:"author"`
	Post      string     `json:"post"`
	CreatedAt time.Time  `json:"createdAt"`
}

type postJSON struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Author    authorJSON    `json:"author"`
	CreatedAt time.Time     `json:"createdAt"`
	Comments  []string      `json:"comments"`
	Thread    []commentJSON `json:"thread,omitempty"`
}

func toPostJSON(p domain.Post, authorName string) postJSON {
	comments := p.CommentIDs
	if comments == nil {
		comments = []string{}
	}
	return postJSON{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Author:    authorJSON{ID: p.AuthorID, Name: authorName},
		CreatedAt: p.CreatedAt,
		Comments:  comments,
	}
}

func toCommentJSON(c domain.Comment, authorName string) commentJSON {
	return commentJSON{
		ID:        c.ID,
		Text:      c.Text,
		Author:    authorJSON{ID: c.AuthorID, Name: authorName},
		Post:      c.PostID,
		CreatedAt: c.CreatedAt,
	}
}

func bindError(err error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body").SetInternal(err)
}

func (h *Handler) APIRegister(c echo.Context) error {
	if !h.EnableSignup {
		return echo.NewHTTPError(http.StatusForbidden, "Sign up has been disabled.")
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	u, err := h.Auth.Register(c.Request().Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return apiError(err, "")
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": u.ID, "name": u.Name, "email": u.Email})
}

// APILogin exchanges credentials for a bearer token. No cookie session is
// created.
func (h *Handler) APILogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	u, err := h.Auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return apiError(domain.ErrInvalidCredentials, "")
		}
		return apiError(err, "")
	}
	token, exp, err := h.Tokens.Issue(u.ID)
	if err != nil {
		return apiError(domain.Internal("issue token", err), "")
	}
	return c.JSON(http.StatusOK, map[string]any{"token": token, "expiresAt": exp})
}

func (h *Handler) APIListPosts(c echo.Context) error {
	page, err := h.Content.ListPosts(c.Request().Context(), pageParam(c))
	if err != nil {
		return apiError(err, "")
	}
	posts := make([]postJSON, 0, len(page.Posts))
	for _, p := range page.Posts {
		posts = append(posts, toPostJSON(p.Post, p.AuthorName))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"posts":       posts,
		"currentPage": page.Page,
		"totalPages":  page.TotalPages,
		"total":       page.Total,
	})
}

func (h *Handler) APIGetPost(c echo.Context) error {
	detail, err := h.Content.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err, "Cannot find post")
	}
	out := toPostJSON(detail.Post, detail.AuthorName)
	for _, cm := range detail.Comments {
		out.Thread = append(out.Thread, toCommentJSON(cm.Comment, cm.AuthorName))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) APICreatePost(c echo.Context) error {
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	sc := tokenContext(c)
	draft := domain.PostDraft{}
	if req.Title != nil {
		draft.Title = *req.Title
	}
	if req.Content != nil {
		draft.Content = *req.Content
	}
	post, err := h.Content.CreatePost(c.Request().Context(), sc, draft)
	if err != nil {
		return apiError(err, "")
	}
	return c.JSON(http.StatusCreated, toPostJSON(*post, sc.User.Name))
}

// APIUpdatePost applies a partial update; absent fields keep their value.
func (h *Handler) APIUpdatePost(c echo.Context) error {
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	ctx := c.Request().Context()
	sc := tokenContext(c)
	id := c.Param("id")

	current, err := h.Content.EditablePost(ctx, sc, id)
	if err != nil {
		return apiError(err, "Cannot find post")
	}
	draft := domain.PostDraft{Title: current.Title, Content: current.Content}
	if req.Title != nil {
		draft.Title = *req.Title
	}
	if req.Content != nil {
		draft.Content = *req.Content
	}
	post, err := h.Content.UpdatePost(ctx, sc, id, draft)
	if err != nil {
		return apiError(err, "Cannot find post")
	}
	return c.JSON(http.StatusOK, toPostJSON(*post, sc.User.Name))
}

func (h *Handler) APIDeletePost(c echo.Context) error {
	if err := h.Content.DeletePost(c.Request().Context(), tokenContext(c), c.Param("id")); err != nil {
		return apiError(err, "Cannot find post")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Deleted Post"})
}

func (h *Handler) APIAddComment(c echo.Context) error {
	var req commentRequest
	if err := c.Bind(&req); err != nil {
		return bindError(err)
	}
	sc := tokenContext(c)
	comment, err := h.Content.AddComment(c.Request().Context(), sc, c.Param("id"), req.Text)
	if err != nil {
		return apiError(err, "Cannot find post")
	}
	return c.JSON(http.StatusCreated, toCommentJSON(*comment, sc.User.Name))
}
