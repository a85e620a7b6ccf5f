package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Routes registers the HTML views and the JSON API on e.
func (h *Handler) Routes(e *echo.Echo) {
	e.Use(h.LoadSession)
	loginLimiter := h.loginLimiter()

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Frontend
	e.GET("/", h.GetPosts)
	e.GET("/posts/new", h.GetNewPostForm)
	e.POST("/posts", h.NewPost)
	e.GET("/posts/:id", h.GetPost)
	e.GET("/posts/:id/edit", h.GetEditPostForm)
	e.POST("/posts/:id/edit", h.EditPost)
	e.POST("/posts/:id/delete", h.DeletePost)
	e.POST("/posts/:id/comments", h.NewComment)
	e.GET("/author/:authorId", h.GetPostsByAuthor)
	e.GET("/register", h.GetRegisterForm)
	e.POST("/register", h.Register)
	e.GET("/login", h.GetLoginForm)
	e.POST("/login", h.Login, loginLimiter)
	e.GET("/logout", h.Logout)

	// JSON API
	api := e.Group("/api", middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: h.CORSAllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.POST("/auth/register", h.APIRegister)
	api.POST("/auth/login", h.APILogin, loginLimiter)

	requireToken := h.RequireToken()
	posts := api.Group("/posts")
	posts.GET("", h.APIListPosts)
	posts.GET("/:id", h.APIGetPost)
	posts.POST("", h.APICreatePost, requireToken)
	posts.PATCH("/:id", h.APIUpdatePost, requireToken)
	posts.DELETE("/:id", h.APIDeletePost, requireToken)
	posts.POST("/:id/comments", h.APIAddComment, requireToken)
}

// loginLimiter throttles login attempts per client IP.
func (h *Handler) loginLimiter() echo.MiddlewareFunc {
	perMinute := h.loginRate()
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts. Please try again later.")
		},
	})
}
