package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"scribe/domain"
)

// apiError maps a service error onto the HTTP status and message the JSON
// API answers with. Internal causes are kept for logging only.
func apiError(err error, notFound string) *echo.HTTPError {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
	case errors.Is(err, domain.ErrDuplicateEmail):
		return echo.NewHTTPError(http.StatusConflict, "A user with that email already exists.")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
	case errors.Is(err, domain.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, no token")
	case errors.Is(err, domain.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "Not authorized to modify this post")
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error").SetInternal(err)
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// HTTPErrorHandler answers JSON under /api and an error page elsewhere.
func (h *Handler) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		c.Logger().Error(err)
		message = http.StatusText(code)
	}

	var respErr error
	switch {
	case c.Request().Method == http.MethodHead:
		respErr = c.NoContent(code)
	case isAPIPath(c.Request().URL.Path):
		respErr = c.JSON(code, map[string]string{"message": message})
	default:
		respErr = c.Render(code, "error.html", struct {
			View
			Code    int
			Message string
		}{View: h.view(c), Code: code, Message: message})
	}
	if respErr != nil {
		c.Logger().Error(respErr)
	}
}
