package handler

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const flashCookieName = "flash"

type Flash struct {
	Kind    string // success or error
	Message string
}

func setFlash(c echo.Context, kind, message string) {
	c.SetCookie(&http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(kind + ":" + message),
		Path:     "/",
		Expires:  time.Now().Add(flashMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending message, if any, and clears it.
func popFlash(c echo.Context) *Flash {
	cookie, err := c.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	c.SetCookie(&http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})

	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	kind, message, ok := strings.Cut(raw, ":")
	if !ok || message == "" {
		return nil
	}
	return &Flash{Kind: kind, Message: message}
}

func redirectWith(c echo.Context, path, kind, message string) error {
	setFlash(c, kind, message)
	return c.Redirect(http.StatusFound, path)
}

func success(c echo.Context, path, message string) error {
	return redirectWith(c, path, "success", message)
}

func failure(c echo.Context, path, message string) error {
	return redirectWith(c, path, "error", message)
}
