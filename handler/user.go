package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scribe/auth"
	"scribe/domain"
)

func (h *Handler) GetRegisterForm(c echo.Context) error {
	return c.Render(http.StatusOK, "user-register.html", h.view(c))
}

func (h *Handler) GetLoginForm(c echo.Context) error {
	return c.Render(http.StatusOK, "user-login.html", h.view(c))
}

func (h *Handler) Register(c echo.Context) error {
	if !h.EnableSignup {
		return c.HTML(http.StatusForbidden, "<h1>Forbidden!</h1><p>Sign up has been disabled.</p>")
	}

	_, err := h.Auth.Register(c.Request().Context(),
		c.FormValue("name"), c.FormValue("email"), c.FormValue("password"))
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			return failure(c, "/register", "A user with that email already exists.")
		case errors.As(err, &verr):
			return failure(c, "/register", verr.Message)
		default:
			c.Logger().Error(err)
			return failure(c, "/register", "Something went wrong. Please try again.")
		}
	}
	return success(c, "/login", "You have successfully registered! Please log in.")
}

func (h *Handler) Login(c echo.Context) error {
	sess, err := h.Auth.Login(c.Request().Context(), c.FormValue("email"), c.FormValue("password"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrValidation) {
			return failure(c, "/login", "Invalid credentials. Please try again.")
		}
		c.Logger().Error(err)
		return failure(c, "/login", "Something went wrong. Please try again.")
	}

	c.SetCookie(h.sessionCookie(sess))
	return success(c, "/", "You are now logged in!")
}

// Logout never fails for a missing session; the cookie is cleared either way.
func (h *Handler) Logout(c echo.Context) error {
	var token string
	if cookie, err := c.Cookie(auth.SessionCookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		return success(c, "/login", "You are already logged out.")
	}
	if err := h.Auth.Logout(c.Request().Context(), token); err != nil {
		c.Logger().Error(err)
		return failure(c, "/", "Could not log you out.")
	}
	h.clearSessionCookie(c)
	return success(c, "/login", "You have been logged out.")
}

func (h *Handler) sessionCookie(sess *domain.Session) *http.Cookie {
	return &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
