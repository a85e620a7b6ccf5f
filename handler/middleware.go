package handler

import (
	"errors"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"scribe/auth"
	"scribe/domain"
)

const (
	sessionContextKey = "session"
	identityKey       = "identity"
)

// View carries what every rendered page needs.
type View struct {
	User  *domain.Identity
	Flash *Flash
}

func (h *Handler) view(c echo.Context) View {
	return View{User: sessionContext(c).User, Flash: popFlash(c)}
}

// LoadSession resolves the session cookie into a domain.SessionContext for
// the views. A stale cookie is cleared and the request continues anonymously.
func (h *Handler) LoadSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if isAPIPath(c.Request().URL.Path) {
			return next(c)
		}
		sc := domain.Anonymous()
		id, err := h.SessionAuth.Identify(c.Request())
		switch {
		case err == nil:
			sc = domain.AuthenticatedAs(id)
		case errors.Is(err, domain.ErrUnauthenticated):
			if cookie, cerr := c.Cookie(auth.SessionCookieName); cerr == nil && cookie.Value != "" {
				h.clearSessionCookie(c)
			}
		default:
			return err
		}
		c.Set(sessionContextKey, sc)
		return next(c)
	}
}

func sessionContext(c echo.Context) domain.SessionContext {
	if sc, ok := c.Get(sessionContextKey).(domain.SessionContext); ok {
		return sc
	}
	return domain.Anonymous()
}

// RequireToken guards JSON API writes with a bearer token. echo-jwt extracts
// the header; TokenAuthenticator verifies it and loads the user.
func (h *Handler) RequireToken() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  identityKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, raw string) (interface{}, error) {
			return h.TokenAuth.Verify(c.Request().Context(), raw)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			switch {
			case errors.Is(err, domain.ErrInternal):
				return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
			case errors.Is(err, domain.ErrUnauthenticated):
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, token failed")
			default:
				return echo.NewHTTPError(http.StatusUnauthorized, "Not authorized, no token")
			}
		},
	})
}

func tokenContext(c echo.Context) domain.SessionContext {
	if id, ok := c.Get(identityKey).(*domain.Identity); ok {
		return domain.AuthenticatedAs(id)
	}
	return domain.Anonymous()
}
