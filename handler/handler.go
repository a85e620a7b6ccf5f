package handler

import (
	"time"

	"scribe/auth"
	"scribe/service"
)

type Handler struct {
	Auth    *service.AuthService
	Content *service.ContentService

	// Cookie sessions back the HTML views, bearer tokens the JSON API.
	SessionAuth auth.Authenticator
	TokenAuth   *auth.TokenAuthenticator
	Tokens      *auth.TokenIssuer

	EnableSignup       bool
	SecureCookies      bool
	LoginRatePerMinute int
	CORSAllowedOrigins []string
}

func (h *Handler) loginRate() int {
	if h.LoginRatePerMinute <= 0 {
		return 10
	}
	return h.LoginRatePerMinute
}

const flashMaxAge = 30 * time.Second
