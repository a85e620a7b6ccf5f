package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"scribe/auth"
	"scribe/db"
	"scribe/domain"
	"scribe/service"
	"scribe/session"
	"scribe/store/sqlstore"
	"scribe/templates"
)

type testServer struct {
	e     *echo.Echo
	h     *Handler
	store *sqlstore.Store
}

func newTestServer(t *testing.T, configure ...func(*Handler)) *testServer {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	st := sqlstore.New(database)
	sessions := session.NewSQLStore(database)
	authService, err := service.NewAuthService(st, sessions, auth.NewBcryptHasher(bcrypt.MinCost), time.Hour)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	renderer, err := templates.New()
	require.NoError(t, err)

	h := &Handler{
		Auth:               authService,
		Content:            service.NewContentService(st, service.DefaultPageSize),
		SessionAuth:        auth.NewSessionAuthenticator(sessions),
		TokenAuth:          auth.NewTokenAuthenticator(tokens, st),
		Tokens:             tokens,
		EnableSignup:       true,
		LoginRatePerMinute: 100,
		CORSAllowedOrigins: []string{"*"},
	}
	for _, fn := range configure {
		fn(h)
	}

	e := echo.New()
	e.Renderer = renderer
	e.HTTPErrorHandler = h.HTTPErrorHandler
	h.Routes(e)
	return &testServer{e: e, h: h, store: st}
}

func (s *testServer) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func (s *testServer) form(path string, values url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return s.do(req, cookies...)
}

func (s *testServer) api(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(b)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return s.do(req)
}

// signIn registers a user through the form and returns its session cookie.
func (s *testServer) signIn(t *testing.T, name, email string) *http.Cookie {
	t.Helper()
	rec := s.form("/register", url.Values{"name": {name}, "email": {email}, "password": {"pw123"}})
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	rec = s.form("/login", url.Values{"email": {email}, "password": {"pw123"}})
	require.Equal(t, http.StatusFound, rec.Code)
	cookie := cookieNamed(rec, auth.SessionCookieName)
	require.NotNil(t, cookie)
	return cookie
}

func (s *testServer) apiToken(t *testing.T, name, email string) string {
	t.Helper()
	rec := s.api(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": name, "email": email, "password": "pw123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.api(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "pw123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) onlyPost(t *testing.T) domain.Post {
	t.Helper()
	posts, err := s.store.ListPosts(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	return posts[0]
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownPageRendersErrorPage(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestRegisterLoginLogout(t *testing.T) {
	s := newTestServer(t)
	cookie := s.signIn(t, "Alice", "alice@example.com")
	assert.True(t, cookie.HttpOnly)

	rec := s.get("/", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log out")
	assert.Contains(t, rec.Body.String(), "Alice")

	rec = s.get("/logout", cookie)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
	cleared := cookieNamed(rec, auth.SessionCookieName)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// The old cookie no longer resolves and is cleared on sight.
	rec = s.get("/", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Log in")
	assert.NotContains(t, rec.Body.String(), "Log out")
	assert.NotNil(t, cookieNamed(rec, auth.SessionCookieName))
}

func TestLogoutWithoutSession(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/logout")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	page := s.get("/login", cookieNamed(rec, flashCookieName))
	assert.Contains(t, page.Body.String(), "flash-success")
	assert.Contains(t, page.Body.String(), "You are already logged out.")
}

func TestLoginFailureShowsFlash(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t, "Alice", "alice@example.com")

	for _, values := range []url.Values{
		{"email": {"alice@example.com"}, "password": {"wrong"}},
		{"email": {"nobody@example.com"}, "password": {"pw123"}},
	} {
		rec := s.form("/login", values)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
		assert.Nil(t, cookieNamed(rec, auth.SessionCookieName))

		flash := cookieNamed(rec, flashCookieName)
		require.NotNil(t, flash)
		page := s.get("/login", flash)
		assert.Contains(t, page.Body.String(), "Invalid credentials. Please try again.")
	}
}

func TestRegisterDuplicateEmailFlash(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t, "Alice", "alice@example.com")

	rec := s.form("/register", url.Values{"name": {"Mallory"}, "email": {"ALICE@example.com"}, "password": {"x"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get(echo.HeaderLocation))
	page := s.get("/register", cookieNamed(rec, flashCookieName))
	assert.Contains(t, page.Body.String(), "A user with that email already exists.")
}

func TestRegisterPasswordTooLong(t *testing.T) {
	s := newTestServer(t)
	long := strings.Repeat("p", auth.MaxPasswordBytes+8)

	rec := s.api(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "A", "email": "a@example.com", "password": long})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", decode(t, rec)["message"])

	rec = s.form("/register", url.Values{"name": {"A"}, "email": {"b@example.com"}, "password": {long}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get(echo.HeaderLocation))
	page := s.get("/register", cookieNamed(rec, flashCookieName))
	assert.Contains(t, page.Body.String(), "password must be at most 72 bytes")

	_, err := s.store.UserByEmail(context.Background(), "b@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegisterDisabled(t *testing.T) {
	s := newTestServer(t, func(h *Handler) { h.EnableSignup = false })
	rec := s.form("/register", url.Values{"name": {"A"}, "email": {"a@example.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.api(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "A", "email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	s := newTestServer(t, func(h *Handler) { h.LoginRatePerMinute = 2 })
	values := url.Values{"email": {"a@example.com"}, "password": {"pw"}}
	assert.Equal(t, http.StatusFound, s.form("/login", values).Code)
	assert.Equal(t, http.StatusFound, s.form("/login", values).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.form("/login", values).Code)
}

func TestNewPostRequiresLogin(t *testing.T) {
	s := newTestServer(t)
	rec := s.form("/posts", url.Values{"title": {"T"}, "content": {"C"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	rec = s.get("/posts/new")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
}

func TestCreatePostAndComment(t *testing.T) {
	s := newTestServer(t)
	alice := s.signIn(t, "Alice", "alice@example.com")

	rec := s.form("/posts", url.Values{"title": {"Hello"}, "content": {"some **bold** text <script>alert(1)</script>"}}, alice)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
	post := s.onlyPost(t)

	rec = s.get("/posts/"+post.ID, alice)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "/posts/"+post.ID+"/edit")

	rec = s.form("/posts/"+post.ID+"/comments", url.Values{"commentText": {"Nice post"}}, alice)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/posts/"+post.ID, rec.Header().Get(echo.HeaderLocation))

	rec = s.get("/posts/" + post.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nice post")
	assert.NotContains(t, rec.Body.String(), "/posts/"+post.ID+"/edit")

	rec = s.get("/author/" + post.AuthorID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Posts by Alice")
	assert.Contains(t, rec.Body.String(), "Hello")
}

func TestCommentRequiresLogin(t *testing.T) {
	s := newTestServer(t)
	alice := s.signIn(t, "Alice", "alice@example.com")
	s.form("/posts", url.Values{"title": {"Hello"}, "content": {"Body"}}, alice)
	post := s.onlyPost(t)

	rec := s.form("/posts/"+post.ID+"/comments", url.Values{"commentText": {"drive-by"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	stored, err := s.store.PostByID(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CommentIDs)
}

func TestMissingPostRedirectsHome(t *testing.T) {
	s := newTestServer(t)
	rec := s.get("/posts/does-not-exist")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
}

func TestOnlyOwnerCanEditOrDelete(t *testing.T) {
	s := newTestServer(t)
	alice := s.signIn(t, "Alice", "alice@example.com")
	bob := s.signIn(t, "Bob", "bob@example.com")
	s.form("/posts", url.Values{"title": {"Original"}, "content": {"Body"}}, alice)
	post := s.onlyPost(t)
	ctx := context.Background()

	rec := s.get("/posts/"+post.ID+"/edit", bob)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))

	rec = s.form("/posts/"+post.ID+"/edit", url.Values{"title": {"Hijacked"}, "content": {"x"}}, bob)
	assert.Equal(t, http.StatusFound, rec.Code)
	rec = s.form("/posts/"+post.ID+"/delete", nil, bob)
	assert.Equal(t, http.StatusFound, rec.Code)

	stored, err := s.store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Title)

	rec = s.get("/posts/"+post.ID+"/edit", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Original")

	rec = s.form("/posts/"+post.ID+"/edit", url.Values{"title": {"Edited"}, "content": {"New body"}}, alice)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/posts/"+post.ID, rec.Header().Get(echo.HeaderLocation))
	stored, err = s.store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", stored.Title)
	assert.Equal(t, "New body", stored.Content)

	rec = s.form("/posts/"+post.ID+"/delete", nil, alice)
	require.Equal(t, http.StatusFound, rec.Code)
	_, err = s.store.PostByID(ctx, post.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexPagination(t *testing.T) {
	s := newTestServer(t)
	alice := s.signIn(t, "Alice", "alice@example.com")
	for i := 0; i < service.DefaultPageSize+1; i++ {
		rec := s.form("/posts", url.Values{"title": {"Post"}, "content": {"Body"}}, alice)
		require.Equal(t, http.StatusFound, rec.Code)
	}

	rec := s.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page 1 of 2")
	assert.Contains(t, rec.Body.String(), "/?page=2")

	rec = s.get("/?page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Page 2 of 2")
	assert.Contains(t, rec.Body.String(), "/?page=1")
}

func TestAPIAuth(t *testing.T) {
	s := newTestServer(t)
	token := s.apiToken(t, "Alice", "alice@example.com")
	assert.NotEmpty(t, token)

	rec := s.api(t, http.MethodPost, "/api/auth/register", "", map[string]string{"name": "A", "email": "alice@example.com", "password": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.api(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials.", decode(t, rec)["message"])

	rec = s.api(t, http.MethodPost, "/api/auth/login", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.api(t, http.MethodPost, "/api/posts", "", map[string]string{"title": "T", "content": "C"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, no token", decode(t, rec)["message"])

	rec = s.api(t, http.MethodPost, "/api/posts", "not-a-jwt", map[string]string{"title": "T", "content": "C"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, token failed", decode(t, rec)["message"])
}

func TestSessionAndTokenStaySeparate(t *testing.T) {
	s := newTestServer(t)
	cookie := s.signIn(t, "Alice", "alice@example.com")
	token := s.apiToken(t, "Bob", "bob@example.com")

	// A session cookie does not authenticate the JSON API.
	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"title":"T","content":"C"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := s.do(req, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized, no token", decode(t, rec)["message"])

	// A bearer token does not authenticate the views.
	req = httptest.NewRequest(http.MethodGet, "/posts/new", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = s.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	req = httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(url.Values{"title": {"T"}, "content": {"C"}}.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = s.do(req)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))

	n, err := s.store.CountPosts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAPIPostLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.apiToken(t, "Alice", "alice@example.com")
	bob := s.apiToken(t, "Bob", "bob@example.com")

	rec := s.api(t, http.MethodPost, "/api/posts", alice, map[string]string{"title": "", "content": "C"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.api(t, http.MethodPost, "/api/posts", alice, map[string]string{"title": "First", "content": "Body"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id := created["id"].(string)
	assert.Equal(t, "First", created["title"])
	assert.Equal(t, "Alice", created["author"].(map[string]any)["name"])

	rec = s.api(t, http.MethodGet, "/api/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.EqualValues(t, 1, list["total"])
	assert.EqualValues(t, 1, list["totalPages"])
	assert.Len(t, list["posts"], 1)

	rec = s.api(t, http.MethodPatch, "/api/posts/"+id, bob, map[string]string{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.api(t, http.MethodDelete, "/api/posts/"+id, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.api(t, http.MethodPatch, "/api/posts/"+id, alice, map[string]string{"title": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "Renamed", updated["title"])
	assert.Equal(t, "Body", updated["content"])

	rec = s.api(t, http.MethodPost, "/api/posts/"+id+"/comments", bob, map[string]string{"text": "Great"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, id, decode(t, rec)["post"])

	rec = s.api(t, http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Len(t, detail["comments"], 1)
	thread := detail["thread"].([]any)
	require.Len(t, thread, 1)
	assert.Equal(t, "Great", thread[0].(map[string]any)["text"])
	assert.Equal(t, "Bob", thread[0].(map[string]any)["author"].(map[string]any)["name"])

	rec = s.api(t, http.MethodDelete, "/api/posts/"+id, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Deleted Post", decode(t, rec)["message"])

	rec = s.api(t, http.MethodGet, "/api/posts/"+id, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cannot find post", decode(t, rec)["message"])

	rec = s.api(t, http.MethodPost, "/api/posts/"+id+"/comments", bob, map[string]string{"text": "Late"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIUnknownRouteIsJSON(t *testing.T) {
	s := newTestServer(t)
	rec := s.api(t, http.MethodGet, "/api/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decode(t, rec)["message"])
}
