package board_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/board"
	"github.com/hearth-cms/hearth/internal/credential"
	"github.com/hearth-cms/hearth/internal/grant"
	"github.com/hearth-cms/hearth/internal/shared"
	_ "github.com/hearth-cms/hearth/testing"
)

// asPrincipal stands in for the session and identity middleware. The
// principal id comes from the X-Test-User header; X-Test-Admin sets the
// admin role.
func asPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
		p := access.Principal{ID: id, Role: access.RoleUser, Session: "sess-" + r.Header.Get("X-Test-User")}
		if r.Header.Get("X-Test-Admin") != "" {
			p.Role = access.RoleAdmin
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
	})
}

func newBoardServer(t *testing.T) *httptest.Server {
	t.Helper()
	verifier := credential.NewVerifier(credential.MinCost)
	grants, err := grant.NewManager(grant.Config{Secret: "handler-test"}, verifier)
	require.NoError(t, err)
	svc := board.NewService(board.Deps{
		Repo:     board.NewMemoryRepository(),
		Grants:   grants,
		Verifier: verifier,
	})
	h := board.NewHandler(nil, svc, false, 0)

	r := chi.NewRouter()
	r.Use(asPrincipal)
	r.Route("/board", h.MountRoutes)
	r.Route("/admin/board", h.MountAdminRoutes)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func call(t *testing.T, server *httptest.Server, method, path, user string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestSecretPostOverHTTP(t *testing.T) {
	server := newBoardServer(t)

	resp := call(t, server, http.MethodPost, "/board/posts", "1", map[string]any{
		"title": "diary", "content": "secret body", "isSecret": true, "password": "abc123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created board.PostView
	decode(t, resp, &created)
	path := "/board/posts/" + strconv.FormatInt(created.ID, 10)

	resp = call(t, server, http.MethodGet, path, "2", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var problem map[string]any
	decode(t, resp, &problem)
	assert.Equal(t, "locked", problem["reason"])
	assert.Equal(t, true, problem["locked"])

	resp = call(t, server, http.MethodPost, path+"/unlock", "2", map[string]string{"password": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = call(t, server, http.MethodPost, path+"/unlock", "2", map[string]string{"password": "abc123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unlocked struct {
		Token string `json:"token"`
		Scope string `json:"scope"`
	}
	decode(t, resp, &unlocked)
	assert.NotEmpty(t, unlocked.Token)

	var grantCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == grant.CookieName(created.ID) {
			grantCookie = c
		}
	}
	require.NotNil(t, grantCookie)
	assert.True(t, grantCookie.HttpOnly)

	resp = call(t, server, http.MethodGet, path, "2", nil, grantCookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view board.PostView
	decode(t, resp, &view)
	assert.Equal(t, "secret body", view.Content)

	req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "2")
	req.Header.Set(grant.HeaderName, unlocked.Token)
	headerResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer headerResp.Body.Close()
	assert.Equal(t, http.StatusOK, headerResp.StatusCode)
}

func TestBoardStatusCodes(t *testing.T) {
	server := newBoardServer(t)

	resp := call(t, server, http.MethodPost, "/board/posts", "", map[string]any{"title": "t", "content": "c"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(t, server, http.MethodPost, "/board/posts", "1", map[string]any{"title": "", "content": "c"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = call(t, server, http.MethodGet, "/board/posts/999", "1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, server, http.MethodGet, "/board/posts/abc", "1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call(t, server, http.MethodPost, "/board/posts", "1", map[string]any{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created board.PostView
	decode(t, resp, &created)
	path := "/board/posts/" + strconv.FormatInt(created.ID, 10)

	resp = call(t, server, http.MethodPut, path, "2", map[string]any{"title": "x", "content": "y"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = call(t, server, http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, server, http.MethodDelete, path, "1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, server, http.MethodGet, path, "1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndCommentsOverHTTP(t *testing.T) {
	server := newBoardServer(t)

	resp := call(t, server, http.MethodPost, "/board/posts", "1", map[string]any{"title": "hello", "content": "world"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created board.PostView
	decode(t, resp, &created)
	base := "/board/posts/" + strconv.FormatInt(created.ID, 10)

	resp = call(t, server, http.MethodPost, base+"/comments", "2", map[string]string{"content": "first!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var comment board.CommentView
	decode(t, resp, &comment)

	resp = call(t, server, http.MethodGet, base+"/comments", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Comments []board.CommentView `json:"comments"`
	}
	decode(t, resp, &listed)
	require.Len(t, listed.Comments, 1)

	commentPath := "/board/comments/" + strconv.FormatInt(comment.ID, 10)
	resp = call(t, server, http.MethodPut, commentPath, "1", map[string]string{"content": "edit"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = call(t, server, http.MethodDelete, commentPath, "1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, server, http.MethodGet, "/board/posts?search=hell&page=1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page board.PostPage
	decode(t, resp, &page)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestAdminAuditRoute(t *testing.T) {
	server := newBoardServer(t)

	resp := call(t, server, http.MethodPost, "/board/posts", "1", map[string]any{"title": "t", "content": "c"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created board.PostView
	decode(t, resp, &created)
	id := strconv.FormatInt(created.ID, 10)

	resp = call(t, server, http.MethodDelete, "/board/posts/"+id, "1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, server, http.MethodGet, "/admin/board/posts/"+id, "1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, server.URL+"/admin/board/posts/"+id, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "9")
	req.Header.Set("X-Test-Admin", "1")
	adminResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer adminResp.Body.Close()
	require.Equal(t, http.StatusOK, adminResp.StatusCode)
	var view board.PostView
	require.NoError(t, json.NewDecoder(adminResp.Body).Decode(&view))
	assert.True(t, view.IsDeleted)
}
