package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/auth"
	"github.com/hearth-cms/hearth/internal/credential"
	"github.com/hearth-cms/hearth/internal/shared"
	_ "github.com/hearth-cms/hearth/testing"
)

type harness struct {
	server *httptest.Server
	client *http.Client
	repo   *auth.MemoryRepository
	csrf   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	sessions := shared.NewSessionManager(redisClient, "", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	repo := auth.NewMemoryRepository()
	service := auth.NewService(repo, credential.NewVerifier(credential.MinCost), nil)
	handler := auth.NewHandler(nil, service, sessions, csrf, 0)

	r := chi.NewRouter()
	r.Use(shared.SessionMiddleware(sessions, nil))
	r.Use(auth.Identity)
	r.Use(shared.CSRFMiddleware(csrf, nil))
	r.Route("/auth", handler.MountRoutes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	h := &harness{server: server, client: &http.Client{Jar: jar}, repo: repo}
	h.refreshCSRF(t)
	return h
}

func (h *harness) refreshCSRF(t *testing.T) {
	t.Helper()
	res, err := h.client.Get(h.server.URL + "/auth/csrf")
	require.NoError(t, err)
	defer res.Body.Close()
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.NotEmpty(t, body.CSRFToken)
	h.csrf = body.CSRFToken
}

func (h *harness) post(t *testing.T, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(shared.CSRFHeader, h.csrf)
	res, err := h.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	decoded := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func validSignup() auth.SignupInput {
	return auth.SignupInput{
		Email:           "owen@example.com",
		Password:        "secret123",
		PasswordConfirm: "secret123",
		Name:            "Owen",
		Phone:           "01012345678",
		Nickname:        "owen",
	}
}

func TestSignupAndLogin(t *testing.T) {
	h := newHarness(t)

	res, body := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.EqualValues(t, 1, body["userId"])

	stored := h.repo.Users()
	require.Len(t, stored, 1)
	assert.NotEqual(t, "secret123", stored[0].PasswordHash)
	assert.Equal(t, access.RoleUser, stored[0].Role)

	res, body = h.post(t, "/auth/login", auth.LoginInput{Email: "owen@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, body["csrf_token"])
	h.csrf = body["csrf_token"].(string)

	me, err := h.client.Get(h.server.URL + "/auth/me")
	require.NoError(t, err)
	defer me.Body.Close()
	var who map[string]any
	require.NoError(t, json.NewDecoder(me.Body).Decode(&who))
	assert.EqualValues(t, 1, who["id"])
	assert.Equal(t, "user", who["role"])
}

func TestLoginRotatesSession(t *testing.T) {
	h := newHarness(t)
	res, _ := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	before := sessionID(t, h)
	res, body := h.post(t, "/auth/login", auth.LoginInput{Email: "owen@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	after := sessionID(t, h)

	assert.NotEqual(t, before, after)
	assert.NotEqual(t, h.csrf, body["csrf_token"])
}

func sessionID(t *testing.T, h *harness) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL, nil)
	require.NoError(t, err)
	for _, c := range h.client.Jar.Cookies(req.URL) {
		if c.Name == shared.DefaultSessionCookie {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	res, _ := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, _ = h.post(t, "/auth/login", auth.LoginInput{Email: "owen@example.com", Password: "wrongpass1"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = h.post(t, "/auth/login", auth.LoginInput{Email: "nobody@example.com", Password: "secret123"})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestSignupValidation(t *testing.T) {
	h := newHarness(t)

	in := validSignup()
	in.PasswordConfirm = "different1"
	res, body := h.post(t, "/auth/signup", in)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["fields"], "passwordConfirm")

	in = validSignup()
	in.Password, in.PasswordConfirm = "lettersonly", "lettersonly"
	res, body = h.post(t, "/auth/signup", in)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body["fields"], "password")

	in = validSignup()
	in.Phone = "12ab"
	res, _ = h.post(t, "/auth/signup", in)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestSignupConflicts(t *testing.T) {
	h := newHarness(t)
	res, _ := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res, _ = h.post(t, "/auth/signup", validSignup())
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	in := validSignup()
	in.Email = "other@example.com"
	in.Nickname = "OWEN"
	res, _ = h.post(t, "/auth/signup", in)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestCheckNickname(t *testing.T) {
	h := newHarness(t)
	res, _ := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	_, body := h.post(t, "/auth/check-nickname", map[string]string{"nickname": " Owen "})
	assert.Equal(t, false, body["available"])

	_, body = h.post(t, "/auth/check-nickname", map[string]string{"nickname": "fresh"})
	assert.Equal(t, true, body["available"])

	_, body = h.post(t, "/auth/check-nickname", map[string]string{"nickname": "x"})
	assert.Equal(t, true, body["available"])

	res, _ = h.post(t, "/auth/check-nickname", map[string]string{"nickname": "  "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestLogoutSignsOut(t *testing.T) {
	h := newHarness(t)
	res, _ := h.post(t, "/auth/signup", validSignup())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	_, body := h.post(t, "/auth/login", auth.LoginInput{Email: "owen@example.com", Password: "secret123"})
	h.csrf = body["csrf_token"].(string)

	res, _ = h.post(t, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	me, err := h.client.Get(h.server.URL + "/auth/me")
	require.NoError(t, err)
	defer me.Body.Close()
	var who map[string]any
	require.NoError(t, json.NewDecoder(me.Body).Decode(&who))
	assert.Equal(t, "anonymous", who["role"])
}

func TestCSRFRequiredForUnsafeMethods(t *testing.T) {
	h := newHarness(t)
	h.csrf = ""
	res, _ := h.post(t, "/auth/signup", validSignup())
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestPromote(t *testing.T) {
	repo := auth.NewMemoryRepository()
	service := auth.NewService(repo, credential.NewVerifier(credential.MinCost), nil)
	_, err := service.Signup(context.Background(), validSignup())
	require.NoError(t, err)

	require.NoError(t, service.Promote(context.Background(), "OWEN@example.com", access.RoleAdmin))
	user, err := repo.FindByEmail(context.Background(), "owen@example.com")
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, user.Role)

	assert.ErrorIs(t, service.Promote(context.Background(), "ghost@example.com", access.RoleAdmin), auth.ErrUserNotFound)
}

func TestNicknameKeyFolds(t *testing.T) {
	assert.Equal(t, auth.NicknameKey("owen"), auth.NicknameKey(" OWEN "))
	assert.Equal(t, auth.NicknameKey("owen"), auth.NicknameKey("ｏｗｅｎ"))
	assert.NotEqual(t, auth.NicknameKey("owen"), auth.NicknameKey("owen2"))
}
