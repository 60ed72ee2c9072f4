package grant

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/credential"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestManager(t *testing.T, c *clock, reg prometheus.Registerer) (*Manager, *credential.Verifier) {
	t.Helper()
	verifier := credential.NewVerifier(credential.MinCost)
	m, err := NewManager(Config{
		Secret:     "grant-test-secret",
		TTL:        time.Hour,
		Now:        c.now,
		Registerer: reg,
	}, verifier)
	require.NoError(t, err)
	return m, verifier
}

func secretResource(t *testing.T, v *credential.Verifier, password string) access.Resource {
	t.Helper()
	hash, err := v.Hash(password)
	require.NoError(t, err)
	return access.Resource{Kind: access.KindPost, ID: 42, OwnerID: 1, Secret: true, SecretHash: hash}
}

func TestIssueAndValidate(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)
	assert.Equal(t, ScopeResource, issued.Claims.Scope)
	assert.Equal(t, post.ID, issued.Claims.ResourceID)
	assert.Equal(t, time.Hour, issued.Claims.TTL())
	assert.NotEmpty(t, issued.Claims.ID)

	require.NoError(t, m.Validate(issued.Token, post, "session-a"))
	assert.True(t, m.Presented(issued.Token).Unlocks(access.Principal{Session: "session-a"}, post))
}

func TestWrongPasswordIsBadPassword(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, reg)
	post := secretResource(t, v, "abc123")

	_, err := m.Issue(post, "wrong", "session-a")
	require.Error(t, err)
	assert.True(t, access.IsDenied(err, access.ReasonBadPassword))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.issued.WithLabelValues("bad_password")))
}

func TestMissingResourceLooksLikeWrongPassword(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)

	_, missingErr := m.Issue(access.Resource{Kind: access.KindPost}, "abc123", "session-a")
	deleted := secretResource(t, v, "abc123")
	deleted.Deleted = true
	_, deletedErr := m.Issue(deleted, "abc123", "session-a")
	_, wrongErr := m.Issue(secretResource(t, v, "abc123"), "nope", "session-a")

	require.Error(t, missingErr)
	assert.Equal(t, wrongErr.Error(), missingErr.Error())
	assert.Equal(t, wrongErr.Error(), deletedErr.Error())
}

func TestSecretWithoutHashRejects(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, _ := newTestManager(t, c, nil)
	post := access.Resource{Kind: access.KindPost, ID: 5, OwnerID: 1, Secret: true}

	_, err := m.Issue(post, "", "session-a")
	assert.True(t, access.IsDenied(err, access.ReasonBadPassword))
}

func TestPasswordChangeInvalidatesGrant(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)

	rotated := post
	rotated.SecretHash, err = v.Hash("xyz789")
	require.NoError(t, err)

	assert.ErrorIs(t, m.Validate(issued.Token, rotated, "session-a"), ErrFingerprintMismatch)
}

func TestGrantExpires(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)

	c.t = c.t.Add(59 * time.Minute)
	require.NoError(t, m.Validate(issued.Token, post, "session-a"))

	c.t = c.t.Add(time.Minute)
	assert.ErrorIs(t, m.Validate(issued.Token, post, "session-a"), ErrExpired)
}

func TestGrantIsBoundToClient(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(issued.Token, post, "session-b"), ErrClientMismatch)
}

func TestGrantIsBoundToResource(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)

	other := post
	other.ID = 43
	assert.ErrorIs(t, m.Validate(issued.Token, other, "session-a"), ErrResourceMismatch)

	comment := post
	comment.Kind = access.KindComment
	assert.ErrorIs(t, m.Validate(issued.Token, comment, "session-a"), ErrResourceMismatch)
}

func TestClassGrantNeverUnlocksSecret(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	public := access.Resource{Kind: access.KindPost, ID: 7, OwnerID: 1}

	issued, err := m.Issue(public, "", "session-a")
	require.NoError(t, err)
	assert.Equal(t, ScopeClass, issued.Claims.Scope)
	require.NoError(t, m.Validate(issued.Token, public, "session-a"))

	secret := secretResource(t, v, "abc123")
	assert.ErrorIs(t, m.Validate(issued.Token, secret, "session-a"), ErrFingerprintMismatch)
}

func TestTamperedTokenRejected(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	post := secretResource(t, v, "abc123")

	issued, err := m.Issue(post, "abc123", "session-a")
	require.NoError(t, err)

	raw, err := Decode(issued.Token)
	require.NoError(t, err)
	raw[0] ^= 0xff
	assert.ErrorIs(t, m.Validate(Encode(raw), post, "session-a"), ErrInvalidSignature)

	assert.ErrorIs(t, m.Validate("!!!", post, "session-a"), ErrMalformed)
	assert.ErrorIs(t, m.Validate(Encode([]byte{1, 2, 3}), post, "session-a"), ErrMalformed)
}

func TestTokensFromOtherSecretRejected(t *testing.T) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	m, v := newTestManager(t, c, nil)
	other, err := NewManager(Config{Secret: "another-secret", Now: c.now}, v)
	require.NoError(t, err)
	post := secretResource(t, v, "abc123")

	issued, err := other.Issue(post, "abc123", "session-a")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Validate(issued.Token, post, "session-a"), ErrInvalidSignature)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(Config{}, credential.NewVerifier(credential.MinCost))
	assert.ErrorIs(t, err, ErrSecretRequired)
}

func TestFromRequestCollectsHeaderAndCookies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/board/posts/1", nil)
	req.Header.Set(HeaderName, "tok-a, tok-b,")
	req.AddCookie(&http.Cookie{Name: CookieName(1), Value: "tok-c"})
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "ignored"})

	assert.ElementsMatch(t, []string{"tok-a", "tok-b", "tok-c"}, FromRequest(req))
}

func TestSetCookieAttributes(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := httptest.NewRecorder()
	SetCookie(rec, 9, Issued{Token: "tok", ExpiresAt: now.Add(time.Hour)}, false, now)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	cookie := cookies[0]
	assert.Equal(t, "board_grant_9", cookie.Name)
	assert.Equal(t, "/board", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}
