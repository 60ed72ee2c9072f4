package grant

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderName carries grant tokens for clients that do not keep cookies.
const HeaderName = "X-Access-Grant"

const (
	cookiePrefix = "board_grant_"
	cookiePath   = "/board"
)

// CookieName returns the cookie holding the grant for post id.
func CookieName(id int64) string {
	return cookiePrefix + strconv.FormatInt(id, 10)
}

// FromRequest collects every grant token presented with r, from the
// X-Access-Grant header (comma separated) and board_grant_* cookies.
func FromRequest(r *http.Request) []string {
	var tokens []string
	for _, value := range r.Header.Values(HeaderName) {
		for _, part := range strings.Split(value, ",") {
			if token := strings.TrimSpace(part); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	for _, cookie := range r.Cookies() {
		if strings.HasPrefix(cookie.Name, cookiePrefix) && cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	return tokens
}

// SetCookie stores an issued grant for post id on the client.
func SetCookie(w http.ResponseWriter, id int64, issued Issued, secure bool, now time.Time) {
	maxAge := int(issued.ExpiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(id),
		Value:    issued.Token,
		Path:     cookiePath,
		MaxAge:   maxAge,
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the grant cookie for post id, used once a post is
// deleted or made public.
func ClearCookie(w http.ResponseWriter, id int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName(id),
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
