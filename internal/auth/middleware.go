package auth

import (
	"net/http"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/shared"
)

// Identity resolves the session placed in context by the session middleware
// into an access.Principal. Requests without a signed-in user get the
// anonymous principal bound to their session's client id.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		principal := access.Anonymous("")
		if sess != nil {
			principal = access.Anonymous(sess.ClientID())
			if id := sess.UserID(); id > 0 {
				principal = access.Principal{ID: id, Role: access.ParseRole(sess.Role()), Session: sess.ClientID()}
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}
