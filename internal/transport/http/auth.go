package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/openshelf/circulation/internal/auth"
)

// SessionParser verifies a bearer token and yields the caller's session.
type SessionParser interface {
	Parse(token string) (auth.Session, error)
}

type sessionKey struct{}

// Authenticate extracts and verifies the Authorization bearer token, placing
// the session in the request context. Requests without a valid token get 401.
func Authenticate(tokens SessionParser, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authorization header is required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid authorization format")
			return
		}

		session, err := tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) (auth.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(auth.Session)
	return session, ok
}

// requireLibrarian writes 403 and returns false when the caller is not a
// librarian.
func requireLibrarian(w http.ResponseWriter, r *http.Request) bool {
	session, ok := sessionFrom(r.Context())
	if !ok || !session.IsLibrarian() {
		writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
		return false
	}
	return true
}
