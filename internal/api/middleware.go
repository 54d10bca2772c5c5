// Package api implements the RemoteStore REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SessionCookie carries the session token for browser-style clients.
const SessionCookie = "session_token"

// AuthMiddleware validates the session token when enabled. The token is
// accepted from the session cookie or an "Authorization: Bearer" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			if !validToken(sessionToken(r), token) {
				writeJSON(w, http.StatusUnauthorized, errorBody("not authenticated"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func validToken(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
