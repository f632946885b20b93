package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

// RequireAdminToken guards a route group with a static bearer token.
// An empty token leaves the routes open, which is the local default.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				log.Printf("⚠️ Rejected %s %s from %s: bad admin token", r.Method, r.URL.Path, GetClientIP(r))
				RecordConnectionRejected("auth")
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
