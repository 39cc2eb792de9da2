// Package auth enforces bearer-token authentication on the HTTP API.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// Public reports whether a request may be served without a token. The
// server derives it from its own route table.
type Public func(r *http.Request) bool

// Middleware rejects requests lacking the configured bearer token while auth
// is enabled. Requests for which public returns true are passed through.
func Middleware(cfg Config, public Public) func(http.Handler) http.Handler {
	want := []byte(cfg.Token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Enabled && !(public != nil && public(r)) && !authorized(r, want) {
				deny(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authorized(r *http.Request, want []byte) bool {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), want) == 1
}

func deny(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="visval"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
