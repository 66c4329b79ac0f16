// Package middleware provides HTTP middleware for the compiler API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Header and query names accepted for the shared token.
const (
	HeaderToken = "X-API-Token"
	QueryToken  = "token"
)

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Token is the shared secret callers must present.
	// If empty, every request is allowed.
	Token string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware checks a shared token taken from the Authorization bearer
// header, the X-API-Token header or, for browser WebSocket clients that
// cannot set headers, the token query parameter.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Enabled reports whether a token is required.
func (m *AuthMiddleware) Enabled() bool {
	return m.config.Token != ""
}

// Handler returns the middleware handler function.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		presented := TokenFromRequest(r)
		if presented == "" {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "Authentication required")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(m.config.Token)) != 1 {
			m.config.Logger.Warn("invalid API token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeJSONError(w, http.StatusForbidden, "Forbidden", "Invalid API token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest extracts the presented token, if any.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if h := r.Header.Get(HeaderToken); h != "" {
		return strings.TrimSpace(h)
	}
	return r.URL.Query().Get(QueryToken)
}

// =============================================================================
// JSON Error Response
// =============================================================================

// ErrorResponse matches the API's error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSONError writes an error in the API's error format.
func writeJSONError(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: detail,
		Code:  strings.ToLower(strings.ReplaceAll(title, " ", "_")),
	})
}
