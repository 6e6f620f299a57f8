package auth

import (
	"context"
	"net/http"

	pkghttp "github.com/brasshelm/birdtext/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing session claims in context
	UserContextKey contextKey = "user"
)

// SessionMiddleware validates the session cookie and injects the user's
// claims into the request context. Requests without a valid session are
// rejected with 401.
func SessionMiddleware(sm *SessionManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := GetSessionCookie(r)
			if err != nil || token == "" {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			claims, err := sm.VerifySession(token)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts session claims from the request context.
// Returns nil when the request carries no authenticated session.
func GetUserFromContext(r *http.Request) *SessionClaims {
	claims, ok := r.Context().Value(UserContextKey).(*SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
