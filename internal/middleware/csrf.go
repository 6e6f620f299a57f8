package middleware

import (
	"log/slog"
	"net/http"

	"github.com/brasshelm/birdtext/internal/auth"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	pkglogger "github.com/brasshelm/birdtext/pkg/logger"
)

// CSRFErrorCode is the machine-readable code clients branch on to refresh
// their token and retry
const CSRFErrorCode = "CSRF_INVALID"

// RequireCSRF validates the double-submit token pair on state-changing
// requests. GET and other safe methods pass through untouched. Gated methods
// require an authenticated session first: there is no session to forge for
// an anonymous request, so those get a plain 401.
//
// Must run after auth.SessionMiddleware.
func RequireCSRF(enforce bool, logger *slog.Logger, audit *pkglogger.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			user := auth.GetUserFromContext(r)
			if user == nil {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			if !enforce {
				// Operational escape hatch; never silent
				logger.Warn("csrf enforcement disabled, allowing unverified request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !auth.VerifyCSRFRequest(r, true) {
				logger.Warn("csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("username", user.Username),
				)
				audit.LogCSRFRejection(r.Method, r.URL.Path, user.Username)
				pkghttp.WriteErrorCode(w, http.StatusForbidden,
					"Invalid CSRF token. Please refresh the page and try again.", CSRFErrorCode)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
