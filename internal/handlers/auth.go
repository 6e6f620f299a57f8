package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/brasshelm/birdtext/internal/auth"
	"github.com/brasshelm/birdtext/internal/models"
	pkgauth "github.com/brasshelm/birdtext/pkg/auth"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	"github.com/brasshelm/birdtext/pkg/logger"
)

// LoginGuardInterface defines the brute-force protection operations the
// login flow depends on
type LoginGuardInterface interface {
	Check(ctx context.Context, identifier, identifierType string) (*models.CheckResult, error)
	Record(ctx context.Context, identifier, identifierType string) error
	Clear(ctx context.Context, identifier, identifierType string) error
}

// UserStoreInterface defines the user lookups the auth handler needs
type UserStoreInterface interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	users         UserStoreInterface
	guard         LoginGuardInterface
	sessions      *auth.SessionManager
	audit         *logger.AuditLogger
	ipConfig      *pkghttp.IPConfig
	secureCookies bool
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(users UserStoreInterface, guard LoginGuardInterface, sessions *auth.SessionManager, audit *logger.AuditLogger, ipConfig *pkghttp.IPConfig, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		users:         users,
		guard:         guard,
		sessions:      sessions,
		audit:         audit,
		ipConfig:      ipConfig,
		secureCookies: secureCookies,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public view of a user returned by auth endpoints
type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LoginResponse is the success body for login
type LoginResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

// Login authenticates a user with username and password.
//
// Ordering matters: the guard is consulted before the user lookup so locked
// identifiers are denied without touching the users table, and failures are
// recorded against both the username and the client IP. Guard storage errors
// surface as 500 and are never counted as failed attempts.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		pkghttp.WriteBadRequest(w, "Username and password are required")
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	ctx := r.Context()

	usernameCheck, err := h.guard.Check(ctx, req.Username, models.IdentifierUsername)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !usernameCheck.Allowed {
		h.writeRateLimited(w, r, req.Username, ipAddress, usernameCheck)
		return
	}

	ipCheck, err := h.guard.Check(ctx, ipAddress, models.IdentifierIP)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !ipCheck.Allowed {
		h.writeRateLimited(w, r, req.Username, ipAddress, ipCheck)
		return
	}

	user, err := h.users.GetByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	// Unknown user and wrong password take the same path so responses do
	// not reveal which usernames exist
	if user == nil || pkgauth.ComparePassword(user.PasswordHash, req.Password) != nil {
		if err := h.recordFailure(ctx, req.Username, ipAddress); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		h.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "login",
			Username:      req.Username,
			IPAddress:     ipAddress,
			Success:       false,
			FailureReason: "invalid_credentials",
		})
		pkghttp.WriteUnauthorized(w, "Invalid username or password")
		return
	}

	if err := h.guard.Clear(ctx, req.Username, models.IdentifierUsername); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if err := h.guard.Clear(ctx, ipAddress, models.IdentifierIP); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	token, err := h.sessions.CreateSession(user)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, token, int(h.sessions.Expiry().Seconds()), h.secureCookies)

	h.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login",
		Username:  user.Username,
		IPAddress: ipAddress,
		Success:   true,
	})

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User: UserResponse{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
		},
	})
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookies)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Me returns the authenticated user's identity from the session claims
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"user": UserResponse{
			ID:       claims.UserID,
			Username: claims.Username,
			Email:    claims.Email,
		},
	})
}

// CSRFToken mints a fresh anti-forgery token, sets the double-submit cookie,
// and returns the token with its expiry for the client to cache. Requires an
// authenticated session.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	token, err := auth.GenerateCSRFToken()
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetCSRFCookie(w, token.Token, h.secureCookies)
	pkghttp.WriteJSON(w, http.StatusOK, token)
}

func (h *AuthHandler) writeRateLimited(w http.ResponseWriter, r *http.Request, username, ipAddress string, check *models.CheckResult) {
	message := "Too many failed attempts. Please try again later."
	if check.MinutesRemaining > 0 {
		plural := ""
		if check.MinutesRemaining > 1 {
			plural = "s"
		}
		message = fmt.Sprintf("Too many failed attempts. Try again in %d minute%s.", check.MinutesRemaining, plural)
	}

	h.audit.LogAuthAttempt(logger.AuditEvent{
		EventType:     "login",
		Username:      username,
		IPAddress:     ipAddress,
		Success:       false,
		FailureReason: check.Reason,
	})

	pkghttp.WriteTooManyRequests(w, message)
}

// recordFailure counts a failed login against both identifiers
func (h *AuthHandler) recordFailure(ctx context.Context, username, ipAddress string) error {
	if err := h.guard.Record(ctx, username, models.IdentifierUsername); err != nil {
		return err
	}
	return h.guard.Record(ctx, ipAddress, models.IdentifierIP)
}
