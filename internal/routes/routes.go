package routes

import (
	"log/slog"

	"github.com/brasshelm/birdtext/internal/auth"
	"github.com/brasshelm/birdtext/internal/handlers"
	"github.com/brasshelm/birdtext/internal/middleware"
	pkglogger "github.com/brasshelm/birdtext/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	contactsHandler *handlers.ContactsHandler,
	messagesHandler *handlers.MessagesHandler,
	webhooksHandler *handlers.WebhooksHandler,
	sessionManager *auth.SessionManager,
	enforceCSRF bool,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) {
	// Public routes. Login carries its own brute-force protection in the
	// shared store; the webhook gets best-effort throttling on top of its
	// shared key.
	router.Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(middleware.DefaultWebhookRateLimit())).
		Get("/webhooks/voipms/sms", webhooksHandler.InboundSMS)

	// Protected routes - session required, mutations CSRF-gated
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sessionManager))
		r.Use(middleware.RequireCSRF(enforceCSRF, logger, audit))

		r.Get("/auth/me", authHandler.Me)
		r.Get("/auth/csrf-token", authHandler.CSRFToken)
		r.Post("/auth/logout", authHandler.Logout)

		r.Get("/contacts", contactsHandler.List)
		r.Post("/contacts", contactsHandler.Create)
		r.Get("/contacts/{id}", contactsHandler.Get)
		r.Put("/contacts/{id}", contactsHandler.Update)
		r.Delete("/contacts/{id}", contactsHandler.Delete)
		r.Put("/contacts/{id}/archive", contactsHandler.SetArchived)
		r.Put("/contacts/{id}/spam", contactsHandler.SetSpam)

		r.Get("/messages", messagesHandler.ListRecent)
		r.Get("/messages/unread-count", messagesHandler.UnreadCount)
		r.Get("/messages/conversation/{contactId}", messagesHandler.Conversation)
		r.Put("/messages/conversation/{contactId}/read", messagesHandler.MarkConversationRead)
		r.Post("/messages/send", messagesHandler.Send)
		r.Post("/messages/note", messagesHandler.Note)
		r.Put("/messages/{id}/read", messagesHandler.MarkRead)
	})
}
