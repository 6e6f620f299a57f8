package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/brasshelm/birdtext/internal/models"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	"github.com/brasshelm/birdtext/pkg/phone"
	"github.com/google/uuid"
)

// WebhookContactStore is the contact access the inbound webhook needs
type WebhookContactStore interface {
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Contact, error)
}

// WebhookMessageStore is the message access the inbound webhook needs.
// InsertWithContact is transactional: the contact and message land together
// or not at all.
type WebhookMessageStore interface {
	Insert(ctx context.Context, msg *models.Message) (*models.Message, error)
	InsertWithContact(ctx context.Context, contact *models.Contact, msg *models.Message) (*models.Contact, *models.Message, error)
	HasRecentDuplicate(ctx context.Context, phoneFrom, content string) (bool, error)
}

// WebhooksHandler receives inbound SMS callbacks from voip.ms
type WebhooksHandler struct {
	contacts   WebhookContactStore
	messages   WebhookMessageStore
	webhookKey string
	logger     *slog.Logger
}

// NewWebhooksHandler creates a new WebhooksHandler
func NewWebhooksHandler(contacts WebhookContactStore, messages WebhookMessageStore, webhookKey string, logger *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		contacts:   contacts,
		messages:   messages,
		webhookKey: webhookKey,
		logger:     logger,
	}
}

// InboundSMS handles the voip.ms SMS callback. The provider delivers these
// as GET requests with query parameters, so this endpoint sits outside the
// session and CSRF middleware; a shared key in the URL authenticates the
// caller instead.
func (h *WebhooksHandler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if h.webhookKey != "" {
		key := r.URL.Query().Get("key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookKey)) != 1 {
			pkghttp.WriteUnauthorized(w, "Invalid webhook key")
			return
		}
	}

	query := r.URL.Query()
	to := query.Get("to")
	from := query.Get("from")
	msg := query.Get("msg")
	id := query.Get("id")

	if to == "" || from == "" || msg == "" || id == "" {
		pkghttp.WriteBadRequest(w, "Missing required parameters: to, from, msg, id")
		return
	}

	ctx := r.Context()
	fromPhone := phone.FormatE164(from)
	toPhone := phone.FormatE164(to)

	duplicate, err := h.messages.HasRecentDuplicate(ctx, fromPhone, msg)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if duplicate {
		h.logger.Info("duplicate inbound sms ignored", slog.String("provider_id", id))
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "Already processed (duplicate)",
		})
		return
	}

	contact, err := h.contacts.GetByPhoneNumber(ctx, fromPhone)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	message := &models.Message{
		ID:          uuid.NewString(),
		Direction:   models.DirectionInbound,
		MessageType: models.MessageTypeSMS,
		Content:     msg,
		PhoneFrom:   fromPhone,
		PhoneTo:     toPhone,
		Status:      models.StatusSent,
	}

	if contact == nil {
		// Unknown sender: create the contact and store the message in one
		// transaction so a failed insert cannot leave an orphan contact.
		contact, _, err = h.messages.InsertWithContact(ctx, &models.Contact{
			ID:          uuid.NewString(),
			Name:        phone.Display(fromPhone),
			PhoneNumber: fromPhone,
			AvatarColor: phone.RandomAvatarColor(),
		}, message)
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		h.logger.Info("created contact for unknown sender",
			slog.String("contact_id", contact.ID),
			slog.String("name", contact.Name),
		)
	} else {
		message.ContactID = contact.ID
		if _, err = h.messages.Insert(ctx, message); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	h.logger.Info("stored inbound sms",
		slog.String("contact_id", contact.ID),
		slog.String("provider_id", id),
	)

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "SMS received and stored",
	})
}
