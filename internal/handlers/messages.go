package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/brasshelm/birdtext/internal/auth"
	"github.com/brasshelm/birdtext/internal/models"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	"github.com/brasshelm/birdtext/pkg/phone"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultRecentLimit = 100

// MessageStoreInterface defines the message persistence the handler needs
type MessageStoreInterface interface {
	ListRecent(ctx context.Context, limit int) ([]*models.Message, error)
	ListByContact(ctx context.Context, contactID string) ([]*models.Message, error)
	Insert(ctx context.Context, msg *models.Message) (*models.Message, error)
	MarkRead(ctx context.Context, contactID string) (int64, error)
	MarkMessageRead(ctx context.Context, id string) (*models.Message, error)
	UnreadCount(ctx context.Context) (int, error)
}

// ContactLookupInterface defines the contact lookups the message flow needs
type ContactLookupInterface interface {
	GetByID(ctx context.Context, id string) (*models.Contact, error)
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Contact, error)
}

// SMSSender sends a text message and returns the provider message ID
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) (string, error)
	DID() string
}

// MessagesHandler handles message and conversation HTTP requests
type MessagesHandler struct {
	messages MessageStoreInterface
	contacts ContactLookupInterface
	sms      SMSSender
}

// NewMessagesHandler creates a new MessagesHandler
func NewMessagesHandler(messages MessageStoreInterface, contacts ContactLookupInterface, sms SMSSender) *MessagesHandler {
	return &MessagesHandler{
		messages: messages,
		contacts: contacts,
		sms:      sms,
	}
}

// SendMessageRequest represents the request body for sending an SMS
type SendMessageRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
	Message   string `json:"message" validate:"required,max=1600"`
}

// NoteRequest represents the request body for attaching a note
type NoteRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Body        string `json:"body" validate:"required"`
}

// ListRecent returns the newest messages across the inbox
func (h *MessagesHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	messages, err := h.messages.ListRecent(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if messages == nil {
		messages = []*models.Message{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// Conversation returns every message for a contact, oldest first
func (h *MessagesHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactId")

	messages, err := h.messages.ListByContact(r.Context(), contactID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if messages == nil {
		messages = []*models.Message{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": messages,
	})
}

// Send delivers an SMS to a contact via the provider and stores the
// outbound message. The message row is written only after the provider
// accepts the send.
func (h *MessagesHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.ContactID == "" || req.Message == "" {
		pkghttp.WriteBadRequest(w, "Contact ID and message are required")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ctx := r.Context()

	contact, err := h.contacts.GetByID(ctx, req.ContactID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Contact not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if _, err := h.sms.SendSMS(ctx, contact.PhoneNumber, req.Message); err != nil {
		pkghttp.WriteInternalError(w, "Failed to send message")
		return
	}

	var sentBy *string
	if claims := auth.GetUserFromContext(r); claims != nil {
		sentBy = &claims.Username
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		ContactID:   contact.ID,
		Direction:   models.DirectionOutbound,
		MessageType: models.MessageTypeSMS,
		Content:     req.Message,
		PhoneFrom:   h.sms.DID(),
		PhoneTo:     contact.PhoneNumber,
		SentBy:      sentBy,
		Status:      models.StatusSent,
	}

	stored, err := h.messages.Insert(ctx, msg)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": stored,
	})
}

// Note attaches an internal note to a contact's conversation. Notes are
// stored in the message timeline but never sent anywhere.
func (h *MessagesHandler) Note(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.PhoneNumber == "" || req.Body == "" {
		pkghttp.WriteBadRequest(w, "Phone number and body are required")
		return
	}

	ctx := r.Context()

	contact, err := h.contacts.GetByPhoneNumber(ctx, phone.FormatE164(req.PhoneNumber))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Contact not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	msg := &models.Message{
		ID:          uuid.NewString(),
		ContactID:   contact.ID,
		Direction:   models.DirectionNote,
		MessageType: models.MessageTypeNote,
		Content:     req.Body,
		PhoneFrom:   h.sms.DID(),
		PhoneTo:     contact.PhoneNumber,
		Status:      models.StatusSent,
	}

	stored, err := h.messages.Insert(ctx, msg)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": stored,
	})
}

// MarkRead marks one message as read
func (h *MessagesHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messages.MarkMessageRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Message not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

// MarkConversationRead marks every unread inbound message for a contact
func (h *MessagesHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.messages.MarkRead(r.Context(), chi.URLParam(r, "contactId"))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"updated": updated,
	})
}

// UnreadCount returns the total number of unread inbound messages
func (h *MessagesHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.messages.UnreadCount(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}
