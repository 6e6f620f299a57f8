package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/brasshelm/birdtext/internal/models"
	"github.com/brasshelm/birdtext/internal/repositories"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	"github.com/brasshelm/birdtext/pkg/phone"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ContactsHandler handles contact CRUD requests
type ContactsHandler struct {
	contacts *repositories.ContactRepository
}

// NewContactsHandler creates a new ContactsHandler
func NewContactsHandler(contacts *repositories.ContactRepository) *ContactsHandler {
	return &ContactsHandler{contacts: contacts}
}

// CreateContactRequest represents the request body for creating a contact
type CreateContactRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	PhoneNumber string  `json:"phone_number" validate:"required"`
	Notes       *string `json:"notes"`
	AvatarColor string  `json:"avatar_color"`
}

// UpdateContactRequest represents the request body for updating a contact
type UpdateContactRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	PhoneNumber string  `json:"phone_number" validate:"required"`
	Notes       *string `json:"notes"`
}

// List returns every contact with unread counts, ordered by name
func (h *ContactsHandler) List(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.List(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if contacts == nil {
		contacts = []*models.ContactWithUnread{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}

// Get returns a single contact
func (h *ContactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	contact, err := h.contacts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Contact not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"contact": contact})
}

// Create adds a contact. The phone number is normalized to E.164 before
// storage so inbound webhook lookups match regardless of input formatting.
func (h *ContactsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if req.Name == "" || req.PhoneNumber == "" {
		pkghttp.WriteBadRequest(w, "Name and phone number are required")
		return
	}
	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	avatarColor := req.AvatarColor
	if avatarColor == "" {
		avatarColor = phone.RandomAvatarColor()
	}

	contact := &models.Contact{
		ID:          uuid.NewString(),
		Name:        req.Name,
		PhoneNumber: phone.FormatE164(req.PhoneNumber),
		AvatarColor: avatarColor,
		Notes:       req.Notes,
	}

	created, err := h.contacts.Create(r.Context(), contact)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			pkghttp.WriteConflict(w, "Contact with this phone number already exists")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]any{"contact": created})
}

// Update replaces a contact's editable fields
func (h *ContactsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	contact := &models.Contact{
		Name:        req.Name,
		PhoneNumber: phone.FormatE164(req.PhoneNumber),
		Notes:       req.Notes,
	}

	updated, err := h.contacts.Update(r.Context(), chi.URLParam(r, "id"), contact)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Contact not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Contact with this phone number already exists")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"contact": updated})
}

// Delete removes a contact and its conversation history
func (h *ContactsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Contact not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SetArchived archives or restores a contact
func (h *ContactsHandler) SetArchived(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.contacts.SetArchived)
}

// SetSpam marks or unmarks a contact as spam
func (h *ContactsHandler) SetSpam(w http.ResponseWriter, r *http.Request) {
	h.setFlag(w, r, h.contacts.SetSpam)
}

type flagRequest struct {
	Value bool `json:"value"`
}

func (h *ContactsHandler) setFlag(w http.ResponseWriter, r *http.Request, set func(ctx context.Context, id string, value bool) error) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := set(r.Context(), chi.URLParam(r, "id"), req.Value); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Contact not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
