package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/brasshelm/birdtext/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWebhookContacts struct {
	byPhone map[string]*models.Contact
}

func (m *mockWebhookContacts) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Contact, error) {
	if c, ok := m.byPhone[phoneNumber]; ok {
		return c, nil
	}
	return nil, models.ErrNotFound
}

type mockWebhookMessages struct {
	inserted  []*models.Message
	created   []*models.Contact
	duplicate bool
	insertErr error
}

func (m *mockWebhookMessages) Insert(ctx context.Context, msg *models.Message) (*models.Message, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserted = append(m.inserted, msg)
	return msg, nil
}

func (m *mockWebhookMessages) InsertWithContact(ctx context.Context, contact *models.Contact, msg *models.Message) (*models.Contact, *models.Message, error) {
	if m.insertErr != nil {
		return nil, nil, m.insertErr
	}
	msg.ContactID = contact.ID
	m.created = append(m.created, contact)
	m.inserted = append(m.inserted, msg)
	return contact, msg, nil
}

func (m *mockWebhookMessages) HasRecentDuplicate(ctx context.Context, phoneFrom, content string) (bool, error) {
	return m.duplicate, nil
}

func webhookRequest(key string) *http.Request {
	params := url.Values{}
	params.Set("to", "2125550100")
	params.Set("from", "3105550199")
	params.Set("msg", "hey there")
	params.Set("id", "sms-789")
	if key != "" {
		params.Set("key", key)
	}
	return httptest.NewRequest(http.MethodGet, "/api/webhooks/voipms/sms?"+params.Encode(), nil)
}

func newWebhookHandler(contacts *mockWebhookContacts, messages *mockWebhookMessages, key string) *WebhooksHandler {
	return NewWebhooksHandler(contacts, messages, key, slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func TestInboundSMS(t *testing.T) {
	t.Run("stores message for existing contact", func(t *testing.T) {
		contact := &models.Contact{ID: "c1", PhoneNumber: "+13105550199"}
		contacts := &mockWebhookContacts{byPhone: map[string]*models.Contact{"+13105550199": contact}}
		messages := &mockWebhookMessages{}
		h := newWebhookHandler(contacts, messages, "")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest(""))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, messages.created)
		require.Len(t, messages.inserted, 1)

		msg := messages.inserted[0]
		assert.Equal(t, "c1", msg.ContactID)
		assert.Equal(t, models.DirectionInbound, msg.Direction)
		assert.Equal(t, "+13105550199", msg.PhoneFrom)
		assert.Equal(t, "+12125550100", msg.PhoneTo)
		assert.Equal(t, "hey there", msg.Content)
	})

	t.Run("creates contact for unknown sender", func(t *testing.T) {
		contacts := &mockWebhookContacts{}
		messages := &mockWebhookMessages{}
		h := newWebhookHandler(contacts, messages, "")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest(""))

		assert.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, messages.created, 1)
		assert.Equal(t, "+13105550199", messages.created[0].PhoneNumber)
		assert.Equal(t, "+1 (310) 555-0199", messages.created[0].Name)
		assert.NotEmpty(t, messages.created[0].AvatarColor)
		require.Len(t, messages.inserted, 1)
		assert.Equal(t, messages.created[0].ID, messages.inserted[0].ContactID)
	})

	t.Run("failed store for unknown sender creates nothing", func(t *testing.T) {
		messages := &mockWebhookMessages{insertErr: errors.New("insert failed")}
		h := newWebhookHandler(&mockWebhookContacts{}, messages, "")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest(""))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, messages.created)
		assert.Empty(t, messages.inserted)
	})

	t.Run("duplicate delivery is acknowledged but not stored", func(t *testing.T) {
		messages := &mockWebhookMessages{duplicate: true}
		h := newWebhookHandler(&mockWebhookContacts{}, messages, "")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest(""))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "duplicate")
		assert.Empty(t, messages.inserted)
	})

	t.Run("missing parameters returns 400", func(t *testing.T) {
		h := newWebhookHandler(&mockWebhookContacts{}, &mockWebhookMessages{}, "")

		req := httptest.NewRequest(http.MethodGet, "/api/webhooks/voipms/sms?to=2125550100", nil)
		rec := httptest.NewRecorder()
		h.InboundSMS(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong webhook key returns 401", func(t *testing.T) {
		messages := &mockWebhookMessages{}
		h := newWebhookHandler(&mockWebhookContacts{}, messages, "expected-key")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest("wrong-key"))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, messages.inserted)
	})

	t.Run("correct webhook key accepted", func(t *testing.T) {
		h := newWebhookHandler(&mockWebhookContacts{}, &mockWebhookMessages{}, "expected-key")

		rec := httptest.NewRecorder()
		h.InboundSMS(rec, webhookRequest("expected-key"))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
