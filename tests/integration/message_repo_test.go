package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/brasshelm/birdtext/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertWithContact(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	_, _, contactRepo, messageRepo := InitializeRepositories(testDB.DB)

	cleanup := func(t *testing.T) {
		t.Helper()
		require.NoError(t, testDB.CleanupTables(ctx))
	}

	newContact := func() *models.Contact {
		return &models.Contact{
			ID:          uuid.NewString(),
			Name:        "+1 (310) 555-0199",
			PhoneNumber: "+13105550199",
			AvatarColor: "#4A90E2",
		}
	}

	t.Run("commits contact and message together", func(t *testing.T) {
		cleanup(t)

		contact, msg, err := messageRepo.InsertWithContact(ctx, newContact(), &models.Message{
			ID:          uuid.NewString(),
			Direction:   models.DirectionInbound,
			MessageType: models.MessageTypeSMS,
			Content:     "hello",
			PhoneFrom:   "+13105550199",
			PhoneTo:     "+12125550100",
			Status:      models.StatusSent,
		})
		require.NoError(t, err)
		assert.Equal(t, contact.ID, msg.ContactID)

		stored, err := contactRepo.GetByPhoneNumber(ctx, "+13105550199")
		require.NoError(t, err)

		conversation, err := messageRepo.ListByContact(ctx, stored.ID)
		require.NoError(t, err)
		require.Len(t, conversation, 1)
		assert.Equal(t, "hello", conversation[0].Content)
	})

	t.Run("failed message insert rolls the contact back", func(t *testing.T) {
		cleanup(t)

		// The direction check constraint rejects this row, failing the
		// second insert of the transaction.
		_, _, err := messageRepo.InsertWithContact(ctx, newContact(), &models.Message{
			ID:          uuid.NewString(),
			Direction:   "delivered",
			MessageType: models.MessageTypeSMS,
			Content:     "hello",
			PhoneFrom:   "+13105550199",
			PhoneTo:     "+12125550100",
			Status:      models.StatusSent,
		})
		require.Error(t, err)

		_, err = contactRepo.GetByPhoneNumber(ctx, "+13105550199")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	})
}
