package repositories

import (
	"context"

	"github.com/brasshelm/birdtext/internal/database"
	"github.com/brasshelm/birdtext/internal/models"
	"github.com/jackc/pgx/v5"
)

// MessageRepository handles database operations for messages
type MessageRepository struct {
	db *database.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, contact_id, direction, message_type, content, phone_from, phone_to, sent_by, status, created_at, read_at`

const messageInsertQuery = `
	INSERT INTO messages (id, contact_id, direction, message_type, content, phone_from, phone_to, sent_by, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING ` + messageColumns

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.ContactID,
		&m.Direction,
		&m.MessageType,
		&m.Content,
		&m.PhoneFrom,
		&m.PhoneTo,
		&m.SentBy,
		&m.Status,
		&m.CreatedAt,
		&m.ReadAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID,
			&m.ContactID,
			&m.Direction,
			&m.MessageType,
			&m.Content,
			&m.PhoneFrom,
			&m.PhoneTo,
			&m.SentBy,
			&m.Status,
			&m.CreatedAt,
			&m.ReadAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ListRecent returns the newest messages across all contacts
func (r *MessageRepository) ListRecent(ctx context.Context, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// ListByContact returns a contact's conversation, oldest first
func (r *MessageRepository) ListByContact(ctx context.Context, contactID string) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE contact_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.Pool.Query(ctx, query, contactID)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// Insert stores a message
func (r *MessageRepository) Insert(ctx context.Context, msg *models.Message) (*models.Message, error) {
	return insertMessage(ctx, r.db.Pool, msg)
}

func insertMessage(ctx context.Context, q rowQuerier, msg *models.Message) (*models.Message, error) {
	created, err := scanMessage(q.QueryRow(ctx, messageInsertQuery,
		msg.ID, msg.ContactID, msg.Direction, msg.MessageType, msg.Content,
		msg.PhoneFrom, msg.PhoneTo, msg.SentBy, msg.Status))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return created, nil
}

// InsertWithContact stores a message together with a newly created contact in
// one transaction. A failed message insert rolls the contact back, so an
// unknown webhook sender never leaves an orphan contact behind.
func (r *MessageRepository) InsertWithContact(ctx context.Context, contact *models.Contact, msg *models.Message) (*models.Contact, *models.Message, error) {
	var createdContact *models.Contact
	var createdMsg *models.Message

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		c, err := insertContact(ctx, tx, contact)
		if err != nil {
			return err
		}
		msg.ContactID = c.ID

		m, err := insertMessage(ctx, tx, msg)
		if err != nil {
			return err
		}

		createdContact = c
		createdMsg = m
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return createdContact, createdMsg, nil
}

// MarkRead marks all of a contact's inbound messages as read
func (r *MessageRepository) MarkRead(ctx context.Context, contactID string) (int64, error) {
	query := `
		UPDATE messages
		SET read_at = NOW(), status = $2
		WHERE contact_id = $1 AND direction = $3 AND read_at IS NULL
	`
	tag, err := r.db.Pool.Exec(ctx, query, contactID, models.StatusRead, models.DirectionInbound)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasRecentDuplicate reports whether the same sender delivered the same
// content within the last minute. Providers redeliver webhooks on slow
// responses; this keeps redeliveries out of the timeline.
func (r *MessageRepository) HasRecentDuplicate(ctx context.Context, phoneFrom, content string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE phone_from = $1 AND content = $2 AND created_at > NOW() - INTERVAL '1 minute'
		)
	`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, phoneFrom, content).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkMessageRead marks a single message as read and returns it
func (r *MessageRepository) MarkMessageRead(ctx context.Context, id string) (*models.Message, error) {
	query := `
		UPDATE messages
		SET read_at = NOW(), status = $2
		WHERE id = $1
		RETURNING ` + messageColumns

	return scanMessage(r.db.Pool.QueryRow(ctx, query, id, models.StatusRead))
}

// UnreadCount returns the number of unread inbound messages across all contacts
func (r *MessageRepository) UnreadCount(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM messages WHERE direction = $1 AND read_at IS NULL`

	var count int
	if err := r.db.Pool.QueryRow(ctx, query, models.DirectionInbound).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateStatus sets a message's delivery status
func (r *MessageRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE messages SET status = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
