package repositories

import (
	"context"

	"github.com/brasshelm/birdtext/internal/database"
	"github.com/brasshelm/birdtext/internal/models"
	"github.com/jackc/pgx/v5"
)

// ContactRepository handles database operations for contacts
type ContactRepository struct {
	db *database.DB
}

// NewContactRepository creates a new ContactRepository
func NewContactRepository(db *database.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// rowQuerier is satisfied by both the pool and an open transaction
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const contactColumns = `id, name, phone_number, avatar_color, notes, archived, spam, created_at, updated_at`

const contactInsertQuery = `
	INSERT INTO contacts (id, name, phone_number, avatar_color, notes)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + contactColumns

func scanContact(row pgx.Row) (*models.Contact, error) {
	var c models.Contact
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.PhoneNumber,
		&c.AvatarColor,
		&c.Notes,
		&c.Archived,
		&c.Spam,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns all contacts with their unread inbound message counts,
// ordered by name. Archived and spam contacts are included; the client
// filters them into separate views.
func (r *ContactRepository) List(ctx context.Context) ([]*models.ContactWithUnread, error) {
	query := `
		SELECT c.id, c.name, c.phone_number, c.avatar_color, c.notes, c.archived, c.spam,
			c.created_at, c.updated_at,
			COUNT(m.id) FILTER (WHERE m.direction = 'inbound' AND m.read_at IS NULL) AS unread_count
		FROM contacts c
		LEFT JOIN messages m ON m.contact_id = c.id
		GROUP BY c.id
		ORDER BY c.name ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []*models.ContactWithUnread
	for rows.Next() {
		var c models.ContactWithUnread
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.PhoneNumber,
			&c.AvatarColor,
			&c.Notes,
			&c.Archived,
			&c.Spam,
			&c.CreatedAt,
			&c.UpdatedAt,
			&c.UnreadCount,
		); err != nil {
			return nil, err
		}
		contacts = append(contacts, &c)
	}

	return contacts, rows.Err()
}

// GetByID returns a contact by primary key
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContact(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByPhoneNumber returns the contact holding a phone number, if any
func (r *ContactRepository) GetByPhoneNumber(ctx context.Context, phone string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE phone_number = $1`
	return scanContact(r.db.Pool.QueryRow(ctx, query, phone))
}

// Create inserts a contact
func (r *ContactRepository) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	return insertContact(ctx, r.db.Pool, contact)
}

func insertContact(ctx context.Context, q rowQuerier, contact *models.Contact) (*models.Contact, error) {
	created, err := scanContact(q.QueryRow(ctx, contactInsertQuery,
		contact.ID, contact.Name, contact.PhoneNumber, contact.AvatarColor, contact.Notes))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return created, nil
}

// Update modifies a contact's editable fields
func (r *ContactRepository) Update(ctx context.Context, id string, contact *models.Contact) (*models.Contact, error) {
	query := `
		UPDATE contacts
		SET name = $2, phone_number = $3, notes = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + contactColumns

	updated, err := scanContact(r.db.Pool.QueryRow(ctx, query,
		id, contact.Name, contact.PhoneNumber, contact.Notes))
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return updated, nil
}

// SetArchived toggles the archived flag
func (r *ContactRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	query := `UPDATE contacts SET archived = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, archived)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetSpam toggles the spam flag
func (r *ContactRepository) SetSpam(ctx context.Context, id string, spam bool) error {
	query := `UPDATE contacts SET spam = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, spam)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes a contact and cascades to its messages
func (r *ContactRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM contacts WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
