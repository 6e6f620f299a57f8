package models

import "time"

// Contact is an inbox contact keyed by phone number
type Contact struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	PhoneNumber string    `db:"phone_number"`
	AvatarColor string    `db:"avatar_color"`
	Notes       *string   `db:"notes"`
	Archived    bool      `db:"archived"`
	Spam        bool      `db:"spam"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// ContactWithUnread pairs a contact with its unread inbound message count
// for inbox listings.
type ContactWithUnread struct {
	Contact
	UnreadCount int `db:"unread_count"`
}
