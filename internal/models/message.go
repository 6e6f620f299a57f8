package models

import "time"

// Message direction
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionNote     = "note" // internal notes never leave the inbox
)

// Message types
const (
	MessageTypeSMS       = "sms"
	MessageTypeVoicemail = "voicemail"
	MessageTypeNote      = "note"
)

// Message delivery status
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusRead      = "read"
)

// Message is one SMS, voicemail, or internal note attached to a contact
type Message struct {
	ID          string     `db:"id"`
	ContactID   string     `db:"contact_id"`
	Direction   string     `db:"direction"`
	MessageType string     `db:"message_type"`
	Content     string     `db:"content"`
	PhoneFrom   string     `db:"phone_from"`
	PhoneTo     string     `db:"phone_to"`
	SentBy      *string    `db:"sent_by"` // username, outbound only
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ReadAt      *time.Time `db:"read_at"`
}
