// internal/model/scheduled_message.go
package model

import "time"

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// ScheduledMessage is a one-off outbound message with a fixed fire time.
// sent_at is set only when status is "sent"; error_message only when "failed".
type ScheduledMessage struct {
	ID               string        `db:"id" json:"id"`
	RecipientName    string        `db:"recipient_name" json:"recipient_name"`
	RecipientPhone   string        `db:"recipient_phone" json:"recipient_phone"`
	Body             string        `db:"body" json:"body"`
	ChannelID        string        `db:"channel_id" json:"channel_id"`
	OwnerID          string        `db:"owner_id" json:"owner_id"`
	ScheduledAt      time.Time     `db:"scheduled_at" json:"scheduled_at"`
	Status           MessageStatus `db:"status" json:"status"`
	RequiresApproval bool          `db:"requires_approval" json:"requires_approval"`
	SentAt           *time.Time    `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage     string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}
