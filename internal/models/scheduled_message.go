package models

import "time"

// MessageStatus represents the delivery state of a scheduled message.
type MessageStatus string

// MessageStatus constants define message lifecycle states.
const (
	// MessageStatusScheduled marks a message awaiting delivery.
	MessageStatusScheduled MessageStatus = "scheduled"
	// MessageStatusSent marks a delivered message.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed marks a message whose retry budget is exhausted.
	MessageStatusFailed MessageStatus = "failed"
)

// MaxMessageRetries bounds delivery attempts per message.
const MaxMessageRetries = 3

// ScheduledMessage is a message delivered to a recipient on or after its send date.
type ScheduledMessage struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	RecipientName  string `gorm:"type:varchar(255)"`          // Recipient display name.
	RecipientEmail string `gorm:"type:varchar(255);not null"` // Recipient address.
	Subject        string `gorm:"type:varchar(255);not null"` // Message subject.
	Body           string `gorm:"type:text;not null"`         // Message body.

	SendDate   time.Time     `gorm:"not null;index:idx_messages_status_send_date,priority:2"`                                      // Earliest delivery date.
	Status     MessageStatus `gorm:"type:varchar(16);not null;default:'scheduled';index:idx_messages_status_send_date,priority:1"` // Delivery state.
	RetryCount int           `gorm:"not null;default:0"`                                                                           // Failed delivery attempts.
	LastError  string        `gorm:"type:text"`                                                                                    // Last delivery error.
	SentAt     *time.Time    // Delivery timestamp.
	FailedAt   *time.Time    // Terminal failure timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
