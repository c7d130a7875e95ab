package models

import "time"

// User represents an account owner stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ExternalID string `gorm:"type:varchar(255);not null;uniqueIndex"`   // Subject issued by the identity provider.
	Email      string `gorm:"type:varchar(255);not null;index"`         // Email address.
	Name       string `gorm:"type:text"`                                // Display name.
	Plan       string `gorm:"type:varchar(64);not null;default:'free'"` // Subscription plan code.

	LastActivity time.Time `gorm:"not null;index"` // Last authenticated request.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DisplayName returns the name used in outgoing messages.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}
