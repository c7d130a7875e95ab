package models

import "time"

// DeadManSwitch tracks a user's inactivity thresholds and reminder progress.
type DeadManSwitch struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`    // Owning user.

	InactivityDays int `gorm:"not null;default:90"`                       // Days of inactivity before triggering.
	Reminder1Days  int `gorm:"column:reminder_1_days;not null;default:7"` // First reminder, days before trigger.
	Reminder2Days  int `gorm:"column:reminder_2_days;not null;default:3"` // Second reminder, days before trigger.
	Reminder3Days  int `gorm:"column:reminder_3_days;not null;default:1"` // Third reminder, days before trigger.

	IsActive       bool       `gorm:"not null;index"`     // Whether the switch is still counting.
	LastReset      time.Time  `gorm:"not null"`           // Last explicit reset.
	RemindersSent  int        `gorm:"not null;default:0"` // Reminders sent since last reset.
	LastReminderAt *time.Time // Last reminder timestamp.
	TriggeredAt    *time.Time // Trigger timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Nominee is the person alerted when a user's switch triggers.
type Nominee struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Owning user ID.

	Name         string `gorm:"type:varchar(255);not null"` // Nominee name.
	Email        string `gorm:"type:varchar(255);not null"` // Nominee email.
	Relationship string `gorm:"type:varchar(64)"`           // Relationship to the user.
	IsActive     bool   `gorm:"not null"`                   // Whether alerts should be sent.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
