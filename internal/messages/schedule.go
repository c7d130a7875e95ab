package messages

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/wealthvault/backend/internal/models"
)

// ErrInvalidMessage is returned when a message cannot be scheduled.
var ErrInvalidMessage = errors.New("messages: invalid message")

// ScheduleInput is a message a user wants delivered later.
type ScheduleInput struct {
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	SendDate       string `json:"send_date"`
}

// ParseSendDate accepts YYYY-MM-DD or RFC 3339.
func ParseSendDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, errDate := time.Parse(models.SnapshotDateLayout, value); errDate == nil {
		return t.UTC(), nil
	}
	t, errParse := time.Parse(time.RFC3339, value)
	if errParse != nil {
		return time.Time{}, fmt.Errorf("%w: send_date must be YYYY-MM-DD or RFC 3339", ErrInvalidMessage)
	}
	return t.UTC(), nil
}

// Schedule validates and stores a new message for userID.
func (d *Dispatcher) Schedule(ctx context.Context, userID uint64, in ScheduleInput) (models.ScheduledMessage, error) {
	if d == nil || d.repo == nil {
		return models.ScheduledMessage{}, fmt.Errorf("messages: dispatcher not initialized")
	}
	email := strings.TrimSpace(in.RecipientEmail)
	if _, errParse := mail.ParseAddress(email); errParse != nil {
		return models.ScheduledMessage{}, fmt.Errorf("%w: invalid recipient email", ErrInvalidMessage)
	}
	subject := strings.TrimSpace(in.Subject)
	if subject == "" || len(subject) > 255 {
		return models.ScheduledMessage{}, fmt.Errorf("%w: subject must be 1-255 characters", ErrInvalidMessage)
	}
	if strings.TrimSpace(in.Body) == "" {
		return models.ScheduledMessage{}, fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	sendDate, errDate := ParseSendDate(in.SendDate)
	if errDate != nil {
		return models.ScheduledMessage{}, errDate
	}
	now := d.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if sendDate.Before(today) {
		return models.ScheduledMessage{}, fmt.Errorf("%w: send_date is in the past", ErrInvalidMessage)
	}

	msg := models.ScheduledMessage{
		UserID:         userID,
		RecipientName:  strings.TrimSpace(in.RecipientName),
		RecipientEmail: email,
		Subject:        subject,
		Body:           in.Body,
		SendDate:       sendDate,
		Status:         models.MessageStatusScheduled,
	}
	if errCreate := d.repo.CreateMessage(ctx, &msg); errCreate != nil {
		return models.ScheduledMessage{}, errCreate
	}
	return msg, nil
}
