package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wealthvault/backend/internal/models"
)

// CreateMessage inserts a new scheduled message.
func (s *Store) CreateMessage(ctx context.Context, msg *models.ScheduledMessage) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if msg == nil {
		return fmt.Errorf("store: create message: nil message")
	}
	if errCreate := conn.Create(msg).Error; errCreate != nil {
		return fmt.Errorf("store: create message: %w", errCreate)
	}
	return nil
}

// ListDueMessages returns scheduled messages whose send date is before the given instant.
func (s *Store) ListDueMessages(ctx context.Context, before time.Time, afterID uint64, limit int) ([]models.ScheduledMessage, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.ScheduledMessage
	if errFind := conn.
		Where("status = ? AND send_date < ? AND id > ?", models.MessageStatusScheduled, before.UTC(), afterID).
		Order("id ASC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list due messages: %w", errFind)
	}
	return rows, nil
}

// ListRetryableFailed returns failed messages that still have retry budget left.
func (s *Store) ListRetryableFailed(ctx context.Context, afterID uint64, limit int) ([]models.ScheduledMessage, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.ScheduledMessage
	if errFind := conn.
		Where("status = ? AND retry_count < ? AND id > ?", models.MessageStatusFailed, models.MaxMessageRetries, afterID).
		Order("id ASC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list failed messages: %w", errFind)
	}
	return rows, nil
}

// UpdateMessage applies set-style updates to a message if it is still in the expected status.
// It reports false when the message moved on in the meantime.
func (s *Store) UpdateMessage(ctx context.Context, id uint64, expected models.MessageStatus, updates map[string]any) (bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	updates["updated_at"] = time.Now().UTC()
	res := conn.Model(&models.ScheduledMessage{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("store: update message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetMessage loads a message by ID.
func (s *Store) GetMessage(ctx context.Context, id uint64) (models.ScheduledMessage, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return models.ScheduledMessage{}, err
	}
	var row models.ScheduledMessage
	if errFind := conn.First(&row, id).Error; errFind != nil {
		return models.ScheduledMessage{}, notFound(errFind)
	}
	return row, nil
}

// ListMessagesForUser returns a user's messages, newest send date first.
func (s *Store) ListMessagesForUser(ctx context.Context, userID uint64) ([]models.ScheduledMessage, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.ScheduledMessage
	if errFind := conn.Where("user_id = ?", userID).Order("send_date DESC, id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list user messages: %w", errFind)
	}
	return rows, nil
}
