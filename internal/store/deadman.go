package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wealthvault/backend/internal/models"
	"gorm.io/gorm/clause"
)

// ListActiveSwitches returns up to limit active switches with ID greater than afterID, ordered by ID.
func (s *Store) ListActiveSwitches(ctx context.Context, afterID uint64, limit int) ([]models.DeadManSwitch, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.DeadManSwitch
	if errFind := conn.
		Where("is_active = ? AND id > ?", true, afterID).
		Order("id ASC").
		Limit(normalizeLimit(limit)).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list active switches: %w", errFind)
	}
	return rows, nil
}

// GetSwitch loads the switch owned by userID.
func (s *Store) GetSwitch(ctx context.Context, userID uint64) (models.DeadManSwitch, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return models.DeadManSwitch{}, err
	}
	var row models.DeadManSwitch
	if errFind := conn.Where("user_id = ?", userID).First(&row).Error; errFind != nil {
		return models.DeadManSwitch{}, notFound(errFind)
	}
	return row, nil
}

// UpdateSwitch applies set-style updates to the switch with the given ID while it is still active.
// It reports false when the switch is missing or no longer active.
func (s *Store) UpdateSwitch(ctx context.Context, id uint64, updates map[string]any) (bool, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return false, err
	}
	updates["updated_at"] = time.Now().UTC()
	res := conn.Model(&models.DeadManSwitch{}).
		Where("id = ? AND is_active = ?", id, true).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("store: update switch: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SaveSwitch writes every column of a loaded switch, or creates or replaces the switch owned by
// sw.UserID when sw has no ID yet.
func (s *Store) SaveSwitch(ctx context.Context, sw *models.DeadManSwitch) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if sw == nil {
		return fmt.Errorf("store: save switch: nil switch")
	}
	now := time.Now().UTC()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now
	if sw.ID != 0 {
		if errSave := conn.Save(sw).Error; errSave != nil {
			return fmt.Errorf("store: save switch: %w", errSave)
		}
		return nil
	}
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"inactivity_days",
			"reminder_1_days",
			"reminder_2_days",
			"reminder_3_days",
			"is_active",
			"last_reset",
			"reminders_sent",
			"last_reminder_at",
			"triggered_at",
			"updated_at",
		}),
	}).Create(sw).Error; errUpsert != nil {
		return fmt.Errorf("store: save switch: %w", errUpsert)
	}
	return nil
}

// GetActiveNominee returns the user's nominee when one exists and is active, nil otherwise.
func (s *Store) GetActiveNominee(ctx context.Context, userID uint64) (*models.Nominee, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.Nominee
	if errFind := conn.Where("user_id = ? AND is_active = ?", userID, true).Limit(1).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: find nominee: %w", errFind)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// SaveNominee creates or replaces the nominee owned by n.UserID.
func (s *Store) SaveNominee(ctx context.Context, n *models.Nominee) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("store: save nominee: nil nominee")
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "relationship", "is_active", "updated_at"}),
	}).Create(n).Error; errUpsert != nil {
		return fmt.Errorf("store: save nominee: %w", errUpsert)
	}
	return nil
}
