package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wealthvault/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUserByExternalID creates the user on first identity exchange or refreshes its profile.
func (s *Store) UpsertUserByExternalID(ctx context.Context, externalID, email, name string) (models.User, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return models.User{}, err
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return models.User{}, fmt.Errorf("store: upsert user: empty external id")
	}

	now := time.Now().UTC()
	row := models.User{
		ExternalID:   externalID,
		Email:        strings.TrimSpace(email),
		Name:         strings.TrimSpace(name),
		Plan:         "free",
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return models.User{}, fmt.Errorf("store: upsert user: %w", errUpsert)
	}

	var out models.User
	if errFind := conn.Where("external_id = ?", externalID).First(&out).Error; errFind != nil {
		return models.User{}, fmt.Errorf("store: reload user: %w", notFound(errFind))
	}
	return out, nil
}

// SetUserPlan changes the subscription plan of a user.
func (s *Store) SetUserPlan(ctx context.Context, id uint64, plan string) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return fmt.Errorf("store: set plan: empty plan")
	}
	res := conn.Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"plan":       plan,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("store: set plan: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, id uint64) (models.User, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return models.User{}, err
	}
	var user models.User
	if errFind := conn.First(&user, id).Error; errFind != nil {
		return models.User{}, notFound(errFind)
	}
	return user, nil
}

// UsersByID loads the given users keyed by ID. Missing IDs are absent from the map.
func (s *Store) UsersByID(ctx context.Context, ids []uint64) (map[uint64]models.User, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.User
	if errFind := conn.Where("id IN ?", ids).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: load users: %w", errFind)
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// TouchActivity moves the user's last activity forward to at.
func (s *Store) TouchActivity(ctx context.Context, userID uint64, at time.Time) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	at = at.UTC()
	if errUpdate := conn.Model(&models.User{}).
		Where("id = ? AND last_activity < ?", userID, at).
		Update("last_activity", at).Error; errUpdate != nil {
		return fmt.Errorf("store: touch activity: %w", errUpdate)
	}
	return nil
}

// DeleteUser removes a user and every record the user owns.
func (s *Store) DeleteUser(ctx context.Context, userID uint64) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return conn.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if errFind := tx.Select("id").First(&user, userID).Error; errFind != nil {
			return notFound(errFind)
		}

		assetIDs := tx.Model(&models.Asset{}).Select("id").Where("user_id = ?", userID)
		if errDelete := tx.Where("asset_id IN (?)", assetIDs).Delete(&models.PortfolioHolding{}).Error; errDelete != nil {
			return fmt.Errorf("store: delete holdings: %w", errDelete)
		}
		owned := []any{
			&models.Asset{},
			&models.Nominee{},
			&models.DeadManSwitch{},
			&models.ScheduledMessage{},
			&models.NetWorthSnapshot{},
		}
		for _, model := range owned {
			if errDelete := tx.Where("user_id = ?", userID).Delete(model).Error; errDelete != nil {
				return fmt.Errorf("store: delete %T: %w", model, errDelete)
			}
		}
		if errDelete := tx.Delete(&models.User{}, userID).Error; errDelete != nil {
			return fmt.Errorf("store: delete user: %w", errDelete)
		}
		return nil
	})
}
