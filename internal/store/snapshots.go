package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wealthvault/backend/internal/models"
	"gorm.io/gorm/clause"
)

// UpsertSnapshot stores the snapshot keyed by (user, date), overwriting an existing row for that date.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *models.NetWorthSnapshot) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return fmt.Errorf("store: upsert snapshot: nil snapshot")
	}
	now := time.Now().UTC()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now

	if errUpsert := conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"currency",
			"total_assets",
			"total_liabilities",
			"net_worth",
			"asset_breakdown",
			"liability_breakdown",
			"updated_at",
		}),
	}).Create(snap).Error; errUpsert != nil {
		return fmt.Errorf("store: upsert snapshot: %w", errUpsert)
	}
	return nil
}

// ListSnapshots returns a user's snapshots between from and to (inclusive, YYYY-MM-DD; empty means open).
func (s *Store) ListSnapshots(ctx context.Context, userID uint64, from, to string) ([]models.NetWorthSnapshot, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	q := conn.Where("user_id = ?", userID)
	if from != "" {
		q = q.Where("snapshot_date >= ?", from)
	}
	if to != "" {
		q = q.Where("snapshot_date <= ?", to)
	}
	var rows []models.NetWorthSnapshot
	if errFind := q.Order("snapshot_date ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", errFind)
	}
	return rows, nil
}
