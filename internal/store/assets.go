package store

import (
	"context"
	"fmt"

	"github.com/wealthvault/backend/internal/models"
)

// ListAssets returns every asset a user owns.
func (s *Store) ListAssets(ctx context.Context, userID uint64) ([]models.Asset, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []models.Asset
	if errFind := conn.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("store: list assets: %w", errFind)
	}
	return rows, nil
}

// GetAsset loads one of the user's assets.
func (s *Store) GetAsset(ctx context.Context, userID, assetID uint64) (models.Asset, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return models.Asset{}, err
	}
	var row models.Asset
	if errFind := conn.Where("id = ? AND user_id = ?", assetID, userID).First(&row).Error; errFind != nil {
		return models.Asset{}, notFound(errFind)
	}
	return row, nil
}

// CreateAsset inserts an asset.
func (s *Store) CreateAsset(ctx context.Context, asset *models.Asset) error {
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if asset == nil {
		return fmt.Errorf("store: create asset: nil asset")
	}
	if !asset.Type.Valid() {
		return fmt.Errorf("store: create asset: unknown type %q", asset.Type)
	}
	if errCreate := conn.Create(asset).Error; errCreate != nil {
		return fmt.Errorf("store: create asset: %w", errCreate)
	}
	return nil
}
