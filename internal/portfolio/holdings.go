// Package portfolio manages holdings of portfolio container assets.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wealthvault/backend/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrContainerNotFound is returned when the asset is missing, owned by someone else or not a portfolio.
	ErrContainerNotFound = errors.New("portfolio: container not found")
	// ErrHoldingNotFound is returned when the holding does not belong to the container.
	ErrHoldingNotFound = errors.New("portfolio: holding not found")
	// ErrInvalidHolding is returned for holdings with an empty symbol or negative amounts.
	ErrInvalidHolding = errors.New("portfolio: invalid holding")
)

// HoldingInput carries the mutable fields of a holding.
type HoldingInput struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	CurrentPrice  float64 `json:"current_price"`
}

func (in HoldingInput) validate() error {
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidHolding)
	}
	if in.Quantity < 0 || in.PurchasePrice < 0 || in.CurrentPrice < 0 {
		return fmt.Errorf("%w: negative amount", ErrInvalidHolding)
	}
	return nil
}

// Service mutates holdings and keeps the container total in sync in the same transaction.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	if db == nil {
		return nil
	}
	return &Service{db: db}
}

// List returns the container's holdings ordered by position.
func (s *Service) List(ctx context.Context, userID, assetID uint64) ([]models.PortfolioHolding, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("portfolio: service not initialized")
	}
	tx := s.db.WithContext(ctx)
	if _, errLoad := loadContainer(tx, userID, assetID); errLoad != nil {
		return nil, errLoad
	}
	var rows []models.PortfolioHolding
	if errFind := tx.Where("asset_id = ?", assetID).Order("position ASC, id ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("portfolio: list holdings: %w", errFind)
	}
	return rows, nil
}

// Add appends a holding to the container.
func (s *Service) Add(ctx context.Context, userID, assetID uint64, in HoldingInput) (models.PortfolioHolding, error) {
	if s == nil || s.db == nil {
		return models.PortfolioHolding{}, fmt.Errorf("portfolio: service not initialized")
	}
	if errValidate := in.validate(); errValidate != nil {
		return models.PortfolioHolding{}, errValidate
	}
	var out models.PortfolioHolding
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLoad := loadContainer(tx, userID, assetID); errLoad != nil {
			return errLoad
		}
		var maxPosition int
		if errMax := tx.Model(&models.PortfolioHolding{}).
			Where("asset_id = ?", assetID).
			Select("COALESCE(MAX(position), -1)").
			Scan(&maxPosition).Error; errMax != nil {
			return fmt.Errorf("portfolio: next position: %w", errMax)
		}
		out = models.PortfolioHolding{
			AssetID:       assetID,
			Position:      maxPosition + 1,
			Symbol:        strings.ToUpper(strings.TrimSpace(in.Symbol)),
			Quantity:      in.Quantity,
			PurchasePrice: in.PurchasePrice,
			CurrentPrice:  in.CurrentPrice,
		}
		if errCreate := tx.Create(&out).Error; errCreate != nil {
			return fmt.Errorf("portfolio: create holding: %w", errCreate)
		}
		return recomputeTotal(tx, assetID)
	})
	if errTx != nil {
		return models.PortfolioHolding{}, errTx
	}
	return out, nil
}

// Update replaces the mutable fields of a holding.
func (s *Service) Update(ctx context.Context, userID, assetID, holdingID uint64, in HoldingInput) (models.PortfolioHolding, error) {
	if s == nil || s.db == nil {
		return models.PortfolioHolding{}, fmt.Errorf("portfolio: service not initialized")
	}
	if errValidate := in.validate(); errValidate != nil {
		return models.PortfolioHolding{}, errValidate
	}
	var out models.PortfolioHolding
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLoad := loadContainer(tx, userID, assetID); errLoad != nil {
			return errLoad
		}
		if errFind := tx.Where("id = ? AND asset_id = ?", holdingID, assetID).First(&out).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrHoldingNotFound
			}
			return fmt.Errorf("portfolio: load holding: %w", errFind)
		}
		out.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
		out.Quantity = in.Quantity
		out.PurchasePrice = in.PurchasePrice
		out.CurrentPrice = in.CurrentPrice
		if errUpdate := tx.Model(&models.PortfolioHolding{}).Where("id = ?", holdingID).Updates(map[string]any{
			"symbol":         out.Symbol,
			"quantity":       out.Quantity,
			"purchase_price": out.PurchasePrice,
			"current_price":  out.CurrentPrice,
			"updated_at":     time.Now().UTC(),
		}).Error; errUpdate != nil {
			return fmt.Errorf("portfolio: update holding: %w", errUpdate)
		}
		return recomputeTotal(tx, assetID)
	})
	if errTx != nil {
		return models.PortfolioHolding{}, errTx
	}
	return out, nil
}

// Delete removes a holding from the container.
func (s *Service) Delete(ctx context.Context, userID, assetID, holdingID uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("portfolio: service not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLoad := loadContainer(tx, userID, assetID); errLoad != nil {
			return errLoad
		}
		res := tx.Where("id = ? AND asset_id = ?", holdingID, assetID).Delete(&models.PortfolioHolding{})
		if res.Error != nil {
			return fmt.Errorf("portfolio: delete holding: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrHoldingNotFound
		}
		return recomputeTotal(tx, assetID)
	})
}

func loadContainer(tx *gorm.DB, userID, assetID uint64) (models.Asset, error) {
	var asset models.Asset
	errFind := tx.Where("id = ? AND user_id = ? AND type = ?", assetID, userID, models.AssetTypePortfolio).First(&asset).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return models.Asset{}, ErrContainerNotFound
		}
		return models.Asset{}, fmt.Errorf("portfolio: load container: %w", errFind)
	}
	return asset, nil
}

// recomputeTotal sets the container total to the sum of quantity times current price.
func recomputeTotal(tx *gorm.DB, assetID uint64) error {
	var rows []models.PortfolioHolding
	if errFind := tx.Select("quantity", "current_price").Where("asset_id = ?", assetID).Find(&rows).Error; errFind != nil {
		return fmt.Errorf("portfolio: load holdings: %w", errFind)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(decimal.NewFromFloat(row.Quantity).Mul(decimal.NewFromFloat(row.CurrentPrice)))
	}
	value := total.InexactFloat64()
	if errUpdate := tx.Model(&models.Asset{}).Where("id = ?", assetID).Updates(map[string]any{
		"total_value": value,
		"updated_at":  time.Now().UTC(),
	}).Error; errUpdate != nil {
		return fmt.Errorf("portfolio: update container total: %w", errUpdate)
	}
	return nil
}
