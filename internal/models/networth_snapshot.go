package models

import (
	"time"

	"gorm.io/datatypes"
)

// SnapshotDateLayout is the layout of NetWorthSnapshot.SnapshotDate.
const SnapshotDateLayout = "2006-01-02"

// NetWorthSnapshot stores a user's aggregated net worth for a single date.
type NetWorthSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID       uint64 `gorm:"not null;uniqueIndex:idx_snapshots_user_date,priority:1"`                  // Owning user ID.
	SnapshotDate string `gorm:"type:varchar(10);not null;uniqueIndex:idx_snapshots_user_date,priority:2"` // Calendar date (YYYY-MM-DD).

	Currency         string  `gorm:"type:varchar(3);not null"`               // Currency of all amounts.
	TotalAssets      float64 `gorm:"type:decimal(30,10);not null;default:0"` // Sum of asset values.
	TotalLiabilities float64 `gorm:"type:decimal(30,10);not null;default:0"` // Sum of liability values.
	NetWorth         float64 `gorm:"type:decimal(30,10);not null;default:0"` // Assets minus liabilities.

	AssetBreakdown     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Asset value per type.
	LiabilityBreakdown datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Liability value per type.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
