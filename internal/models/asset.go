package models

import "time"

// AssetType discriminates which optional asset fields are meaningful.
type AssetType string

// AssetType constants define the supported asset kinds.
const (
	AssetTypeBank          AssetType = "bank"
	AssetTypeCrypto        AssetType = "crypto"
	AssetTypeStock         AssetType = "stock"
	AssetTypeProperty      AssetType = "property"
	AssetTypeLoan          AssetType = "loan"
	AssetTypeCreditCard    AssetType = "credit_card"
	AssetTypePreciousMetal AssetType = "precious_metal"
	AssetTypeLocker        AssetType = "locker"
	AssetTypePortfolio     AssetType = "portfolio"
)

// IsLiability reports whether the type counts against net worth.
func (t AssetType) IsLiability() bool {
	return t == AssetTypeLoan || t == AssetTypeCreditCard
}

// Valid reports whether the type is one of the known asset kinds.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeBank, AssetTypeCrypto, AssetTypeStock, AssetTypeProperty, AssetTypeLoan,
		AssetTypeCreditCard, AssetTypePreciousMetal, AssetTypeLocker, AssetTypePortfolio:
		return true
	default:
		return false
	}
}

// Asset is a tagged-union record of a single holding or liability.
type Asset struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	Type     AssetType `gorm:"type:varchar(32);not null;index"` // Asset kind.
	Name     string    `gorm:"type:varchar(255);not null"`      // Display name.
	Currency string    `gorm:"type:varchar(3);not null"`        // ISO currency code of all amounts.
	Symbol   string    `gorm:"type:varchar(32)"`                // Ticker or coin symbol.

	Quantity     *float64 `gorm:"type:decimal(30,10)"` // Units held.
	UnitPrice    *float64 `gorm:"type:decimal(30,10)"` // Purchase price per unit or per weight unit.
	TotalValue   *float64 `gorm:"type:decimal(30,10)"` // Purchase total, or holdings total for portfolios.
	Area         *float64 `gorm:"type:decimal(30,10)"` // Property area.
	PricePerArea *float64 `gorm:"type:decimal(30,10)"` // Purchase price per area unit.
	Weight       *float64 `gorm:"type:decimal(30,10)"` // Precious metal weight.

	CurrentUnitPrice    *float64 `gorm:"type:decimal(30,10)"` // Current price per unit or per weight unit.
	CurrentTotalValue   *float64 `gorm:"type:decimal(30,10)"` // Current total as reported by the user.
	CurrentPrice        *float64 `gorm:"type:decimal(30,10)"` // Current total as reported by a price feed.
	CurrentPricePerArea *float64 `gorm:"type:decimal(30,10)"` // Current price per area unit.

	PrincipalAmount    *float64 `gorm:"type:decimal(30,10)"` // Liability principal.
	InterestRate       *float64 `gorm:"type:decimal(10,4)"`  // Annual interest rate in percent.
	TenureMonths       *int     `gorm:"type:integer"`        // Liability tenure.
	OutstandingBalance *float64 `gorm:"type:decimal(30,10)"` // Remaining liability balance.

	Holdings []PortfolioHolding `gorm:"foreignKey:AssetID;constraint:OnDelete:CASCADE"` // Holdings of a portfolio container.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// PortfolioHolding is a single position inside a portfolio container asset.
type PortfolioHolding struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AssetID  uint64 `gorm:"not null;index:idx_holdings_asset_position,priority:1"` // Container asset ID.
	Position int    `gorm:"not null;index:idx_holdings_asset_position,priority:2"` // Ordering within the container.

	Symbol        string  `gorm:"type:varchar(32);not null"`              // Ticker or coin symbol.
	Quantity      float64 `gorm:"type:decimal(30,10);not null;default:0"` // Units held.
	PurchasePrice float64 `gorm:"type:decimal(30,10);not null;default:0"` // Average purchase price per unit.
	CurrentPrice  float64 `gorm:"type:decimal(30,10);not null;default:0"` // Latest price per unit.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// MarketValue returns quantity times current price.
func (h PortfolioHolding) MarketValue() float64 {
	return h.Quantity * h.CurrentPrice
}
