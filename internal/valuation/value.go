// Package valuation derives current asset values and converts amounts between currencies.
package valuation

import (
	"math"

	"github.com/wealthvault/backend/internal/models"
)

// Path identifies which rule produced an asset's current value.
type Path string

// Path constants, in priority order. Portfolios only ever use PathPortfolioTotal.
const (
	PathPortfolioTotal     Path = "portfolio_total"
	PathCurrentTotal       Path = "current_total"
	PathComputedCurrent    Path = "computed_current"
	PathPurchaseTotal      Path = "purchase_total"
	PathComputedPurchase   Path = "computed_purchase"
	PathLiabilityBalance   Path = "liability_balance"
	PathLiabilityPrincipal Path = "liability_principal"
	PathNone               Path = "none"
)

// Valuation is the current value of an asset in the asset's own currency.
type Valuation struct {
	Amount float64
	Path   Path
}

// CurrentValue returns the asset's current value in its own currency.
func CurrentValue(asset models.Asset) float64 {
	return Valuate(asset).Amount
}

// Valuate applies the valuation rules in order; the first rule with populated inputs wins.
// A field is populated when it is set, finite and non-zero.
func Valuate(asset models.Asset) Valuation {
	if asset.Type == models.AssetTypePortfolio {
		// The holdings total is authoritative, zero included.
		if asset.TotalValue == nil || math.IsNaN(*asset.TotalValue) || math.IsInf(*asset.TotalValue, 0) {
			return Valuation{Amount: 0, Path: PathPortfolioTotal}
		}
		return Valuation{Amount: *asset.TotalValue, Path: PathPortfolioTotal}
	}
	if v, ok := first(asset.CurrentTotalValue, asset.CurrentPrice); ok {
		return Valuation{Amount: v, Path: PathCurrentTotal}
	}
	if v, ok := firstProduct(
		[2]*float64{asset.Quantity, asset.CurrentUnitPrice},
		[2]*float64{asset.Area, asset.CurrentPricePerArea},
		[2]*float64{asset.Weight, asset.CurrentUnitPrice},
	); ok {
		return Valuation{Amount: v, Path: PathComputedCurrent}
	}
	if v, ok := first(asset.TotalValue); ok {
		return Valuation{Amount: v, Path: PathPurchaseTotal}
	}
	if v, ok := firstProduct(
		[2]*float64{asset.Quantity, asset.UnitPrice},
		[2]*float64{asset.Area, asset.PricePerArea},
		[2]*float64{asset.Weight, asset.UnitPrice},
	); ok {
		return Valuation{Amount: v, Path: PathComputedPurchase}
	}
	if v, ok := first(asset.OutstandingBalance); ok {
		return Valuation{Amount: v, Path: PathLiabilityBalance}
	}
	if v, ok := first(asset.PrincipalAmount); ok {
		return Valuation{Amount: v, Path: PathLiabilityPrincipal}
	}
	return Valuation{Amount: 0, Path: PathNone}
}

func populated(v *float64) bool {
	return v != nil && *v != 0 && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func first(values ...*float64) (float64, bool) {
	for _, v := range values {
		if populated(v) {
			return *v, true
		}
	}
	return 0, false
}

func firstProduct(pairs ...[2]*float64) (float64, bool) {
	for _, pair := range pairs {
		if populated(pair[0]) && populated(pair[1]) {
			return *pair[0] * *pair[1], true
		}
	}
	return 0, false
}
