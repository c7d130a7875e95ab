// Package networth aggregates asset values into totals, breakdowns and dated snapshots.
package networth

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/metrics"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/valuation"
)

const (
	// ConsistencyEpsilon is the largest tolerated gap between the bucketed and recomputed net worth.
	ConsistencyEpsilon = 0.01
	// DefaultAnomalyThreshold flags net worth magnitudes above this value.
	DefaultAnomalyThreshold = 1e12
)

// Validation reports the independent recomputation of net worth.
type Validation struct {
	CalculatedNetWorth  float64  `json:"calculated_net_worth"`
	Difference          float64  `json:"difference"`
	Consistent          bool     `json:"consistent"`
	Anomalous           bool     `json:"anomalous"`
	UnconvertedAssetIDs []uint64 `json:"unconverted_asset_ids,omitempty"`
}

// Summary is the aggregated view of a set of assets in one currency.
type Summary struct {
	Currency              string             `json:"currency"`
	TotalAssetsValue      float64            `json:"total_assets_value"`
	TotalLiabilitiesValue float64            `json:"total_liabilities_value"`
	NetWorth              float64            `json:"net_worth"`
	AssetBreakdown        map[string]float64 `json:"asset_breakdown"`
	LiabilityBreakdown    map[string]float64 `json:"liability_breakdown"`
	Breakdown             map[string]float64 `json:"breakdown"`
	AssetCount            int                `json:"asset_count"`
	LiabilityCount        int                `json:"liability_count"`
	Validation            Validation         `json:"validation"`
	Warnings              []string           `json:"warnings,omitempty"`
}

// Aggregator converts asset values into a target currency and totals them.
type Aggregator struct {
	converter        *valuation.Converter
	anomalyThreshold float64
	metrics          *metrics.Metrics
}

// NewAggregator constructs an Aggregator. A non-positive threshold selects DefaultAnomalyThreshold.
func NewAggregator(converter *valuation.Converter, anomalyThreshold float64, m *metrics.Metrics) *Aggregator {
	if anomalyThreshold <= 0 {
		anomalyThreshold = DefaultAnomalyThreshold
	}
	return &Aggregator{
		converter:        converter,
		anomalyThreshold: anomalyThreshold,
		metrics:          m,
	}
}

// Aggregate totals assets and liabilities in target currency.
// Inconsistency and anomalies are reported on the result, never returned as errors.
func (a *Aggregator) Aggregate(ctx context.Context, assets []models.Asset, target string) Summary {
	target = fxrates.NormalizeCode(target)
	summary := Summary{
		Currency:           target,
		AssetBreakdown:     make(map[string]float64),
		LiabilityBreakdown: make(map[string]float64),
		Breakdown:          make(map[string]float64),
	}
	var converter *valuation.Converter
	threshold := DefaultAnomalyThreshold
	var m *metrics.Metrics
	if a != nil {
		converter = a.converter
		threshold = a.anomalyThreshold
		m = a.metrics
	}

	totalAssets := decimal.Zero
	totalLiabilities := decimal.Zero
	assetBuckets := make(map[string]decimal.Decimal)
	liabilityBuckets := make(map[string]decimal.Decimal)
	signedValues := make([]float64, 0, len(assets))

	for _, asset := range assets {
		native := valuation.CurrentValue(asset)
		converted, status := converter.ConvertWithStatus(ctx, native, asset.Currency, target)
		if !status.Converted {
			summary.Validation.UnconvertedAssetIDs = append(summary.Validation.UnconvertedAssetIDs, asset.ID)
		}
		amount := decimal.NewFromFloat(converted)
		kind := string(asset.Type)

		if asset.Type.IsLiability() {
			totalLiabilities = totalLiabilities.Add(amount)
			liabilityBuckets[kind] = liabilityBuckets[kind].Add(amount)
			summary.LiabilityCount++
			signedValues = append(signedValues, -converted)
			continue
		}
		totalAssets = totalAssets.Add(amount)
		assetBuckets[kind] = assetBuckets[kind].Add(amount)
		summary.AssetCount++
		signedValues = append(signedValues, converted)
	}

	for kind, value := range assetBuckets {
		summary.AssetBreakdown[kind] = value.InexactFloat64()
		summary.Breakdown[kind] = value.InexactFloat64()
	}
	for kind, value := range liabilityBuckets {
		summary.LiabilityBreakdown[kind] = value.InexactFloat64()
		summary.Breakdown[kind] = value.Neg().InexactFloat64()
	}

	netWorth := totalAssets.Sub(totalLiabilities)
	summary.TotalAssetsValue = totalAssets.InexactFloat64()
	summary.TotalLiabilitiesValue = totalLiabilities.InexactFloat64()
	summary.NetWorth = netWorth.InexactFloat64()

	validateNetWorth(&summary, signedValues, target, m)

	if math.Abs(summary.NetWorth) > threshold {
		summary.Validation.Anomalous = true
		log.WithFields(log.Fields{
			"net_worth": summary.NetWorth,
			"threshold": threshold,
			"currency":  target,
		}).Warn("networth: net worth exceeds anomaly threshold")
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("net worth magnitude exceeds %.0f", threshold))
		m.NetWorthWarning("anomalous")
	}
	if n := len(summary.Validation.UnconvertedAssetIDs); n > 0 {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("%d asset value(s) could not be converted to %s", n, target))
	}
	return summary
}

// validateNetWorth recomputes net worth from the signed per-asset values and flags a mismatch
// with the bucketed total.
func validateNetWorth(summary *Summary, signed []float64, target string, m *metrics.Metrics) {
	calculated := 0.0
	for _, v := range signed {
		calculated += v
	}
	summary.Validation.CalculatedNetWorth = calculated
	summary.Validation.Difference = math.Abs(summary.NetWorth - calculated)
	summary.Validation.Consistent = summary.Validation.Difference <= ConsistencyEpsilon
	if summary.Validation.Consistent {
		return
	}
	log.WithFields(log.Fields{
		"net_worth":  summary.NetWorth,
		"calculated": calculated,
		"difference": summary.Validation.Difference,
		"currency":   target,
	}).Error("networth: aggregation mismatch")
	summary.Warnings = append(summary.Warnings, fmt.Sprintf(
		"net worth %.2f differs from recomputed %.2f by %.4f", summary.NetWorth, calculated, summary.Validation.Difference))
	m.NetWorthWarning("inconsistent")
}
