package networth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/valuation"
	"gorm.io/datatypes"
)

// Repository is the storage surface used by Service.
type Repository interface {
	ListAssets(ctx context.Context, userID uint64) ([]models.Asset, error)
	UpsertSnapshot(ctx context.Context, snap *models.NetWorthSnapshot) error
	ListSnapshots(ctx context.Context, userID uint64, from, to string) ([]models.NetWorthSnapshot, error)
}

// HistoryPoint is a stored snapshot expressed in a display currency.
type HistoryPoint struct {
	Date             string  `json:"date"`
	Currency         string  `json:"currency"`
	TotalAssets      float64 `json:"total_assets"`
	TotalLiabilities float64 `json:"total_liabilities"`
	NetWorth         float64 `json:"net_worth"`
	StoredCurrency   string  `json:"stored_currency"`
	Converted        bool    `json:"converted"`
}

// Service computes live summaries, stores dated snapshots and serves history.
type Service struct {
	repo            Repository
	aggregator      *Aggregator
	converter       *valuation.Converter
	defaultCurrency string
	now             func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, aggregator *Aggregator, converter *valuation.Converter, defaultCurrency string) *Service {
	defaultCurrency = fxrates.NormalizeCode(defaultCurrency)
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Service{
		repo:            repo,
		aggregator:      aggregator,
		converter:       converter,
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

func (s *Service) currency(code string) string {
	if code = fxrates.NormalizeCode(code); code != "" {
		return code
	}
	return s.defaultCurrency
}

// Summary aggregates the user's current assets.
func (s *Service) Summary(ctx context.Context, userID uint64, currency string) (Summary, error) {
	if s == nil || s.repo == nil {
		return Summary{}, fmt.Errorf("networth: service not initialized")
	}
	assets, errList := s.repo.ListAssets(ctx, userID)
	if errList != nil {
		return Summary{}, fmt.Errorf("networth: list assets: %w", errList)
	}
	return s.aggregator.Aggregate(ctx, assets, s.currency(currency)), nil
}

// CreateSnapshot aggregates the user's assets and stores the result for date, replacing any
// snapshot already stored for that date. A zero date means today (UTC).
func (s *Service) CreateSnapshot(ctx context.Context, userID uint64, date time.Time, currency string) (models.NetWorthSnapshot, Summary, error) {
	summary, errSummary := s.Summary(ctx, userID, currency)
	if errSummary != nil {
		return models.NetWorthSnapshot{}, Summary{}, errSummary
	}
	if date.IsZero() {
		date = s.now()
	}

	assetJSON, errMarshal := json.Marshal(summary.AssetBreakdown)
	if errMarshal != nil {
		return models.NetWorthSnapshot{}, Summary{}, fmt.Errorf("networth: encode asset breakdown: %w", errMarshal)
	}
	liabilityJSON, errMarshal := json.Marshal(summary.LiabilityBreakdown)
	if errMarshal != nil {
		return models.NetWorthSnapshot{}, Summary{}, fmt.Errorf("networth: encode liability breakdown: %w", errMarshal)
	}

	snap := models.NetWorthSnapshot{
		UserID:             userID,
		SnapshotDate:       date.UTC().Format(models.SnapshotDateLayout),
		Currency:           summary.Currency,
		TotalAssets:        summary.TotalAssetsValue,
		TotalLiabilities:   summary.TotalLiabilitiesValue,
		NetWorth:           summary.NetWorth,
		AssetBreakdown:     datatypes.JSON(assetJSON),
		LiabilityBreakdown: datatypes.JSON(liabilityJSON),
	}
	if errUpsert := s.repo.UpsertSnapshot(ctx, &snap); errUpsert != nil {
		return models.NetWorthSnapshot{}, Summary{}, fmt.Errorf("networth: store snapshot: %w", errUpsert)
	}
	return snap, summary, nil
}

// History returns stored snapshots between from and to (YYYY-MM-DD, inclusive, empty for open ends)
// converted into displayCurrency. Stored rows are not modified.
func (s *Service) History(ctx context.Context, userID uint64, from, to, displayCurrency string) ([]HistoryPoint, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("networth: service not initialized")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, errParse := time.Parse(models.SnapshotDateLayout, d); errParse != nil {
			return nil, fmt.Errorf("networth: invalid date %q: %w", d, errParse)
		}
	}

	rows, errList := s.repo.ListSnapshots(ctx, userID, from, to)
	if errList != nil {
		return nil, fmt.Errorf("networth: list snapshots: %w", errList)
	}
	display := s.currency(displayCurrency)
	points := make([]HistoryPoint, 0, len(rows))
	for _, row := range rows {
		assets, statusAssets := s.converter.ConvertWithStatus(ctx, row.TotalAssets, row.Currency, display)
		liabilities, statusLiabilities := s.converter.ConvertWithStatus(ctx, row.TotalLiabilities, row.Currency, display)
		net, statusNet := s.converter.ConvertWithStatus(ctx, row.NetWorth, row.Currency, display)
		converted := statusAssets.Converted && statusLiabilities.Converted && statusNet.Converted
		currency := display
		if !converted {
			currency = row.Currency
			assets, liabilities, net = row.TotalAssets, row.TotalLiabilities, row.NetWorth
		}
		points = append(points, HistoryPoint{
			Date:             row.SnapshotDate,
			Currency:         currency,
			TotalAssets:      assets,
			TotalLiabilities: liabilities,
			NetWorth:         net,
			StoredCurrency:   row.Currency,
			Converted:        converted,
		})
	}
	return points, nil
}
