package valuation

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/models"
)

func f(v float64) *float64 { return &v }

func TestValuatePriority(t *testing.T) {
	cases := []struct {
		name  string
		asset models.Asset
		want  float64
		path  Path
	}{
		{
			name: "property prefers explicit current total",
			asset: models.Asset{
				Type: models.AssetTypeProperty, CurrentTotalValue: f(500000),
				Area: f(1000), CurrentPricePerArea: f(450), TotalValue: f(300000),
			},
			want: 500000, path: PathCurrentTotal,
		},
		{
			name:  "current price counts as explicit current total",
			asset: models.Asset{Type: models.AssetTypeStock, CurrentPrice: f(42), Quantity: f(10), CurrentUnitPrice: f(5)},
			want:  42, path: PathCurrentTotal,
		},
		{
			name:  "stock computed from quantity and current unit price",
			asset: models.Asset{Type: models.AssetTypeStock, Quantity: f(10), CurrentUnitPrice: f(12.5), UnitPrice: f(9)},
			want:  125, path: PathComputedCurrent,
		},
		{
			name:  "property computed from area",
			asset: models.Asset{Type: models.AssetTypeProperty, Area: f(100), CurrentPricePerArea: f(30)},
			want:  3000, path: PathComputedCurrent,
		},
		{
			name:  "metal computed from weight",
			asset: models.Asset{Type: models.AssetTypePreciousMetal, Weight: f(2), CurrentUnitPrice: f(60)},
			want:  120, path: PathComputedCurrent,
		},
		{
			name:  "zero current total is ignored",
			asset: models.Asset{Type: models.AssetTypeBank, CurrentTotalValue: f(0), TotalValue: f(1000)},
			want:  1000, path: PathPurchaseTotal,
		},
		{
			name:  "portfolio uses stored total",
			asset: models.Asset{Type: models.AssetTypePortfolio, TotalValue: f(780)},
			want:  780, path: PathPortfolioTotal,
		},
		{
			name:  "portfolio ignores user supplied current total",
			asset: models.Asset{Type: models.AssetTypePortfolio, TotalValue: f(100), CurrentTotalValue: f(999)},
			want:  100, path: PathPortfolioTotal,
		},
		{
			name:  "emptied portfolio stays at zero",
			asset: models.Asset{Type: models.AssetTypePortfolio, TotalValue: f(0), Quantity: f(5), UnitPrice: f(10)},
			want:  0, path: PathPortfolioTotal,
		},
		{
			name:  "purchase basis computed",
			asset: models.Asset{Type: models.AssetTypeCrypto, Quantity: f(0.5), UnitPrice: f(20000)},
			want:  10000, path: PathComputedPurchase,
		},
		{
			name:  "loan outstanding balance",
			asset: models.Asset{Type: models.AssetTypeLoan, OutstandingBalance: f(400), PrincipalAmount: f(1000)},
			want:  400, path: PathLiabilityBalance,
		},
		{
			name:  "loan falls back to principal",
			asset: models.Asset{Type: models.AssetTypeLoan, PrincipalAmount: f(1000)},
			want:  1000, path: PathLiabilityPrincipal,
		},
		{
			name:  "nothing populated",
			asset: models.Asset{Type: models.AssetTypeLocker},
			want:  0, path: PathNone,
		},
		{
			name:  "non-finite fields are ignored",
			asset: models.Asset{Type: models.AssetTypeStock, CurrentTotalValue: f(math.NaN()), TotalValue: f(math.Inf(1)), Quantity: f(2), UnitPrice: f(3)},
			want:  6, path: PathComputedPurchase,
		},
	}
	for _, tc := range cases {
		got := Valuate(tc.asset)
		if got.Amount != tc.want || got.Path != tc.path {
			t.Fatalf("%s: got %v via %s, want %v via %s", tc.name, got.Amount, got.Path, tc.want, tc.path)
		}
		if CurrentValue(tc.asset) != tc.want {
			t.Fatalf("%s: CurrentValue mismatch", tc.name)
		}
	}
}

type stubSource struct {
	calls int
	rates fxrates.Rates
	err   error
}

func (s *stubSource) Rates(_ context.Context, _ string) (fxrates.Rates, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rates, nil
}

func TestConvertSameCurrencySkipsLookup(t *testing.T) {
	source := &stubSource{err: errors.New("should not be called")}
	c := NewConverter(source, nil)

	out, status := c.ConvertWithStatus(context.Background(), 123.45, "usd", "USD")
	if out != 123.45 || !status.Converted {
		t.Fatalf("identity conversion: got %v %+v", out, status)
	}
	if c.Convert(context.Background(), 0, "USD", "EUR") != 0 {
		t.Fatalf("zero amount should convert to zero")
	}
	if source.calls != 0 {
		t.Fatalf("expected no lookups, got %d", source.calls)
	}
}

func TestConvertAppliesRate(t *testing.T) {
	c := NewConverter(&stubSource{rates: fxrates.Rates{"EUR": 0.9}}, nil)
	out, status := c.ConvertWithStatus(context.Background(), 100, "USD", "eur")
	if math.Abs(out-90) > 1e-9 || !status.Converted || status.Rate != 0.9 {
		t.Fatalf("got %v %+v", out, status)
	}
}

func TestConvertFailsOpen(t *testing.T) {
	cases := map[string]*Converter{
		ReasonProvider:    NewConverter(&stubSource{err: errors.New("network down")}, nil),
		ReasonUnavailable: NewConverter(&stubSource{err: fxrates.ErrProviderUnavailable}, nil),
		ReasonMissingRate: NewConverter(&stubSource{rates: fxrates.Rates{"GBP": 0.8}}, nil),
		ReasonNoSource:    NewConverter(nil, nil),
	}
	for reason, c := range cases {
		out, status := c.ConvertWithStatus(context.Background(), 100, "USD", "EUR")
		if out != 100 || status.Converted || status.Reason != reason {
			t.Fatalf("%s: got %v %+v", reason, out, status)
		}
	}
}

func TestConvertFailsOpenWhenProviderUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewConverter(fxrates.NewHTTPProvider(url, 500*time.Millisecond), nil)
	if got := c.Convert(context.Background(), 100, "USD", "EUR"); got != 100 {
		t.Fatalf("expected original amount, got %v", got)
	}
}
