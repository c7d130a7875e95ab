package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wealthvault/backend/internal/fxrates"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/store"
	"github.com/wealthvault/backend/internal/valuation"
)

// AssetHandler serves the user's asset records with their current valuation.
type AssetHandler struct {
	store *store.Store
}

// NewAssetHandler constructs an AssetHandler.
func NewAssetHandler(st *store.Store) *AssetHandler {
	return &AssetHandler{store: st}
}

// assetRequest captures the payload for creating an asset.
type assetRequest struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`

	Quantity     *float64 `json:"quantity"`
	UnitPrice    *float64 `json:"unit_price"`
	TotalValue   *float64 `json:"total_value"`
	Area         *float64 `json:"area"`
	PricePerArea *float64 `json:"price_per_area"`
	Weight       *float64 `json:"weight"`

	CurrentUnitPrice    *float64 `json:"current_unit_price"`
	CurrentTotalValue   *float64 `json:"current_total_value"`
	CurrentPrice        *float64 `json:"current_price"`
	CurrentPricePerArea *float64 `json:"current_price_per_area"`

	PrincipalAmount    *float64 `json:"principal_amount"`
	InterestRate       *float64 `json:"interest_rate"`
	TenureMonths       *int     `json:"tenure_months"`
	OutstandingBalance *float64 `json:"outstanding_balance"`
}

// List returns every asset of the current user.
func (h *AssetHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assets, errList := h.store.ListAssets(c.Request.Context(), userID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list assets failed"})
		return
	}
	out := make([]gin.H, 0, len(assets))
	for _, asset := range assets {
		out = append(out, assetView(asset))
	}
	c.JSON(http.StatusOK, gin.H{"assets": out})
}

// Get returns one asset of the current user.
func (h *AssetHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	asset, errFind := h.store.GetAsset(c.Request.Context(), userID, assetID)
	if errors.Is(errFind, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load asset failed"})
		return
	}
	c.JSON(http.StatusOK, assetView(asset))
}

// Create validates and inserts an asset for the current user.
func (h *AssetHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body assetRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	assetType := models.AssetType(strings.ToLower(strings.TrimSpace(body.Type)))
	if !assetType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown asset type"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	currency := fxrates.NormalizeCode(body.Currency)
	if len(currency) != 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency must be a 3-letter code"})
		return
	}

	asset := models.Asset{
		UserID:              userID,
		Type:                assetType,
		Name:                name,
		Currency:            currency,
		Symbol:              strings.TrimSpace(body.Symbol),
		Quantity:            body.Quantity,
		UnitPrice:           body.UnitPrice,
		TotalValue:          body.TotalValue,
		Area:                body.Area,
		PricePerArea:        body.PricePerArea,
		Weight:              body.Weight,
		CurrentUnitPrice:    body.CurrentUnitPrice,
		CurrentTotalValue:   body.CurrentTotalValue,
		CurrentPrice:        body.CurrentPrice,
		CurrentPricePerArea: body.CurrentPricePerArea,
		PrincipalAmount:     body.PrincipalAmount,
		InterestRate:        body.InterestRate,
		TenureMonths:        body.TenureMonths,
		OutstandingBalance:  body.OutstandingBalance,
	}
	if assetType == models.AssetTypePortfolio {
		// Holdings drive the container total; valuation inputs are not accepted.
		zero := 0.0
		asset = models.Asset{
			UserID:     userID,
			Type:       assetType,
			Name:       name,
			Currency:   currency,
			Symbol:     asset.Symbol,
			TotalValue: &zero,
		}
	}
	if errCreate := h.store.CreateAsset(c.Request.Context(), &asset); errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create asset failed"})
		return
	}
	c.JSON(http.StatusCreated, assetView(asset))
}

func assetView(asset models.Asset) gin.H {
	v := valuation.Valuate(asset)
	return gin.H{
		"id":                     asset.ID,
		"type":                   asset.Type,
		"name":                   asset.Name,
		"currency":               asset.Currency,
		"symbol":                 asset.Symbol,
		"is_liability":           asset.Type.IsLiability(),
		"current_value":          v.Amount,
		"valuation_path":         v.Path,
		"quantity":               asset.Quantity,
		"unit_price":             asset.UnitPrice,
		"total_value":            asset.TotalValue,
		"area":                   asset.Area,
		"price_per_area":         asset.PricePerArea,
		"weight":                 asset.Weight,
		"current_unit_price":     asset.CurrentUnitPrice,
		"current_total_value":    asset.CurrentTotalValue,
		"current_price":          asset.CurrentPrice,
		"current_price_per_area": asset.CurrentPricePerArea,
		"principal_amount":       asset.PrincipalAmount,
		"interest_rate":          asset.InterestRate,
		"tenure_months":          asset.TenureMonths,
		"outstanding_balance":    asset.OutstandingBalance,
		"created_at":             asset.CreatedAt,
		"updated_at":             asset.UpdatedAt,
	}
}
