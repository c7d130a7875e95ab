package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/portfolio"
)

// HoldingHandler manages the holdings of a portfolio container.
type HoldingHandler struct {
	service *portfolio.Service
}

// NewHoldingHandler constructs a HoldingHandler.
func NewHoldingHandler(service *portfolio.Service) *HoldingHandler {
	return &HoldingHandler{service: service}
}

// List returns the container's holdings.
func (h *HoldingHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	holdings, errList := h.service.List(c.Request.Context(), userID, assetID)
	if errList != nil {
		writeHoldingError(c, errList)
		return
	}
	out := make([]gin.H, 0, len(holdings))
	for _, holding := range holdings {
		out = append(out, holdingView(holding))
	}
	c.JSON(http.StatusOK, gin.H{"holdings": out})
}

// Create adds a holding and recomputes the container total.
func (h *HoldingHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body portfolio.HoldingInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	holding, errAdd := h.service.Add(c.Request.Context(), userID, assetID, body)
	if errAdd != nil {
		writeHoldingError(c, errAdd)
		return
	}
	c.JSON(http.StatusCreated, holdingView(holding))
}

// Update replaces a holding's fields and recomputes the container total.
func (h *HoldingHandler) Update(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	holdingID, ok := parseIDParam(c, "holding_id")
	if !ok {
		return
	}
	var body portfolio.HoldingInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	holding, errUpdate := h.service.Update(c.Request.Context(), userID, assetID, holdingID, body)
	if errUpdate != nil {
		writeHoldingError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, holdingView(holding))
}

// Delete removes a holding and recomputes the container total.
func (h *HoldingHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	assetID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	holdingID, ok := parseIDParam(c, "holding_id")
	if !ok {
		return
	}
	if errDelete := h.service.Delete(c.Request.Context(), userID, assetID, holdingID); errDelete != nil {
		writeHoldingError(c, errDelete)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "holding deleted"})
}

func writeHoldingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, portfolio.ErrContainerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "portfolio not found"})
	case errors.Is(err, portfolio.ErrHoldingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "holding not found"})
	case errors.Is(err, portfolio.ErrInvalidHolding):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Error("portfolio holding operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "holding operation failed"})
	}
}

func holdingView(holding models.PortfolioHolding) gin.H {
	return gin.H{
		"id":             holding.ID,
		"asset_id":       holding.AssetID,
		"position":       holding.Position,
		"symbol":         holding.Symbol,
		"quantity":       holding.Quantity,
		"purchase_price": holding.PurchasePrice,
		"current_price":  holding.CurrentPrice,
		"market_value":   holding.MarketValue(),
		"created_at":     holding.CreatedAt,
		"updated_at":     holding.UpdatedAt,
	}
}
