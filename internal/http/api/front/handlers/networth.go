package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/networth"
	"github.com/wealthvault/backend/internal/valuation"
)

// NetWorthHandler serves net worth summaries, snapshots and conversions.
type NetWorthHandler struct {
	service   *networth.Service
	converter *valuation.Converter
}

// NewNetWorthHandler constructs a NetWorthHandler.
func NewNetWorthHandler(service *networth.Service, converter *valuation.Converter) *NetWorthHandler {
	return &NetWorthHandler{service: service, converter: converter}
}

// Summary aggregates the user's assets in the requested currency.
func (h *NetWorthHandler) Summary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	summary, errSummary := h.service.Summary(c.Request.Context(), userID, c.Query("currency"))
	if errSummary != nil {
		log.WithError(errSummary).WithField("user_id", userID).Error("net worth summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "compute net worth failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// createSnapshotRequest captures the payload for storing a snapshot.
type createSnapshotRequest struct {
	Date     string `json:"date"`     // Snapshot date (YYYY-MM-DD), today when empty.
	Currency string `json:"currency"` // Target currency, the default when empty.
}

// CreateSnapshot stores today's (or the given date's) net worth, replacing any snapshot for that date.
func (h *NetWorthHandler) CreateSnapshot(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body createSnapshotRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	var date time.Time
	if raw := strings.TrimSpace(body.Date); raw != "" {
		parsed, errParse := time.Parse(models.SnapshotDateLayout, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	snap, summary, errSnap := h.service.CreateSnapshot(c.Request.Context(), userID, date, body.Currency)
	if errSnap != nil {
		log.WithError(errSnap).WithField("user_id", userID).Error("create snapshot failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot": gin.H{
			"id":                  snap.ID,
			"date":                snap.SnapshotDate,
			"currency":            snap.Currency,
			"total_assets":        snap.TotalAssets,
			"total_liabilities":   snap.TotalLiabilities,
			"net_worth":           snap.NetWorth,
			"asset_breakdown":     snap.AssetBreakdown,
			"liability_breakdown": snap.LiabilityBreakdown,
		},
		"validation": summary.Validation,
		"warnings":   summary.Warnings,
	})
}

// History returns stored snapshots converted into the display currency.
func (h *NetWorthHandler) History(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	points, errHistory := h.service.History(c.Request.Context(), userID, c.Query("from"), c.Query("to"), c.Query("currency"))
	if errHistory != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errHistory.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": points})
}

// Convert converts an amount between currencies. A failed lookup returns the original amount
// with converted=false.
func (h *NetWorthHandler) Convert(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to are required"})
		return
	}
	amount, errParse := strconv.ParseFloat(strings.TrimSpace(c.Query("amount")), 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	out, status := h.converter.ConvertWithStatus(c.Request.Context(), amount, from, to)
	resp := gin.H{
		"amount":    out,
		"from":      strings.ToUpper(from),
		"to":        strings.ToUpper(to),
		"converted": status.Converted,
	}
	if status.Converted {
		resp["rate"] = status.Rate
	} else {
		resp["reason"] = status.Reason
	}
	c.JSON(http.StatusOK, resp)
}
