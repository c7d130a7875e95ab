package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/deadman"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/store"
)

// DeadManSwitchHandler serves the user's switch settings and nominee.
type DeadManSwitchHandler struct {
	store     *store.Store
	evaluator *deadman.Evaluator
	now       func() time.Time
}

// NewDeadManSwitchHandler constructs a DeadManSwitchHandler.
func NewDeadManSwitchHandler(st *store.Store, evaluator *deadman.Evaluator) *DeadManSwitchHandler {
	return &DeadManSwitchHandler{store: st, evaluator: evaluator, now: time.Now}
}

// Get returns the switch, its countdown and the nominee.
func (h *DeadManSwitchHandler) Get(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sw, errFind := h.store.GetSwitch(ctx, userID)
	if errors.Is(errFind, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead man switch not configured"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load dead man switch failed"})
		return
	}
	user, errUser := h.store.GetUser(ctx, userID)
	if errUser != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}
	nominee, errNominee := h.store.GetActiveNominee(ctx, userID)
	if errNominee != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load nominee failed"})
		return
	}

	resp := switchView(sw)
	inactive := deadman.DaysInactive(user, sw, h.now().UTC())
	resp["days_inactive"] = inactive
	if sw.IsActive {
		remaining := sw.InactivityDays - inactive
		if remaining < 0 {
			remaining = 0
		}
		resp["days_remaining"] = remaining
	}
	if nominee != nil {
		resp["nominee"] = nomineeView(*nominee)
	}
	c.JSON(http.StatusOK, resp)
}

// Configure creates or updates the switch thresholds and activates it.
func (h *DeadManSwitchHandler) Configure(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body deadman.Settings
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	sw, errConfigure := h.evaluator.Configure(c.Request.Context(), userID, body)
	if errors.Is(errConfigure, deadman.ErrInvalidConfig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errConfigure.Error()})
		return
	}
	if errConfigure != nil {
		log.WithError(errConfigure).WithField("user_id", userID).Error("configure dead man switch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configure dead man switch failed"})
		return
	}
	c.JSON(http.StatusOK, switchView(sw))
}

// Reset restarts the countdown and re-arms a triggered switch.
func (h *DeadManSwitchHandler) Reset(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sw, errReset := h.evaluator.Reset(c.Request.Context(), userID)
	if errors.Is(errReset, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "dead man switch not configured"})
		return
	}
	if errReset != nil {
		log.WithError(errReset).WithField("user_id", userID).Error("reset dead man switch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset dead man switch failed"})
		return
	}
	c.JSON(http.StatusOK, switchView(sw))
}

// SetNominee creates or replaces the nominee alerted on trigger.
func (h *DeadManSwitchHandler) SetNominee(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body deadman.NomineeInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	nominee, errSet := h.evaluator.SetNominee(c.Request.Context(), userID, body)
	if errors.Is(errSet, deadman.ErrInvalidConfig) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errSet.Error()})
		return
	}
	if errSet != nil {
		log.WithError(errSet).WithField("user_id", userID).Error("set nominee failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set nominee failed"})
		return
	}
	c.JSON(http.StatusOK, nomineeView(nominee))
}

func switchView(sw models.DeadManSwitch) gin.H {
	return gin.H{
		"id":               sw.ID,
		"inactivity_days":  sw.InactivityDays,
		"reminder_1_days":  sw.Reminder1Days,
		"reminder_2_days":  sw.Reminder2Days,
		"reminder_3_days":  sw.Reminder3Days,
		"is_active":        sw.IsActive,
		"last_reset":       sw.LastReset,
		"reminders_sent":   sw.RemindersSent,
		"last_reminder_at": sw.LastReminderAt,
		"triggered_at":     sw.TriggeredAt,
		"updated_at":       sw.UpdatedAt,
	}
}

func nomineeView(n models.Nominee) gin.H {
	return gin.H{
		"name":         n.Name,
		"email":        n.Email,
		"relationship": n.Relationship,
		"is_active":    n.IsActive,
	}
}
