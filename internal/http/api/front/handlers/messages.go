package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/messages"
	"github.com/wealthvault/backend/internal/models"
	"github.com/wealthvault/backend/internal/store"
)

// MessageHandler schedules messages and lists their delivery state.
type MessageHandler struct {
	store      *store.Store
	dispatcher *messages.Dispatcher
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(st *store.Store, dispatcher *messages.Dispatcher) *MessageHandler {
	return &MessageHandler{store: st, dispatcher: dispatcher}
}

// Create schedules a message for delivery on its send date.
func (h *MessageHandler) Create(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body messages.ScheduleInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	msg, errSchedule := h.dispatcher.Schedule(c.Request.Context(), userID, body)
	if errors.Is(errSchedule, messages.ErrInvalidMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errSchedule.Error()})
		return
	}
	if errSchedule != nil {
		log.WithError(errSchedule).WithField("user_id", userID).Error("schedule message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "schedule message failed"})
		return
	}
	c.JSON(http.StatusCreated, messageView(msg))
}

// List returns the user's messages, newest send date first.
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	rows, errList := h.store.ListMessagesForUser(c.Request.Context(), userID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list messages failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, msg := range rows {
		out = append(out, messageView(msg))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func messageView(msg models.ScheduledMessage) gin.H {
	return gin.H{
		"id":              msg.ID,
		"recipient_name":  msg.RecipientName,
		"recipient_email": msg.RecipientEmail,
		"subject":         msg.Subject,
		"send_date":       msg.SendDate,
		"status":          msg.Status,
		"retry_count":     msg.RetryCount,
		"last_error":      msg.LastError,
		"sent_at":         msg.SentAt,
		"failed_at":       msg.FailedAt,
		"created_at":      msg.CreatedAt,
	}
}
