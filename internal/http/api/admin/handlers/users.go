package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/store"
)

// UserHandler manages user accounts on behalf of administrators.
type UserHandler struct {
	store *store.Store
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(st *store.Store) *UserHandler {
	return &UserHandler{store: st}
}

// Get returns a user by id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	user, errFind := h.store.GetUser(c.Request.Context(), id)
	if errors.Is(errFind, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":            user.ID,
		"external_id":   user.ExternalID,
		"email":         user.Email,
		"name":          user.Name,
		"plan":          user.Plan,
		"last_activity": user.LastActivity,
		"created_at":    user.CreatedAt,
	})
}

// Delete removes a user and every record the user owns.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	errDelete := h.store.DeleteUser(c.Request.Context(), id)
	if errors.Is(errDelete, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if errDelete != nil {
		log.WithError(errDelete).WithField("user_id", id).Error("delete user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete user failed"})
		return
	}
	log.WithField("user_id", id).Info("user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

type setPlanRequest struct {
	Plan string `json:"plan"`
}

// SetPlan changes a user's subscription plan.
func (h *UserHandler) SetPlan(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	var body setPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || strings.TrimSpace(body.Plan) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan is required"})
		return
	}
	errSet := h.store.SetUserPlan(c.Request.Context(), id, body.Plan)
	if errors.Is(errSet, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if errSet != nil {
		log.WithError(errSet).WithField("user_id", id).Error("set user plan failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set plan failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "plan": strings.ToLower(strings.TrimSpace(body.Plan))})
}

func parseUserID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}
