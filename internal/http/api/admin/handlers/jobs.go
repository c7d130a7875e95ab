package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/jobs"
)

// JobRunner is the part of the task runner exposed to administrators.
type JobRunner interface {
	Stats() []jobs.TaskStats
	RunNow(ctx context.Context, id string) error
}

// JobHandler lists background tasks and triggers them on demand.
type JobHandler struct {
	runner JobRunner
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(runner JobRunner) *JobHandler {
	return &JobHandler{runner: runner}
}

// List returns every registered task with its run statistics and next run time.
func (h *JobHandler) List(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []jobs.TaskStats{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.runner.Stats()})
}

// Run executes a task synchronously and reports its outcome.
func (h *JobHandler) Run(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if h.runner == nil || id == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	start := time.Now()
	errRun := h.runner.RunNow(c.Request.Context(), id)
	elapsed := time.Since(start)
	switch {
	case errors.Is(errRun, jobs.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(errRun, jobs.ErrTaskBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "job already running"})
	case errRun != nil:
		log.WithError(errRun).WithField("task", id).Warn("manual job run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRun.Error(), "duration": elapsed.String()})
	default:
		c.JSON(http.StatusOK, gin.H{"job": id, "status": "completed", "duration": elapsed.String()})
	}
}
