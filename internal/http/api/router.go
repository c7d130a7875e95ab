// Package api assembles the gin engine serving the wealthvault HTTP API.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/http/api/admin"
	adminhandlers "github.com/wealthvault/backend/internal/http/api/admin/handlers"
	"github.com/wealthvault/backend/internal/http/api/front"
	"github.com/wealthvault/backend/internal/metrics"
	"gorm.io/gorm"
)

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	DB      *gorm.DB
	JWT     config.JWTConfig
	Front   front.Services
	Runner  adminhandlers.JobRunner
	Metrics *metrics.Metrics
	Debug   bool
}

// NewRouter builds the engine with recovery, request logging, /metrics and all API routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if !deps.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(deps.Metrics))

	engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	admin.RegisterAdminRoutes(engine, deps.DB, deps.Front.Store, deps.JWT, deps.Runner, deps.Front.Now)
	front.RegisterFrontRoutes(engine, deps.JWT, deps.Front)
	return engine
}

// requestLogger logs each request through logrus and records it in m.
func requestLogger(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()
		m.ObserveRequest(c.Request.Method, c.FullPath(), status, elapsed)

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   status,
			"duration": elapsed.String(),
			"client":   c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("request failed")
		case c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics":
			entry.Debug("request served")
		default:
			entry.Info("request served")
		}
	}
}
