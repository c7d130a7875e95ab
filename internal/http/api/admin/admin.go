// Package admin registers health and administrative API routes.
package admin

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wealthvault/backend/internal/config"
	handlers "github.com/wealthvault/backend/internal/http/api/admin/handlers"
	"github.com/wealthvault/backend/internal/http/api/middleware"
	"github.com/wealthvault/backend/internal/store"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers /healthz and the /v0/admin routes that require the admin role.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, st *store.Store, jwtCfg config.JWTConfig, runner handlers.JobRunner, now func() time.Time) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authed := r.Group("/v0/admin")
	authed.Use(middleware.UserAuth(st, jwtCfg, now))
	authed.Use(middleware.RequireAdmin())

	jobHandler := handlers.NewJobHandler(runner)
	authed.GET("/jobs", jobHandler.List)
	authed.POST("/jobs/:id/run", jobHandler.Run)

	userHandler := handlers.NewUserHandler(st)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id/plan", userHandler.SetPlan)
	authed.DELETE("/users/:id", userHandler.Delete)
}
