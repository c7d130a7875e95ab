// Package front registers the user-facing API routes.
package front

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/deadman"
	handlers "github.com/wealthvault/backend/internal/http/api/front/handlers"
	"github.com/wealthvault/backend/internal/http/api/middleware"
	"github.com/wealthvault/backend/internal/messages"
	"github.com/wealthvault/backend/internal/networth"
	"github.com/wealthvault/backend/internal/portfolio"
	"github.com/wealthvault/backend/internal/ratelimit"
	"github.com/wealthvault/backend/internal/store"
	"github.com/wealthvault/backend/internal/valuation"
)

// Services are the collaborators front handlers call into.
type Services struct {
	Store      *store.Store
	NetWorth   *networth.Service
	Converter  *valuation.Converter
	Portfolio  *portfolio.Service
	Evaluator  *deadman.Evaluator
	Dispatcher *messages.Dispatcher
	Now        func() time.Time

	// Limiter is optional; nil disables request throttling.
	Limiter         middleware.RequestLimiter
	RateLimitPolicy ratelimit.Policy
}

// RegisterFrontRoutes registers /v0/front routes behind user authentication.
func RegisterFrontRoutes(r *gin.Engine, jwtCfg config.JWTConfig, svc Services) {
	if r == nil || svc.Store == nil {
		return
	}

	authed := r.Group("/v0/front")
	authed.Use(middleware.UserAuth(svc.Store, jwtCfg, svc.Now))
	authed.Use(middleware.RateLimit(svc.Limiter, svc.RateLimitPolicy))

	assetHandler := handlers.NewAssetHandler(svc.Store)
	authed.GET("/assets", assetHandler.List)
	authed.POST("/assets", assetHandler.Create)
	authed.GET("/assets/:id", assetHandler.Get)

	holdingHandler := handlers.NewHoldingHandler(svc.Portfolio)
	authed.GET("/portfolios/:id/holdings", holdingHandler.List)
	authed.POST("/portfolios/:id/holdings", holdingHandler.Create)
	authed.PUT("/portfolios/:id/holdings/:holding_id", holdingHandler.Update)
	authed.DELETE("/portfolios/:id/holdings/:holding_id", holdingHandler.Delete)

	netWorthHandler := handlers.NewNetWorthHandler(svc.NetWorth, svc.Converter)
	authed.GET("/networth", netWorthHandler.Summary)
	authed.POST("/networth/snapshots", netWorthHandler.CreateSnapshot)
	authed.GET("/networth/history", netWorthHandler.History)
	authed.GET("/convert", netWorthHandler.Convert)

	switchHandler := handlers.NewDeadManSwitchHandler(svc.Store, svc.Evaluator)
	authed.GET("/dead-man-switch", switchHandler.Get)
	authed.PUT("/dead-man-switch", switchHandler.Configure)
	authed.POST("/dead-man-switch/reset", switchHandler.Reset)
	authed.PUT("/nominee", switchHandler.SetNominee)

	messageHandler := handlers.NewMessageHandler(svc.Store, svc.Dispatcher)
	authed.GET("/messages", messageHandler.List)
	authed.POST("/messages", messageHandler.Create)
}
