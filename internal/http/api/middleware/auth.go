// Package middleware holds the gin middleware shared by front and admin routes.
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/security"
	"github.com/wealthvault/backend/internal/store"
)

const (
	contextUserID = "userID"
	contextClaims = "userClaims"
	contextPlan   = "userPlan"
)

// UserAuth validates the bearer token, upserts the user by token subject and
// records the request as user activity. A plan claim overrides the stored plan.
func UserAuth(st *store.Store, jwtCfg config.JWTConfig, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := c.Request.Context()
		user, errUpsert := st.UpsertUserByExternalID(ctx, claims.Subject, claims.Email, claims.Name)
		if errUpsert != nil {
			log.WithError(errUpsert).WithField("subject", claims.Subject).Error("upsert user failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load user failed"})
			return
		}
		if errTouch := st.TouchActivity(ctx, user.ID, now().UTC()); errTouch != nil {
			log.WithError(errTouch).WithField("user_id", user.ID).Warn("record user activity failed")
		}
		plan := user.Plan
		if claimPlan := strings.ToLower(strings.TrimSpace(claims.Plan)); claimPlan != "" && claimPlan != plan {
			if errPlan := st.SetUserPlan(ctx, user.ID, claimPlan); errPlan != nil {
				log.WithError(errPlan).WithField("user_id", user.ID).Warn("sync user plan failed")
			} else {
				plan = claimPlan
			}
		}

		c.Set(contextUserID, user.ID)
		c.Set(contextClaims, claims)
		c.Set(contextPlan, plan)
		c.Next()
	}
}

// RequireAdmin rejects requests whose token does not carry the admin role.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user's id.
func UserID(c *gin.Context) (uint64, bool) {
	value, exists := c.Get(contextUserID)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint64)
	return id, ok && id != 0
}

// Claims returns the verified token claims, or nil.
func Claims(c *gin.Context) *security.Claims {
	value, exists := c.Get(contextClaims)
	if !exists {
		return nil
	}
	claims, _ := value.(*security.Claims)
	return claims
}

// UserPlan returns the subscription plan of the authenticated user.
func UserPlan(c *gin.Context) string {
	return c.GetString(contextPlan)
}
