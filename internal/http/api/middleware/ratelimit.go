package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/ratelimit"
)

// RequestLimiter counts one request for key against limit.
type RequestLimiter interface {
	Allow(ctx context.Context, key string, limit int) (ratelimit.Result, error)
}

// RateLimit throttles authenticated users by their subscription plan. It must run
// after UserAuth. Limiter errors let the request through.
func RateLimit(limiter RequestLimiter, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		userID, ok := UserID(c)
		if !ok {
			c.Next()
			return
		}
		limit := policy.LimitFor(UserPlan(c))
		if limit <= 0 {
			c.Next()
			return
		}

		result, errAllow := limiter.Allow(c.Request.Context(), ratelimit.KeyForUser(userID), limit)
		if errAllow != nil {
			log.WithError(errAllow).WithField("user_id", userID).Warn("rate limit check failed")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
