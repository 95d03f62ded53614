package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/monitoring"
	"github.com/arc-sentinel/sentinel-core/pkg/cache"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const defaultAuthAttemptsPerMinute = 10

// AuthRateLimit bounds credential-guessing by client IP using a one-minute
// cache counter. An unavailable counter fails open.
func AuthRateLimit(counters cache.Cache, maxPerMinute int, log logger.Logger) gin.HandlerFunc {
	if maxPerMinute <= 0 {
		maxPerMinute = defaultAuthAttemptsPerMinute
	}

	return func(c *gin.Context) {
		key := "ratelimit:auth:" + c.ClientIP()
		count, err := counters.Increment(c.Request.Context(), key, time.Minute)
		if err != nil {
			log.Warn("rate limit counter unavailable", "error", err)
			c.Next()
			return
		}

		if count > int64(maxPerMinute) {
			monitoring.RecordAuthAttempt("rate_limited")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many authentication attempts, try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
