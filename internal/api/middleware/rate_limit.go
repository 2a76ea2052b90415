package middleware

import (
	"fmt"
	"net/http"
	"time"

	"task-notify/internal/services"
	"task-notify/pkg/logger"
	"task-notify/pkg/response"

	"github.com/gin-gonic/gin"
)

type RateLimitMiddleware struct {
	limiter *services.RateLimiter
	logger  *logger.Logger
}

func NewRateLimitMiddleware(limiter *services.RateLimiter, log *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  log,
	}
}

// RateLimit limits authenticated routes per user and endpoint.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, response.AuthUnauthorized)
			return
		}
		rm.check(c, fmt.Sprintf("rate_limit:%d:%s", userID, c.FullPath()), requests, window)
	}
}

// RateLimitIP limits public routes per client IP and endpoint.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		rm.check(c, fmt.Sprintf("rate_limit_ip:%s:%s", c.ClientIP(), c.FullPath()), requests, window)
	}
}

func (rm *RateLimitMiddleware) check(c *gin.Context, key string, requests int, window time.Duration) {
	allowed, err := rm.limiter.Allow(c.Request.Context(), key, requests, window)
	if err != nil {
		// fail open on Redis errors
		rm.logger.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}

	if !allowed {
		response.Fail(c, http.StatusTooManyRequests, response.ErrCodeRateLimited)
		return
	}

	c.Next()
}
