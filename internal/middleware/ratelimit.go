package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"deviceguard/internal/ratelimit"
	"deviceguard/pkg/domain"
)

// RateLimit rejects a client address once l denies it.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Allow(c.ClientIP())
		if d.Allowed {
			c.Next()
			return
		}
		e := domain.RateLimited(d.RetryAfterSeconds(), "too many registrations from this address")
		c.Header("Retry-After", strconv.Itoa(e.RetryAfterSeconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.ErrorResponse{Error: e})
	}
}
