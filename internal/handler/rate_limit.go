package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careloop/rpm-auth/internal/dto"
	"github.com/careloop/rpm-auth/internal/service"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware throttles brute-force-prone endpoints (login and OTP
// verification). When the limiter backend is unreachable the request is let
// through rather than locking everyone out.
func RateLimitMiddleware(rateLimiter *service.RateLimiter, limit int, window time.Duration, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		allowed, err := rateLimiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			if strings.Contains(err.Error(), "rate limit exceeded") {
				writeRateLimited(c, rateLimiter, key, limit, window, err.Error())
				return
			}
			c.Next()
			return
		}

		if !allowed {
			writeRateLimited(c, rateLimiter, key, limit, window, "Rate limit exceeded")
			return
		}

		remaining, _ := rateLimiter.GetRemainingRequests(c.Request.Context(), key, limit, window)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

func writeRateLimited(c *gin.Context, rateLimiter *service.RateLimiter, key string, limit int, window time.Duration, message string) {
	remaining, _ := rateLimiter.GetRemainingRequests(c.Request.Context(), key, limit, window)
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

	c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
		Error:   "Too Many Requests",
		Message: message,
	})
	c.Abort()
}

// IPBasedKey extracts the rate limit key from the client IP. Identifier-based
// keys would let an attacker spread attempts across accounts, so the edge
// throttle is per source address.
func IPBasedKey(c *gin.Context) string {
	ip := c.GetHeader("X-Forwarded-For")
	if ip != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(ip, ",")
		return strings.TrimSpace(ips[0])
	}
	return c.ClientIP()
}
