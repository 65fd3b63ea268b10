package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"go-gin-flight-booking/internal/cache"
	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	UserIDHeader = "X-User-ID"
	userIDKey    = "userID"

	BookingRateLimitMessage = "Too many booking requests, please try again later."
	SearchRateLimitMessage  = "Too many search requests, please try again later."
)

// RequireUser 由閘道注入 X-User-ID；缺少時回 401
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RateLimit 以 client IP 計數；超過額度回 429，limiter 出錯時放行
func RateLimit(limiter cache.RateLimiter, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := limiter.Allow(c, c.ClientIP())
		if err != nil {
			logger.WithComponent("http").Warn("Rate limiter unavailable, allowing request",
				zap.String("path", c.FullPath()),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message})
			return
		}
		c.Next()
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}

// Prometheus 記錄請求數與延遲；path 使用路由樣板避免 label 爆量
func Prometheus(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		log := logger.WithComponent("http")
		switch {
		case status >= 500:
			log.Error("server error", fields...)
		case status >= 400:
			log.Warn("client error", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
