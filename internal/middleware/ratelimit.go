package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Limiter 是固定窗口计数器
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 返回一个 Gin 中间件，基于客户端 IP 做速率限制。
// maxRequests: 在 window 时间窗口内允许的最大请求数。
func RateLimit(limiter Limiter, maxRequests int, window time.Duration) gin.HandlerFunc {
	if limiter == nil {
		panic("Limiter cannot be nil for RateLimit middleware")
	}
	if maxRequests <= 0 {
		panic("maxRequests must be positive for RateLimit middleware")
	}
	if window <= 0 {
		panic("window duration must be positive for RateLimit middleware")
	}

	return func(c *gin.Context) {
		// 服务在反向代理后面时需要配置 gin 的 TrustedProxies 才能拿到真实 IP
		allowed, err := limiter.Allow(c.Request.Context(), c.ClientIP(), maxRequests, window)
		if err != nil {
			logrus.WithError(err).Error("RateLimit: Limiter failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Rate limiting error"})
			c.Abort()
			return
		}
		if !allowed {
			c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds()+0.5)))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
