package middleware

import (
	"net/http"
	"sync"

	"meal_voucher/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyedRateLimiter 按键 (IP 或用户) 分配令牌桶
type KeyedRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewKeyedRateLimiter r: 每秒令牌数, b: 桶容量
func NewKeyedRateLimiter(r rate.Limit, b int) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        r,
		b:        b,
	}
}

// GetLimiter 获取指定键的限流器
func (l *KeyedRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[key] = limiter
	}
	return limiter
}

// RateLimitMiddleware 全局按 IP 限流
func RateLimitMiddleware(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return limitBy(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// UserRateLimitMiddleware 按登录用户限流，需放在 AuthMiddleware 之后
// 核销接口用它挡住同一账号的连点，未登录时退回按 IP
func UserRateLimitMiddleware(limiter *KeyedRateLimiter) gin.HandlerFunc {
	return limitBy(limiter, func(c *gin.Context) string {
		if userID := GetUserID(c); userID != "" {
			return "user:" + userID
		}
		return "ip:" + c.ClientIP()
	})
}

func limitBy(limiter *KeyedRateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.GetLimiter(key(c)).Allow() {
			response.Error(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
