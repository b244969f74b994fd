package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestUserRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewKeyedRateLimiter(rate.Every(time.Hour), 2)

	r := gin.New()
	r.POST("/redeem", func(c *gin.Context) {
		c.Set(ContextUserID, c.GetHeader("X-User"))
		c.Next()
	}, UserRateLimitMiddleware(limiter), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	redeem := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/redeem", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, redeem("user-1"))
	assert.Equal(t, http.StatusNoContent, redeem("user-1"))
	assert.Equal(t, http.StatusTooManyRequests, redeem("user-1"))

	// 同一 IP 下的其他用户各自计数
	assert.Equal(t, http.StatusNoContent, redeem("user-2"))
}

func TestRateLimitMiddleware_ByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(NewKeyedRateLimiter(rate.Every(time.Hour), 1)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
