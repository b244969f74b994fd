package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"meal_voucher/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestTraceMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		// 服务层只拿得到 context
		c.String(http.StatusOK, logger.TraceID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "trace-abc", w.Body.String())
	assert.Equal(t, "trace-abc", w.Header().Get(HeaderTraceID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(HeaderTraceID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())
}
