package middleware

import (
	"meal_voucher/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextTraceID = "traceID"
	HeaderTraceID  = "X-Trace-ID"
)

// TraceMiddleware 请求追踪ID，同时写入请求 context，服务层日志据此关联同一次核销或退款
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		c.Set(ContextTraceID, traceID)
		c.Header(HeaderTraceID, traceID)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))

		c.Next()
	}
}
