package middleware

import (
	"time"

	"syncplay/pkg/logger"
	"syncplay/pkg/tracing"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs one line per request, tagged with the trace
// and room ids when they are known. Install it after TracingMiddleware.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		if traceID := tracing.TraceID(ctx); traceID != "" {
			ctx = logger.WithTraceID(ctx, traceID)
		}
		if roomID := c.Param("room_id"); roomID != "" {
			ctx = logger.WithRoomID(ctx, roomID)
		}
		cl.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
