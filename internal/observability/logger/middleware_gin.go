package logger

import (
	"strings"
	"time"

	"github.com/apipatb/earning-sub011/pkg/telemetry/correlation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GinMiddleware logs each ops request and seeds the correlation id from X-Request-Id.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := strings.TrimSpace(c.GetHeader(correlation.Header))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(correlation.Header, requestID)
		c.Request = c.Request.WithContext(correlation.WithID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.Error(lastErr.Err))
		}

		log := FromContext(c.Request.Context())
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("http.request", fields...)
		case status >= 400:
			log.Warn("http.request", fields...)
		default:
			log.Debug("http.request", fields...)
		}
	}
}
