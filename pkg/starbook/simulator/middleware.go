package simulator

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggingMiddleware logs every command with the payload the simulator answered.
// Replies are logged at debug level; the firmware always answers 200 so the
// status code carries no information.
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		payload, _ := c.Get("payload")
		logger.Debug("Command served",
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Any("payload", payload),
			zap.Duration("duration", time.Since(start)))
	}
}

// RecoveryMiddleware turns a handler panic into an ERROR page.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered in request handler",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path))

				writePage(c, http.StatusInternalServerError, replyError)
				c.Abort()
			}
		}()

		c.Next()
	}
}
