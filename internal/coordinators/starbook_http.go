package coordinators

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/pkg/healthcheck"
)

// setupRouter wires the ops endpoints:
//
//	GET  /healthz       aggregated health, 503 unless healthy
//	GET  /diagnostics   last exchange plus recent journal entries
//	GET  /metrics       Prometheus exposition (when metrics are configured)
//	POST /ops/:op       run an operation with a JSON body, same reply as MQTT
func (c *StarbookCoordinator) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(c.Logger()))

	router.GET("/healthz", c.handleHealth)
	router.GET("/diagnostics", c.handleDiagnostics)
	if c.config.Metrics != nil {
		router.GET("/metrics", gin.WrapH(c.config.Metrics.Handler()))
	}
	router.POST("/ops/:op", c.handleOperation)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (c *StarbookCoordinator) handleHealth(ctx *gin.Context) {
	result := c.HealthEngine().Last()
	if result == nil || ctx.Query("refresh") == "true" {
		result = c.HealthEngine().CheckAll(ctx.Request.Context())
	}

	status := http.StatusOK
	if result.OverallStatus != healthcheck.StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, result)
}

func (c *StarbookCoordinator) handleDiagnostics(ctx *gin.Context) {
	resp := gin.H{
		"mount":       c.config.MountName,
		"running":     c.IsRunning(),
		"diagnostics": c.Diagnostics(),
	}

	if c.config.Recorder != nil {
		entries, err := c.config.Recorder.Recent(ctx.Request.Context(), c.config.DiagnosticsLimit)
		if err != nil {
			c.Logger().Warn("Failed to read journal", zap.Error(err))
			resp["journal_error"] = err.Error()
		} else {
			resp["journal"] = entries
		}
	}

	ctx.JSON(http.StatusOK, resp)
}

func (c *StarbookCoordinator) handleOperation(ctx *gin.Context) {
	op := ctx.Param("op")
	if _, ok := operations[op]; !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"success": false, "error": "unknown operation " + op})
		return
	}

	body, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, c.Dispatch(ctx.Request.Context(), op, body))
}
