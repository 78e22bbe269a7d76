package responder

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID of a request
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Engine wraps r in a gin engine that sends every request, whatever its
// method or path, to r.Handle. Panics are logged and answered with 500.
func Engine(r *Responder, logger *slog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(
		requestID(),
		accessLog(logger),
		gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, err any) {
			logger.Error("Recovered from panic",
				"error", err,
				"request_id", c.GetString(requestIDKey),
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}),
	)
	engine.NoRoute(r.Handle)
	return engine
}

// requestID echoes an inbound X-Request-Id or assigns a new one
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("Served request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"duration", time.Since(start),
			"remote", c.ClientIP(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}
