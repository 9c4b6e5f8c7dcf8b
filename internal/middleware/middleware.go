// Package middleware provides the gin middleware chain shared by every
// streamgate route: request IDs, structured access logging, panic recovery
// and permissive CORS.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nearhome/streamgate/internal/logging"
)

// RequestID stamps every request with an X-Request-ID, reusing one supplied
// by the caller if present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// AccessLog emits one structured log line per request.
func AccessLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithFields(logging.Fields{
			"request_id": c.GetString("request_id"),
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"tenant_id":  c.Param("tenantId"),
			"camera_id":  c.Param("cameraId"),
		}).Info("http request")
	}
}

// Recovery converts a panic into a 500 response instead of killing the process.
func Recovery(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logging.Fields{
					"error":      r,
					"request_id": c.GetString("request_id"),
					"path":       c.Request.URL.Path,
				}).Error("request handler panic")
				c.AbortWithStatusJSON(500, gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// CORS applies a permissive cross-origin policy; playback clients are
// browsers embedding <video> players against arbitrary tenant domains.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
