package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/docsync/internal/domain"
)

// UserIDHeader carries the caller identity recorded in access logs
const UserIDHeader = "X-User-ID"

// Recorder accepts access-log events without blocking
type Recorder interface {
	Record(event *domain.AccessLogEvent) bool
}

// Logger returns a middleware that logs requests
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"client_ip", c.ClientIP(),
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

// AccessLog returns a middleware that hands every served request to recorder.
// A full queue never delays the response.
func AccessLog(recorder Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		event := &domain.AccessLogEvent{
			UserID:     c.GetHeader(UserIDHeader),
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Path:       c.Request.URL.Path,
			Method:     c.Request.Method,
			StatusCode: c.Writer.Status(),
			Latency:    time.Since(start),
			OccurredAt: start.UTC(),
		}
		if id := c.Param("id"); id != "" {
			event.ResourceType = "repository"
			event.ResourceID = id
		}
		recorder.Record(event)
	}
}

// CORS returns a middleware that handles CORS
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+UserIDHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Recovery returns a middleware that recovers from panics
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
