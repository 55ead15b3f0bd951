package http

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/taskflow/internal/infrastructure/metrics"
)

const (
	// HeaderUserID carries the acting user's id, set by the authenticating proxy
	HeaderUserID = "X-User-ID"

	// HeaderRequestID correlates a request across logs
	HeaderRequestID = "X-Request-ID"

	ctxKeyUserID    = "user_id"
	ctxKeyRequestID = "request_id"
)

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxKeyRequestID),
		)
	}
}

// metricsMiddleware observes request latency by route template
func metricsMiddleware(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		recorder.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// userMiddleware requires the acting user header on API routes
func userMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			unauthorized(c, "missing "+HeaderUserID+" header")
			c.Abort()
			return
		}
		c.Set(ctxKeyUserID, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxKeyUserID)
}
