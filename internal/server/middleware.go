// ABOUTME: gin middleware for request logging and metrics
// ABOUTME: Logs each request at a level chosen by status and records Prometheus samples
package server

import (
	"time"

	"github.com/Resonate-Protocol/netclock-go/internal/metrics"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/gin-gonic/gin"
)

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := routePath(c)
		line := "%s %s %d %v client=%s bytes=%d"
		args := []interface{}{c.Request.Method, path, status, time.Since(start), c.ClientIP(), c.Writer.Size()}

		switch {
		case status >= 500:
			log.Error(line, args...)
		case status >= 400:
			log.Warning(line, args...)
		default:
			log.Debug(line, args...)
		}
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		m.ObserveHTTP(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// requestCounter feeds the request total shown in the TUI
func (s *Server) requestCounter() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.requests.Add(1)
		s.updateTUI()
	}
}

// routePath prefers the matched route so unknown paths don't explode label cardinality
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
