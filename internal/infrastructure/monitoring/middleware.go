package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures operation duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	domain  string
	method  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, domain, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		domain:  domain,
		method:  method,
	}
}

// Stop stops the timer and records the call under the outcome of err.
func (t *Timer) Stop(err error) time.Duration {
	d := time.Since(t.start)
	t.metrics.RecordCall(t.domain, t.method, Status(err), d)
	return d
}
