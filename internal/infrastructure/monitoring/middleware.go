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

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		// Use the route template so path parameters do not explode label cardinality.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		metrics.RecordHTTPRequest(method, path, status, duration, reqSize, respSize)
	}
}

// Timer measures the duration of one audit run.
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// StartRun marks a worker as active and starts timing its run.
func StartRun(metrics *Metrics) *Timer {
	metrics.WorkerStarted()
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
	}
}

// Stop records the run with the given outcome label.
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordRun(outcome, duration)
	return duration
}
