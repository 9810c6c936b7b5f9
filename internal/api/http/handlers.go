// Package http exposes the audit runner over HTTP.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/GriffinCanCode/auditrunner/internal/exclusions"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/auditrunner/internal/logstream"
	"github.com/GriffinCanCode/auditrunner/internal/runner"
)

// AuditRunner runs one audit. *runner.Runner implements it.
type AuditRunner interface {
	Run(ctx context.Context, target string, config json.RawMessage, logger runner.Logger, opts runner.Options) (*runner.Outcome, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	runner     AuditRunner
	exclusions exclusions.Table
	metrics    *monitoring.Metrics
	logger     *logging.Logger
	slots      *semaphore.Weighted
	breaker    *resilience.Breaker
	logs       *logstream.Hub
	logWait    time.Duration
	headless   bool
	started    time.Time
}

// Options configures Handlers.
type Options struct {
	// MaxConcurrent caps the audits running at once. Requests beyond it are
	// rejected rather than queued.
	MaxConcurrent int64
	// Headless is used when a request does not say.
	Headless bool
	// Breaker guards worker startup. Nil disables it.
	Breaker *resilience.Breaker
	// LogHub carries live worker lines to log watchers. Nil creates one.
	LogHub *logstream.Hub
	// LogWait bounds how long a watcher waits for its run to start.
	LogWait time.Duration
}

// NewHandlers creates a new handlers instance
func NewHandlers(r AuditRunner, table exclusions.Table, metrics *monitoring.Metrics, logger *logging.Logger, opts Options) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	if table == nil {
		table = exclusions.Default()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.LogHub == nil {
		opts.LogHub = logstream.NewHub(0)
	}
	if opts.LogWait <= 0 {
		opts.LogWait = DefaultLogWait
	}
	return &Handlers{
		runner:     r,
		exclusions: table,
		metrics:    metrics,
		logger:     logger,
		slots:      semaphore.NewWeighted(opts.MaxConcurrent),
		breaker:    opts.Breaker,
		logs:       opts.LogHub,
		logWait:    opts.LogWait,
		headless:   opts.Headless,
		started:    time.Now(),
	}
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "auditrunner",
		"runner":  runner.Name,
		"endpoints": []string{
			"POST /v1/audits",
			"GET /v1/audits/:runId/log",
			"GET /v1/exclusions",
			"GET /v1/exclusions/:runner",
			"GET /health",
			"GET /metrics",
			"GET /metrics/json",
		},
	})
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"active_workers": h.metrics.Snapshot().ActiveWorkers,
		"workers":        h.breaker.State().String(),
	})
}

// MetricsJSON returns the metrics snapshot.
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
