package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeProtocol = "protocol_error"
	OutcomeTimeout  = "timeout"
	OutcomeExit     = "exit"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Audit metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	WorkersActive prometheus.Gauge
	LogLines      *prometheus.CounterVec
	Rejected      prometheus.Counter

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests int64   `json:"totalRequests"`
	TotalErrors   int64   `json:"totalErrors"`
	RunsStarted   int64   `json:"runsStarted"`
	RunsSucceeded int64   `json:"runsSucceeded"`
	RunsFailed    int64   `json:"runsFailed"`
	ActiveWorkers int64   `json:"activeWorkers"`
	TotalRunTime  float64 `json:"totalRunSeconds"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// NewMetrics creates a metrics collector registered with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditrunner_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditrunner_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditrunner_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditrunner_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Audit metrics
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditrunner_runs_total",
				Help: "Total number of audit runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auditrunner_run_duration_seconds",
				Help:    "Audit run duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "auditrunner_workers_active",
				Help: "Number of running audit workers",
			},
		),
		LogLines: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auditrunner_worker_log_lines_total",
				Help: "Diagnostic lines captured from workers",
			},
			[]string{"stream"},
		),
		Rejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "auditrunner_runs_rejected_total",
				Help: "Audit requests rejected because every worker slot was busy",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "auditrunner_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// WorkerStarted marks a worker as running.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.WorkersActive.Inc()
	m.mu.Lock()
	m.snapshot.RunsStarted++
	m.snapshot.ActiveWorkers++
	m.mu.Unlock()
}

// RecordRun records a finished run and releases its worker.
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WorkersActive.Dec()
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(outcome).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.ActiveWorkers--
	m.snapshot.TotalRunTime += duration.Seconds()
	if outcome == OutcomeSuccess {
		m.snapshot.RunsSucceeded++
	} else {
		m.snapshot.RunsFailed++
	}
	m.mu.Unlock()
}

// RecordLogLine counts one captured diagnostic line.
func (m *Metrics) RecordLogLine(stream string) {
	if m == nil {
		return
	}
	m.LogLines.WithLabelValues(stream).Inc()
}

// IncRejected counts a request turned away for lack of capacity.
func (m *Metrics) IncRejected() {
	if m == nil {
		return
	}
	m.Rejected.Inc()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
