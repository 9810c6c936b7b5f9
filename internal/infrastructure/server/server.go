// Package server assembles the HTTP service around an audit runner.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/auditrunner/internal/api/http"
	"github.com/GriffinCanCode/auditrunner/internal/api/middleware"
	"github.com/GriffinCanCode/auditrunner/internal/exclusions"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/resilience"
)

// ShutdownTimeout bounds the wait for in-flight audits on shutdown.
const ShutdownTimeout = 30 * time.Second

// Deps are the components the server exposes.
type Deps struct {
	Runner     apihttp.AuditRunner
	Exclusions exclusions.Table
	Metrics    *monitoring.Metrics
	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(deps.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	var breaker *resilience.Breaker
	if cfg.Audit.BreakerThreshold > 0 {
		breaker = resilience.New("workers", resilience.Settings{
			Threshold: cfg.Audit.BreakerThreshold,
			Cooldown:  cfg.Audit.BreakerCooldown,
			IsFailure: apihttp.WorkerFault,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("Circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		})
	}

	handlers := apihttp.NewHandlers(deps.Runner, deps.Exclusions, deps.Metrics, logger, apihttp.Options{
		MaxConcurrent: cfg.Server.MaxConcurrent,
		Headless:      cfg.Audit.Headless,
		Breaker:       breaker,
		LogWait:       cfg.Server.LogStreamWait,
	})

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/metrics/json", handlers.MetricsJSON)

	v1 := router.Group("/v1")
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		if rl := cfg.RateLimit; rl.GlobalRequestsPerSecond > 0 {
			logger.Info("Server-wide rate limit enabled",
				zap.Int("rps", rl.GlobalRequestsPerSecond),
				zap.Int("burst", rl.GlobalBurst),
			)
			v1.Use(middleware.GlobalRateLimit(middleware.RateLimitConfig{
				RequestsPerSecond: rl.GlobalRequestsPerSecond,
				Burst:             rl.GlobalBurst,
			}))
		}
		v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	v1.POST("/audits", handlers.RunAudit)
	v1.GET("/audits/:runId/log", handlers.StreamLog)
	v1.GET("/exclusions", handlers.ListExclusions)
	v1.GET("/exclusions/:runner", handlers.GetExclusions)

	logger.Info("Server initialized",
		zap.Int64("max_concurrent", cfg.Server.MaxConcurrent),
		zap.Bool("headless", cfg.Audit.Headless),
	)

	return &Server{
		router:  router,
		logger:  logger,
		config:  cfg,
		metrics: deps.Metrics,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Graceful shutdown failed", zap.Error(err))
		return err
	}
	s.logger.Sync()
	return nil
}
