/*
Package monitoring provides Prometheus metrics for audit runs and the HTTP
service.

# Overview

Every audit run marks a worker active, then records its outcome and
duration when it settles. Lines captured from worker streams are counted per
stream. The HTTP service adds request metrics through a Gin middleware.

# Usage

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.StartRun(metrics)
	// ... run the audit ...
	timer.Stop(monitoring.OutcomeSuccess)

A nil *Metrics is valid and records nothing, so callers that do not export
metrics can skip the collector entirely.

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
*/
package monitoring
