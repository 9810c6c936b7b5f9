// Package config provides 12-factor configuration management for the audit runner.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, concurrent audit cap)
//   - Audit: Worker settings (chrome binary, headless, timeouts, temp dir)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, AUDIT_MAX_CONCURRENT
//   - AUDIT_CHROME_PATH, AUDIT_HEADLESS, AUDIT_ENTRY_POINT, AUDIT_TIMEOUT,
//     AUDIT_DRAIN_TIMEOUT, AUDIT_TEMP_DIR, AUDIT_IN_PROCESS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//
// Audit configuration files (the opaque per-run settings passed to workers)
// are read by LoadAuditConfig from JSON, YAML or TOML.
package config
