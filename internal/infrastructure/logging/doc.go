// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Workers use NewStreams to log plain console lines onto their stdout and
// stderr streams, and the HTTP service uses Console to keep a transcript of
// everything a worker printed.
//
// Log Levels:
//   - Debug (alias "verbose"): Verbose debugging information
//   - Info: General informational messages
//   - Warn: Warning messages
//   - Error: Error messages
//
// Example Usage:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	logger.Info("Audit starting", zap.String("target", url))
//	logger.Error("Audit failed", zap.Error(err))
package logging
