// Package main is the entry point of auditrunner.
//
// auditrunner audits a page in an isolated worker process. Each audit gets a
// fresh worker that launches its own browser, runs the audit and reports one
// message back; the parent captures the worker's output, enforces a deadline
// and reloads the saved artifacts.
//
// Usage:
//
//	# Audit one page and print the report
//	auditrunner run http://localhost:10200/online-only.html
//
//	# Serve audits over HTTP
//	auditrunner serve
//
//	# List the smoke tests a runner skips
//	auditrunner exclusions devtools-mcp
//
// Configuration comes from environment variables (see internal/infrastructure/config);
// flags override them.
//
// Signals:
//   - SIGINT, SIGTERM: running workers are killed and the server shuts down gracefully
package main
