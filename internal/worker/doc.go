// Package worker is the code that runs inside an isolated audit worker.
//
// A worker launches its own browser, runs one audit entry point, persists the
// gathered artifacts to a temporary directory and reports a single terminal
// message. It never shares memory with the orchestrator: in the subprocess
// deployment Main reads the request from stdin and writes the message to a
// dedicated pipe, while stdout and stderr carry diagnostics only.
package worker
