package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrContext is returned when worker code runs outside a worker.
	ErrContext = errors.New("must be called in worker")
	// ErrNoResult is returned when an audit completes without a usable result.
	ErrNoResult = errors.New("no runner result")
)

// LaunchError reports a failure to start or reach the browser.
type LaunchError struct {
	Stage string // "launch", "connect" or "page"
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser %s failed: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// AuditFault reports an error raised by the audit entry point.
type AuditFault struct {
	EntryPoint string
	Err        error
}

func (e *AuditFault) Error() string {
	return fmt.Sprintf("audit %s failed: %v", e.EntryPoint, e.Err)
}

func (e *AuditFault) Unwrap() error { return e.Err }
