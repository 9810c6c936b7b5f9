package runner

import (
	"fmt"
	"strings"
	"time"
)

// WorkerFailure is returned when the worker reports a failure. Detail is the
// worker's flattened error text and Log holds every line it wrote.
type WorkerFailure struct {
	Detail string
	Log    string
}

func (e *WorkerFailure) Error() string {
	return withLog("worker returned an error: "+e.Detail, e.Log)
}

// ProtocolError is returned when the worker's message does not have the
// expected shape.
type ProtocolError struct {
	Reason string
	Raw    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("invalid response from worker (%s):\n%s", e.Reason, e.Raw)
}

// TimeoutError is returned when the wait for the worker's message was cut
// short by the run timeout or by cancellation. The worker has been killed.
type TimeoutError struct {
	After time.Duration
	Err   error
	Log   string
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("worker canceled: %v", e.Err)
	if e.After > 0 {
		msg = fmt.Sprintf("worker timed out after %s", e.After)
	}
	return withLog(msg, e.Log)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ExitError is returned when the worker ended without sending a message.
type ExitError struct {
	Err error
	Log string
}

func (e *ExitError) Error() string {
	msg := "worker exited without a message"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return withLog(msg, e.Log)
}

func (e *ExitError) Unwrap() error { return e.Err }

func withLog(msg, log string) string {
	if strings.TrimSpace(log) == "" {
		return msg
	}
	return msg + "\nLog:\n" + log
}
