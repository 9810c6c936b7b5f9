// Package audit defines the audit entry point contract used by workers, the
// artifact bundle an audit produces, and a registry for resolving entry points
// by name.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GriffinCanCode/auditrunner/internal/browser"
)

// Log levels passed to entry points.
const (
	LogLevelInfo    = "info"
	LogLevelVerbose = "verbose"
)

// Flags are the runtime flags handed to an entry point.
type Flags struct {
	Port     int    `json:"port"`
	LogLevel string `json:"logLevel"`
}

// Options carries the opaque audit config and the runtime flags.
type Options struct {
	Config json.RawMessage `json:"config,omitempty"`
	Flags  Flags           `json:"flags"`
}

// RunnerResult is what an entry point returns: the report and the raw
// artifacts it was computed from.
type RunnerResult struct {
	LHR       json.RawMessage
	Artifacts *Artifacts
}

// Artifacts is the raw data gathered during an audit.
//
// Small structured artifacts live in Gathered. Bulky binary payloads such as
// screenshots, traces and DOM snapshots live in Blobs and are persisted as
// separate files.
type Artifacts struct {
	RequestedURL string                     `json:"requestedUrl"`
	FinalURL     string                     `json:"finalUrl"`
	FetchTime    time.Time                  `json:"fetchTime"`
	Gathered     map[string]json.RawMessage `json:"gathered,omitempty"`
	Blobs        map[string][]byte          `json:"-"`
}

// EntryPoint runs one audit of target on an open page.
//
// A nil result with a nil error means the audit produced nothing; callers
// treat that as a failure.
type EntryPoint func(ctx context.Context, page browser.Page, target string, opts Options) (*RunnerResult, error)
