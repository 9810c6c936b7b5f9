package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/auditrunner/internal/api/middleware"
	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/auditrunner/internal/runner"
	"github.com/GriffinCanCode/auditrunner/internal/shared/id"
)

// AuditRequest is the body of POST /v1/audits.
type AuditRequest struct {
	URL      string          `json:"url" binding:"required"`
	Config   json.RawMessage `json:"config,omitempty"`
	Headless *bool           `json:"headless,omitempty"`
	Verbose  bool            `json:"verbose"`
	// Timeout is a Go duration such as "90s". Empty uses the server default.
	Timeout string `json:"timeout,omitempty"`
	// RunID lets a client pick the ID up front and watch
	// /v1/audits/:runId/log while the audit runs. Empty generates one.
	RunID string `json:"runId,omitempty"`
}

// AuditResponse is returned for a successful audit.
type AuditResponse struct {
	RunID     string          `json:"runId"`
	StartedAt time.Time       `json:"startedAt"`
	LHR       json.RawMessage `json:"lhr"`
	Artifacts ArtifactSummary `json:"artifacts"`
	Log       []string        `json:"log,omitempty"`
}

// ArtifactSummary describes the artifacts without their binary payloads.
type ArtifactSummary struct {
	RequestedURL string                     `json:"requestedUrl"`
	FinalURL     string                     `json:"finalUrl"`
	FetchTime    time.Time                  `json:"fetchTime"`
	Gathered     map[string]json.RawMessage `json:"gathered,omitempty"`
	Blobs        []BlobSummary              `json:"blobs,omitempty"`
}

// BlobSummary names one binary artifact and its size.
type BlobSummary struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// ErrorResponse is returned for failed audits.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Detail string   `json:"detail,omitempty"`
	Log    []string `json:"log,omitempty"`
}

// RunAudit runs one audit and waits for its outcome.
func (h *Handlers) RunAudit(c *gin.Context) {
	var req AuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid audit request", Kind: "validation", Detail: err.Error()})
		return
	}
	if err := validateTarget(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid url", Kind: "validation", Detail: err.Error()})
		return
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid config", Kind: "validation"})
		return
	}

	opts := runner.Options{Headless: h.headless, Verbose: req.Verbose}
	if req.Headless != nil {
		opts.Headless = *req.Headless
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid timeout", Kind: "validation", Detail: req.Timeout})
			return
		}
		opts.Timeout = d
	}
	opts.RunID = id.RunID(req.RunID)
	if req.RunID == "" {
		opts.RunID = id.NewRunID()
	} else if !strings.HasPrefix(req.RunID, id.RunPrefix+"_") || !id.IsValid(req.RunID) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid runId", Kind: "validation", Detail: req.RunID})
		return
	}

	if !h.slots.TryAcquire(1) {
		h.metrics.IncRejected()
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "all audit workers are busy", Kind: "capacity"})
		return
	}
	defer h.slots.Release(1)

	stream, err := h.logs.Open(string(opts.RunID))
	if err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "run is already in progress", Kind: "conflict", Detail: string(opts.RunID)})
		return
	}
	defer stream.Close()

	logger := h.logger.With(zap.String("request_id", middleware.GetRequestID(c)))
	console := logging.NewConsole(logger)
	lines := tee{console, stream}

	var out *runner.Outcome
	err = h.breaker.Do(func() error {
		var err error
		out, err = h.runner.Run(c.Request.Context(), req.URL, req.Config, lines, opts)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "workers are failing to start", Kind: "unavailable"})
		return
	}
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, body)
		return
	}

	resp := AuditResponse{
		RunID:     string(out.RunID),
		StartedAt: out.StartedAt(),
		LHR:       out.LHR,
		Artifacts: summarize(out),
	}
	if req.Verbose {
		resp.Log = console.Lines()
	}
	c.Header("X-Run-Id", resp.RunID)
	c.JSON(http.StatusOK, resp)
}

// WorkerFault reports whether err means workers could not be started or
// died without reporting. Breakers use it to tell infrastructure trouble from
// audits that failed on their own. A bundle that could not be reloaded is the
// orchestrator's problem and does not count.
func WorkerFault(err error) bool {
	if err == nil {
		return false
	}
	var (
		failure  *runner.WorkerFailure
		protoErr *runner.ProtocolError
		timeout  *runner.TimeoutError
	)
	switch {
	case errors.As(err, &failure), errors.As(err, &protoErr), errors.As(err, &timeout):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, artifacts.ErrCorrupt), errors.Is(err, fs.ErrNotExist):
		return false
	}
	return true
}

func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func summarize(out *runner.Outcome) ArtifactSummary {
	a := out.Artifacts
	if a == nil {
		return ArtifactSummary{}
	}
	s := ArtifactSummary{
		RequestedURL: a.RequestedURL,
		FinalURL:     a.FinalURL,
		FetchTime:    a.FetchTime,
		Gathered:     a.Gathered,
	}
	for name, data := range a.Blobs {
		s.Blobs = append(s.Blobs, BlobSummary{Name: name, Size: len(data)})
	}
	sort.Slice(s.Blobs, func(i, j int) bool { return s.Blobs[i].Name < s.Blobs[j].Name })
	return s
}

func errorResponse(err error) (int, ErrorResponse) {
	var (
		failure  *runner.WorkerFailure
		protoErr *runner.ProtocolError
		timeout  *runner.TimeoutError
		exit     *runner.ExitError
	)
	switch {
	case errors.As(err, &failure):
		return http.StatusBadGateway, ErrorResponse{
			Error:  "audit failed",
			Kind:   "worker",
			Detail: failure.Detail,
			Log:    splitLog(failure.Log),
		}
	case errors.As(err, &protoErr):
		return http.StatusBadGateway, ErrorResponse{
			Error:  "invalid response from worker",
			Kind:   "protocol",
			Detail: protoErr.Reason,
		}
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error:  "audit timed out",
			Kind:   "timeout",
			Detail: firstLine(timeout.Error()),
			Log:    splitLog(timeout.Log),
		}
	case errors.As(err, &exit):
		return http.StatusBadGateway, ErrorResponse{
			Error:  "worker exited without a result",
			Kind:   "exit",
			Detail: firstLine(exit.Error()),
			Log:    splitLog(exit.Log),
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:  "audit could not run",
			Kind:   "internal",
			Detail: err.Error(),
		}
	}
}

func splitLog(log string) []string {
	log = strings.TrimRight(log, "\n")
	if log == "" {
		return nil
	}
	return strings.Split(log, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
