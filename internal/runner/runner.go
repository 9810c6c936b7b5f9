package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/audit"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/auditrunner/internal/protocol"
	"github.com/GriffinCanCode/auditrunner/internal/shared/id"
)

// Name is the runner's key in the exclusion table.
const Name = "devtools-mcp"

// DefaultDrainTimeout bounds the wait for worker streams to reach EOF after
// the message arrived.
const DefaultDrainTimeout = 2 * time.Second

// Logger receives every captured diagnostic line as it arrives.
type Logger interface {
	Log(line string)
}

// Options tunes one invocation. The zero value runs headful, non-verbose and
// with the runner's default timeout.
type Options struct {
	Headless bool
	Verbose  bool
	// Timeout bounds the wait for the worker's message. Zero uses the runner
	// default; a negative value disables the deadline.
	Timeout time.Duration
	// RunID names the invocation. Empty generates one.
	RunID id.RunID
}

// Outcome is a successful audit: the report and the artifacts reloaded from
// the worker's assets directory, which no longer exists.
type Outcome struct {
	RunID     id.RunID
	LHR       json.RawMessage
	Artifacts *audit.Artifacts
}

// StartedAt reads the start time back from the run ID. It is zero when the ID
// is not a run ID.
func (o *Outcome) StartedAt() time.Time {
	t, err := id.Timestamp(string(o.RunID))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Runner drives audits through isolated workers. It holds no per-invocation
// state, so concurrent calls to Run are independent.
type Runner struct {
	spawner      Spawner
	store        artifacts.Store
	logger       *logging.Logger
	metrics      *monitoring.Metrics
	timeout      time.Duration
	drainTimeout time.Duration
	entryPoint   string
	tempDir      string
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's own logger. Callers that pass no Logger to Run
// get lines forwarded here.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics enables run metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTimeout sets the default deadline for a worker's message.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithDrainTimeout sets how long to wait for the streams after the message.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) { r.drainTimeout = d }
}

// WithEntryPoint selects the audit entry point run by workers.
func WithEntryPoint(name string) Option {
	return func(r *Runner) { r.entryPoint = name }
}

// WithTempDir sets the parent directory of worker assets directories.
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// New creates a runner that starts workers through spawner and reloads their
// artifacts from store.
func New(spawner Spawner, store artifacts.Store, opts ...Option) *Runner {
	r := &Runner{
		spawner:      spawner,
		store:        store,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = artifacts.NewDiskStore()
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.drainTimeout <= 0 {
		r.drainTimeout = DefaultDrainTimeout
	}
	return r
}

// Run audits target in a fresh worker.
//
// Worker output is captured line by line, tagged with its stream and passed
// to logger as it arrives; a nil logger forwards to the runner's zap logger.
// A failure reported by the worker is returned as *WorkerFailure carrying the
// whole captured log. A malformed message yields *ProtocolError, a missed
// deadline *TimeoutError and a worker that dies silently *ExitError.
//
// Each worker gets a private directory under the runner's temp dir and puts
// its assets directory there. It is removed before Run returns, and again
// once an aborted worker has stopped, together with any assets directory the
// aborted worker still reports.
func (r *Runner) Run(ctx context.Context, target string, config json.RawMessage, logger Logger, opts Options) (*Outcome, error) {
	runID := opts.RunID
	if runID == "" {
		runID = id.NewRunID()
	}
	zl := r.logger.With(zap.String("run_id", string(runID)), zap.String("target", target))
	if logger == nil {
		logger = zapLogger{zl}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = r.timeout
	}

	req := protocol.Request{
		Target:     target,
		Config:     config,
		Options:    protocol.Options{Headless: opts.Headless, Verbose: opts.Verbose},
		EntryPoint: r.entryPoint,
		TempDir:    r.tempDir,
	}

	timer := monitoring.StartRun(r.metrics)
	zl.Info("Starting audit worker", zap.Bool("headless", opts.Headless), zap.Duration("timeout", timeout))

	out, err := r.run(ctx, req, logger, timeout)
	outcome := OutcomeLabel(err)
	elapsed := timer.Stop(outcome)

	if err != nil {
		zl.Warn("Audit failed", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed), zap.Error(firstLine(err)))
		return nil, err
	}
	out.RunID = runID
	zl.Info("Audit succeeded", zap.Duration("elapsed", elapsed))
	return out, nil
}

func (r *Runner) run(ctx context.Context, req protocol.Request, logger Logger, timeout time.Duration) (*Outcome, error) {
	runDir, err := os.MkdirTemp(req.TempDir, "auditrunner-run-")
	if err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	defer r.removeAssets(runDir)
	req.TempDir = runDir

	w, err := r.spawner.Spawn(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}
	defer w.Close()

	sink := NewLogSink()
	var g errgroup.Group
	g.Go(func() error { return r.pump(w.Stdout(), Stdout, sink, logger) })
	g.Go(func() error { return r.pump(w.Stderr(), Stderr, sink, logger) })
	drained := make(chan struct{})
	go func() {
		g.Wait()
		close(drained)
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	var (
		d  Delivery
		ok bool
	)
	select {
	case d, ok = <-w.Messages():
	case <-deadline:
		r.abort(w, drained, runDir)
		return nil, &TimeoutError{After: timeout, Err: context.DeadlineExceeded, Log: sink.Text()}
	case <-ctx.Done():
		r.abort(w, drained, runDir)
		return nil, &TimeoutError{Err: ctx.Err(), Log: sink.Text()}
	}

	r.settle(w, drained)

	if !ok {
		return nil, &ExitError{Err: r.exitStatus(w), Log: sink.Text()}
	}
	if d.Err != nil {
		return nil, &ProtocolError{Reason: d.Err.Error(), Raw: string(d.Raw)}
	}

	msg := d.Message
	if msg.IsFailure() {
		return nil, &WorkerFailure{Detail: msg.Detail, Log: sink.Text()}
	}
	if err := msg.Validate(); err != nil {
		if msg.Result != nil && msg.Result.AssetsDir != "" {
			r.removeAssets(msg.Result.AssetsDir)
		}
		return nil, &ProtocolError{Reason: err.Error(), Raw: msg.String()}
	}

	dir := msg.Result.AssetsDir
	defer r.removeAssets(dir)

	loaded, err := r.store.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	return &Outcome{LHR: msg.Result.LHR, Artifacts: loaded}, nil
}

// pump copies one stream into the sink and the logger until EOF.
func (r *Runner) pump(src io.Reader, stream Stream, sink *LogSink, logger Logger) error {
	br := bufio.NewReader(src)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			logger.Log(sink.Append(stream, line))
			r.metrics.RecordLogLine(stream.String())
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// settle gives the streams a bounded time to finish after the message, then
// kills the worker.
func (r *Runner) settle(w Worker, drained <-chan struct{}) {
	t := time.NewTimer(r.drainTimeout)
	defer t.Stop()
	select {
	case <-drained:
	case <-t.C:
		r.logger.Warn("Worker streams still open after message, killing worker")
		w.Kill()
	}
}

// abort kills the worker and collects what is left of its output. The
// worker may still deliver a message or write assets after this returns, so
// reap cleans up behind it.
func (r *Runner) abort(w Worker, drained <-chan struct{}, runDir string) {
	w.Kill()
	go r.reap(w, runDir)
	t := time.NewTimer(r.drainTimeout)
	defer t.Stop()
	select {
	case <-drained:
	case <-t.C:
	}
}

// reap discards a message that arrives after the run was given up and removes
// the assets it names, then clears runDir once the worker has stopped. An
// in-process worker that never returns keeps reap waiting with it.
func (r *Runner) reap(w Worker, runDir string) {
	for d := range w.Messages() {
		if res := d.Message.Result; res != nil && res.AssetsDir != "" {
			r.logger.Debug("Removing assets of aborted worker", zap.String("dir", res.AssetsDir))
			r.removeAssets(res.AssetsDir)
		}
	}
	<-w.Done()
	r.removeAssets(runDir)
}

func (r *Runner) exitStatus(w Worker) error {
	t := time.NewTimer(r.drainTimeout)
	defer t.Stop()
	select {
	case <-w.Done():
		return w.Wait()
	case <-t.C:
		w.Kill()
		return errors.New("worker closed its message channel but kept running")
	}
}

func (r *Runner) removeAssets(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Warn("Failed to remove assets dir", zap.String("dir", dir), zap.Error(err))
	}
}

// OutcomeLabel maps a Run error to its metrics label.
func OutcomeLabel(err error) string {
	var (
		failure  *WorkerFailure
		protoErr *ProtocolError
		timeout  *TimeoutError
		exit     *ExitError
	)
	switch {
	case err == nil:
		return monitoring.OutcomeSuccess
	case errors.As(err, &failure):
		return monitoring.OutcomeFailure
	case errors.As(err, &protoErr):
		return monitoring.OutcomeProtocol
	case errors.As(err, &timeout):
		return monitoring.OutcomeTimeout
	case errors.As(err, &exit):
		return monitoring.OutcomeExit
	default:
		return monitoring.OutcomeError
	}
}

// firstLine keeps the captured log out of the runner's own structured log.
func firstLine(err error) error {
	msg := err.Error()
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return errors.New(msg[:i])
		}
	}
	return err
}

type zapLogger struct {
	l *logging.Logger
}

func (z zapLogger) Log(line string) {
	z.l.Info(line)
}
