package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/audit"
	"github.com/GriffinCanCode/auditrunner/internal/browser"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

// AssetsDirPattern is the name pattern of the directories that hold persisted
// artifacts between the worker and the orchestrator.
const AssetsDirPattern = "smoke-assets-"

// Deps are the collaborators a worker needs for one run.
type Deps struct {
	Launcher  browser.Launcher
	Connector browser.Connector
	Registry  *audit.Registry
	Store     artifacts.Store
	Logger    *logging.Logger
}

func (d Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

// Execute launches a browser, runs the requested entry point against target
// and returns its result. The browser is terminated before Execute returns,
// whatever the outcome.
//
// Execute refuses to run unless ctx was marked by WithinWorker.
func Execute(ctx context.Context, req protocol.Request, deps Deps) (*audit.RunnerResult, error) {
	if !IsWorker(ctx) {
		return nil, ErrContext
	}
	logger := deps.logger()

	registry := deps.Registry
	if registry == nil {
		registry = audit.NewDefaultRegistry()
	}
	name := req.EntryPoint
	if name == "" {
		name = audit.DefaultEntryPoint
	}
	entry, err := registry.Resolve(name)
	if err != nil {
		return nil, err
	}

	proc, err := deps.Launcher.Launch(ctx, browser.LaunchOptions{Headless: req.Options.Headless})
	if err != nil {
		return nil, &LaunchError{Stage: "launch", Err: err}
	}
	defer func() {
		if err := proc.Kill(); err != nil {
			logger.Warn("Failed to terminate browser", zap.Error(err))
		}
	}()

	port := proc.Port()
	conn, err := deps.Connector.Connect(ctx, browser.Endpoint(port))
	if err != nil {
		return nil, &LaunchError{Stage: "connect", Err: err}
	}
	defer conn.Close()

	page, err := conn.NewPage(ctx)
	if err != nil {
		return nil, &LaunchError{Stage: "page", Err: err}
	}
	defer page.Close()

	logLevel := audit.LogLevelInfo
	if req.Options.Verbose {
		logLevel = audit.LogLevelVerbose
	}

	logger.Info("Running audit",
		zap.String("target", req.Target),
		zap.String("entry_point", name),
		zap.Int("port", port),
	)

	result, err := entry(ctx, page, req.Target, audit.Options{
		Config: req.Config,
		Flags:  audit.Flags{Port: port, LogLevel: logLevel},
	})
	if err != nil {
		return nil, &AuditFault{EntryPoint: name, Err: err}
	}
	if result == nil || result.Artifacts == nil || !protocol.HasReport(result.LHR) {
		return nil, ErrNoResult
	}
	return result, nil
}

// Run performs one audit and converts the outcome into the terminal message.
//
// On success the artifacts are saved to a fresh directory under req.TempDir
// and its path travels in the message. Ownership of that directory passes to
// the receiver. Every error, including a panic, becomes a failure message.
func Run(ctx context.Context, req protocol.Request, deps Deps) (msg protocol.Message) {
	logger := deps.logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			msg = protocol.NewFailure(fmt.Errorf("worker panic: %v", r))
		}
	}()

	lhr, dir, err := run(ctx, req, deps)
	if err != nil {
		logger.Error("Audit failed", zap.String("target", req.Target), zap.Error(err))
		return protocol.NewFailure(err)
	}
	logger.Info("Audit complete", zap.String("assets_dir", dir))
	return protocol.NewResult(lhr, dir)
}

func run(ctx context.Context, req protocol.Request, deps Deps) (json.RawMessage, string, error) {
	result, err := Execute(ctx, req, deps)
	if err != nil {
		return nil, "", err
	}

	store := deps.Store
	if store == nil {
		store = artifacts.NewDiskStore()
	}

	dir, err := os.MkdirTemp(req.TempDir, AssetsDirPattern)
	if err != nil {
		return nil, "", fmt.Errorf("create assets dir: %w", err)
	}
	saved := false
	defer func() {
		if !saved {
			os.RemoveAll(dir)
		}
	}()

	if err := store.Save(result.Artifacts, dir); err != nil {
		return nil, "", fmt.Errorf("save artifacts: %w", err)
	}
	saved = true
	return result.LHR, dir, nil
}
