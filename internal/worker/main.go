package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/GriffinCanCode/auditrunner/internal/artifacts"
	"github.com/GriffinCanCode/auditrunner/internal/audit"
	"github.com/GriffinCanCode/auditrunner/internal/browser"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/config"
	"github.com/GriffinCanCode/auditrunner/internal/infrastructure/logging"
	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

// Exit codes of the worker process.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitNotWorker  = 2
	ExitNoProtocol = 3
)

// DepsBuilder creates the dependencies of one run. stdout and stderr are the
// worker's diagnostic streams.
type DepsBuilder func(stdout, stderr io.Writer, req protocol.Request) Deps

// DefaultBuilder wires the Chrome launcher, the chromedp connector, the
// built-in entry points and the disk artifact store.
func DefaultBuilder(cfg config.AuditConfig) DepsBuilder {
	return func(stdout, stderr io.Writer, req protocol.Request) Deps {
		level := audit.LogLevelInfo
		if req.Options.Verbose {
			level = audit.LogLevelVerbose
		}
		logger := logging.NewStreams(stdout, stderr, level)
		return Deps{
			Launcher:  browser.NewChromeLauncher(cfg.ChromePath, logger),
			Connector: browser.CDPConnector{},
			Registry:  audit.NewDefaultRegistry(),
			Store:     artifacts.NewDiskStore(),
			Logger:    logger,
		}
	}
}

// Main is the body of a worker process. It reads one request from stdin, runs
// it and writes exactly one message to msgOut. The return value is the exit
// code.
func Main(ctx context.Context, stdin io.Reader, stdout, stderr, msgOut io.Writer, build DepsBuilder) int {
	if !IsWorkerProcess() {
		fmt.Fprintln(stderr, ErrContext)
		return ExitNotWorker
	}

	var msg protocol.Message
	req, err := protocol.DecodeRequest(stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read request: %v\n", err)
		msg = protocol.NewFailure(fmt.Errorf("read request: %w", err))
	} else {
		deps := build(stdout, stderr, req)
		msg = Run(WithinWorker(ctx), req, deps)
		if deps.Logger != nil {
			deps.Logger.Sync()
		}
	}

	if err := protocol.Encode(msgOut, msg); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitNoProtocol
	}
	if msg.IsFailure() {
		return ExitFailure
	}
	return ExitOK
}

// Func adapts the worker to an in-process body with the signature expected by
// the goroutine spawner.
func Func(build DepsBuilder) func(ctx context.Context, req protocol.Request, stdout, stderr io.Writer) protocol.Message {
	return func(ctx context.Context, req protocol.Request, stdout, stderr io.Writer) protocol.Message {
		deps := build(stdout, stderr, req)
		defer func() {
			if deps.Logger != nil {
				deps.Logger.Sync()
			}
		}()
		return Run(WithinWorker(ctx), req, deps)
	}
}
