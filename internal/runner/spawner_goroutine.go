package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

// WorkerFunc is the body of an in-process worker. It writes diagnostics to
// stdout and stderr and returns its single message.
type WorkerFunc func(ctx context.Context, req protocol.Request, stdout, stderr io.Writer) protocol.Message

// GoroutineSpawner runs each worker as a goroutine. The request is copied
// before the hand-off and the message travels through a channel, so the
// worker shares no mutable state with the caller. It does not protect the
// caller from a worker that never returns; Kill only cancels its context.
type GoroutineSpawner struct {
	Func WorkerFunc
}

// Spawn starts one worker goroutine.
func (s GoroutineSpawner) Spawn(ctx context.Context, req protocol.Request) (Worker, error) {
	if s.Func == nil {
		return nil, errors.New("goroutine spawner: nil worker func")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req.Config = append(json.RawMessage(nil), req.Config...)

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	w := &goroutineWorker{
		cancel:   cancel,
		stdout:   outR,
		stderr:   errR,
		outW:     outW,
		errW:     errW,
		messages: make(chan Delivery, 1),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		defer close(w.messages)
		defer errW.Close()
		defer outW.Close()

		msg := invoke(s.Func, wctx, req, outW, errW)
		raw, err := json.Marshal(msg)
		w.messages <- Delivery{Message: msg, Raw: raw, Err: err}
	}()

	return w, nil
}

func invoke(fn WorkerFunc, ctx context.Context, req protocol.Request, stdout, stderr io.Writer) (msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "worker panic: %v\n", r)
			msg = protocol.NewFailure(fmt.Errorf("worker panic: %v", r))
		}
	}()
	return fn(ctx, req, stdout, stderr)
}

type goroutineWorker struct {
	cancel   context.CancelFunc
	stdout   *io.PipeReader
	stderr   *io.PipeReader
	outW     *io.PipeWriter
	errW     *io.PipeWriter
	messages chan Delivery
	done     chan struct{}

	closeOnce sync.Once
}

func (w *goroutineWorker) Stdout() io.Reader         { return w.stdout }
func (w *goroutineWorker) Stderr() io.Reader         { return w.stderr }
func (w *goroutineWorker) Messages() <-chan Delivery { return w.messages }
func (w *goroutineWorker) Done() <-chan struct{}     { return w.done }

func (w *goroutineWorker) Wait() error {
	<-w.done
	return nil
}

// Kill cancels the worker's context and ends its streams. The goroutine
// itself stops when the worker function returns.
func (w *goroutineWorker) Kill() {
	w.cancel()
	w.outW.CloseWithError(io.EOF)
	w.errW.CloseWithError(io.EOF)
}

func (w *goroutineWorker) Close() error {
	w.closeOnce.Do(func() {
		w.Kill()
		w.stdout.Close()
		w.stderr.Close()
	})
	return nil
}
