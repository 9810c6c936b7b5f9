package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/GriffinCanCode/auditrunner/internal/protocol"
	"github.com/GriffinCanCode/auditrunner/internal/shared/proc"
	"github.com/GriffinCanCode/auditrunner/internal/worker"
)

// MessageFD is the descriptor on which a worker process writes its message.
const MessageFD = 3

// DefaultGrace is how long a killed worker gets between SIGTERM and SIGKILL.
// SIGTERM cancels the worker's context, which stops its browser and removes
// the browser profile.
const DefaultGrace = 2 * time.Second

// ProcessSpawner runs each worker as a child process of the current binary.
//
// The child gets the request on stdin and writes its message to MessageFD.
// It runs in its own process group so Kill also reaches the browser it
// launched.
type ProcessSpawner struct {
	// Path of the worker binary. Empty means the current executable.
	Path string
	// Args passed to the binary. Defaults to "worker".
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// Grace between SIGTERM and SIGKILL on Kill. Zero means DefaultGrace.
	Grace time.Duration
}

// Spawn starts one worker process.
func (s *ProcessSpawner) Spawn(ctx context.Context, req protocol.Request) (Worker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		path = exe
	}
	args := s.Args
	if args == nil {
		args = []string{"worker"}
	}

	var stdin bytes.Buffer
	if err := protocol.Encode(&stdin, req); err != nil {
		return nil, err
	}

	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	pipe := func() (*os.File, *os.File, error) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, err
		}
		files = append(files, r, w)
		return r, w, nil
	}

	outR, outW, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	msgR, msgW, err := pipe()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("create message pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), worker.EnvWorker+"=1")
	cmd.Env = append(cmd.Env, s.Env...)
	cmd.Stdin = &stdin
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.ExtraFiles = []*os.File{msgW}
	proc.Configure(cmd)

	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, fmt.Errorf("start worker: %w", err)
	}

	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()
	msgW.Close()

	w := &processWorker{
		cmd:      cmd,
		stdout:   outR,
		stderr:   errR,
		messages: make(chan Delivery, 1),
		done:     make(chan struct{}),
		grace:    s.grace(),
	}

	go func() {
		defer close(w.messages)
		defer msgR.Close()
		if d, ok := readDelivery(msgR); ok {
			w.messages <- d
		}
	}()

	go func() {
		w.waitErr = cmd.Wait()
		close(w.done)
	}()

	return w, nil
}

func (s *ProcessSpawner) grace() time.Duration {
	if s.Grace <= 0 {
		return DefaultGrace
	}
	return s.Grace
}

type processWorker struct {
	cmd      *exec.Cmd
	stdout   *os.File
	stderr   *os.File
	messages chan Delivery
	done     chan struct{}
	waitErr  error
	grace    time.Duration

	killOnce  sync.Once
	closeOnce sync.Once
}

func (w *processWorker) Stdout() io.Reader         { return w.stdout }
func (w *processWorker) Stderr() io.Reader         { return w.stderr }
func (w *processWorker) Messages() <-chan Delivery { return w.messages }
func (w *processWorker) Done() <-chan struct{}     { return w.done }

func (w *processWorker) Wait() error {
	<-w.done
	return w.waitErr
}

func (w *processWorker) Kill() {
	w.killOnce.Do(func() {
		select {
		case <-w.done:
			return
		default:
		}
		proc.Terminate(w.cmd, w.grace)
	})
}

func (w *processWorker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.Kill()
		<-w.done
		err = errors.Join(closeFile(w.stdout), closeFile(w.stderr))
	})
	return err
}

func closeFile(f *os.File) error {
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
