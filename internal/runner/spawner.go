package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/GriffinCanCode/auditrunner/internal/protocol"
)

// Spawner starts isolated workers.
type Spawner interface {
	Spawn(ctx context.Context, req protocol.Request) (Worker, error)
}

// Worker is a handle on one running worker.
type Worker interface {
	// Stdout and Stderr are the worker's diagnostic streams. They reach EOF
	// once the worker is gone.
	Stdout() io.Reader
	Stderr() io.Reader
	// Messages yields at most one Delivery and is then closed.
	Messages() <-chan Delivery
	// Done is closed once the worker has stopped.
	Done() <-chan struct{}
	// Wait returns the exit status. It is only meaningful after Done.
	Wait() error
	// Kill stops the worker. It is safe to call more than once.
	Kill()
	// Close kills the worker if it still runs and releases its streams.
	Close() error
}

// Delivery is what arrived on the message channel. Err is set when the bytes
// could not be decoded into a Message.
type Delivery struct {
	Message protocol.Message
	Raw     []byte
	Err     error
}

// readDelivery reads the first non-empty line of r. It returns false when r
// ends before any message.
func readDelivery(r io.Reader) (Delivery, bool) {
	line, err := protocol.ReadLine(r)
	if errors.Is(err, protocol.ErrNoMessage) {
		return Delivery{}, false
	}
	if err != nil {
		return Delivery{Err: err}, true
	}

	d := Delivery{Raw: line}
	if err := json.Unmarshal(line, &d.Message); err != nil {
		d.Err = fmt.Errorf("decode message: %w", err)
	}
	return d, true
}
