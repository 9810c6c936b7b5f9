// Package logstream fans the diagnostic lines of running audits out to live
// watchers.
//
// A watcher may subscribe to a run ID before the run starts; it then sees
// every line. Watchers that arrive late get the most recent lines from a
// bounded backlog first. A watcher that cannot keep up loses lines rather
// than slowing the run down.
package logstream

import (
	"errors"
	"sync"
)

// DefaultBuffer is the per-watcher queue length and the backlog size.
const DefaultBuffer = 256

// ErrRunInProgress is returned by Open when the run ID is already streaming.
var ErrRunInProgress = errors.New("run is already streaming")

// Hub routes lines from publishing runs to their subscribers.
type Hub struct {
	buffer int

	mu   sync.Mutex
	runs map[string]*run
}

type run struct {
	open    bool
	started chan struct{}
	backlog []string
	subs    map[*Subscription]struct{}
}

// NewHub creates a hub. buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, runs: make(map[string]*run)}
}

func (h *Hub) entry(runID string) *run {
	r, ok := h.runs[runID]
	if !ok {
		r = &run{started: make(chan struct{}), subs: make(map[*Subscription]struct{})}
		h.runs[runID] = r
	}
	return r
}

// Open starts publishing runID. The returned stream must be closed when the
// run ends.
func (h *Hub) Open(runID string) (*Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.entry(runID)
	if r.open {
		return nil, ErrRunInProgress
	}
	r.open = true
	close(r.started)
	return &Stream{hub: h, runID: runID, run: r}, nil
}

// Subscribe watches runID, whether or not it has started.
func (h *Hub) Subscribe(runID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.entry(runID)
	sub := &Subscription{hub: h, runID: runID, run: r, lines: make(chan string, h.buffer)}
	for _, line := range r.backlog {
		sub.offer(line)
	}
	r.subs[sub] = struct{}{}
	return sub
}

// Runs returns how many run IDs currently have a publisher or a watcher.
func (h *Hub) Runs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}

// Stream publishes the lines of one run. It implements runner.Logger.
type Stream struct {
	hub   *Hub
	runID string
	run   *run

	closed bool
}

// Log sends line to every watcher.
func (s *Stream) Log(line string) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}

	r := s.run
	if len(r.backlog) == h.buffer {
		copy(r.backlog, r.backlog[1:])
		r.backlog = r.backlog[:h.buffer-1]
	}
	r.backlog = append(r.backlog, line)
	for sub := range r.subs {
		sub.offer(line)
	}
}

// Close ends the run. Watchers see their channel closed.
func (s *Stream) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for sub := range s.run.subs {
		sub.finish()
	}
	if h.runs[s.runID] == s.run {
		delete(h.runs, s.runID)
	}
}

// Subscription is one watcher of a run.
type Subscription struct {
	hub   *Hub
	runID string
	run   *run
	lines chan string

	// Guarded by hub.mu.
	done    bool
	dropped int
}

// Started is closed once the run begins publishing.
func (s *Subscription) Started() <-chan struct{} {
	return s.run.started
}

// Lines yields the run's lines and is closed when the run ends.
func (s *Subscription) Lines() <-chan string {
	return s.lines
}

// Dropped returns how many lines did not fit in the queue.
func (s *Subscription) Dropped() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// Close stops watching.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(s.run.subs, s)
	s.finish()
	if !s.run.open && len(s.run.subs) == 0 && h.runs[s.runID] == s.run {
		delete(h.runs, s.runID)
	}
}

// offer and finish run with hub.mu held.
func (s *Subscription) offer(line string) {
	if s.done {
		return
	}
	select {
	case s.lines <- line:
	default:
		s.dropped++
	}
}

func (s *Subscription) finish() {
	if s.done {
		return
	}
	s.done = true
	close(s.lines)
}
