package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Do while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold uint32
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// IsFailure reports whether err counts against the dependency. Nil counts
	// every non-nil error.
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes, with the lock held.
	OnStateChange func(name string, from, to State)
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Calls               uint64
	Rejected            uint64
	Failures            uint64
	ConsecutiveFailures uint32
}

// Breaker guards calls to one dependency.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	probing  bool
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	if b == nil {
		return Counts{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn unless the breaker is open, and records its outcome. A nil
// Breaker always runs fn.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}

	probe, err := b.before()
	if err != nil {
		return err
	}

	failed := true
	defer func() {
		b.after(probe, failed)
	}()

	err = fn()
	failed = b.settings.IsFailure(err)
	return err
}

func (b *Breaker) before() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		b.counts.Rejected++
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			b.counts.Rejected++
			return false, ErrCircuitOpen
		}
		b.probing = true
		b.counts.Calls++
		return true, nil
	}
	b.counts.Calls++
	return false, nil
}

func (b *Breaker) after(probe, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}
	if !failed {
		b.counts.ConsecutiveFailures = 0
		if probe {
			b.setState(StateClosed)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	if probe || b.counts.ConsecutiveFailures >= b.settings.Threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// current moves an open breaker to half-open once the cooldown has passed.
func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	if state == StateClosed {
		b.counts.ConsecutiveFailures = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
