package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

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

// Settings configures a Breaker. Zero values take the defaults noted below.
type Settings struct {
	// MaxRequests is the number of trial calls admitted while half-open, and the
	// number of successes that close the breaker again. Default 1.
	MaxRequests uint32
	// Interval clears the closed-state counts periodically. Default 60s.
	Interval time.Duration
	// Timeout is how long the breaker stays open. Default 60s.
	Timeout time.Duration
	// ReadyToTrip decides, after each closed-state failure, whether to open.
	// Default: more than five consecutive failures.
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes every transition.
	OnStateChange func(name string, from State, to State)
	// IsSuccessful classifies results. Default: nil and caller cancellation
	// are successes.
	IsSuccessful func(err error) bool
}

// Counts are the outcomes seen since the last transition or interval reset.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker fails calls fast while a dependency keeps failing.
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	counts Counts
	// since is when the current state (or closed-state window) began.
	since time.Time
	// epoch changes on every transition; outcomes of calls admitted in an
	// earlier epoch are discarded.
	epoch uint64
}

// New creates a closed breaker.
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	if settings.Timeout <= 0 {
		settings.Timeout = time.Minute
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		}
	}
	return &Breaker{name: name, settings: settings, since: time.Now()}
}

// State returns the current state, applying any elapsed timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh(time.Now())
	return b.state
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs fn if the breaker admits it. A context that is already done
// is returned without being counted.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	epoch, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { b.record(epoch, ok) }()

	err = fn(ctx)
	ok = b.settings.IsSuccessful(err)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh(time.Now())
	switch {
	case b.state == StateOpen:
		return 0, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return 0, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.epoch, nil
}

func (b *Breaker) record(epoch uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.refresh(now)
	if epoch != b.epoch {
		return
	}

	c := &b.counts
	if ok {
		c.TotalSuccesses++
		c.ConsecutiveSuccesses++
		c.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && c.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
		return
	}

	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
	if b.state == StateHalfOpen || b.settings.ReadyToTrip(*c) {
		b.transition(StateOpen, now)
	}
}

// refresh moves an expired open breaker to half-open and rolls the closed
// window. Callers hold mu.
func (b *Breaker) refresh(now time.Time) {
	elapsed := now.Sub(b.since)
	switch b.state {
	case StateOpen:
		if elapsed >= b.settings.Timeout {
			b.transition(StateHalfOpen, now)
		}
	case StateClosed:
		if elapsed >= b.settings.Interval {
			b.counts = Counts{}
			b.since = now
			b.epoch++
		}
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	b.state = to
	b.counts = Counts{}
	b.since = now
	b.epoch++
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
