package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Allow] while the breaker is open and
// the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed admits every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call until the reset timeout elapses.
	BreakerOpen

	// BreakerHalfOpen admits a limited number of probe calls to decide
	// whether the backend has recovered.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in state-change notifications.
	Name string

	// MaxFailures is how many consecutive failures close→open takes. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing. Default: 30s.
	ResetTimeout time.Duration

	// ProbeMax is how many probe calls the half-open state admits; all of
	// them must succeed for the breaker to close. Default: 3.
	ProbeMax int

	// OnStateChange, when non-nil, is invoked after every state transition.
	// It runs outside the breaker's lock and must not block.
	OnStateChange func(name string, from, to BreakerState)
}

// Breaker is a three-state circuit breaker with explicit admission and
// outcome recording: call [Breaker.Allow] before the guarded operation and
// [Breaker.Record] with its result afterwards.
//
// Breaker is safe for concurrent use.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	probeMax     int
	onChange     func(string, BreakerState, BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ProbeMax <= 0 {
		cfg.ProbeMax = 3
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		probeMax:     cfg.ProbeMax,
		onChange:     cfg.OnStateChange,
	}
}

// Allow reports whether a call may proceed. It returns [ErrBreakerOpen] when
// the breaker is open, or when the half-open probe budget is spent. A nil
// return admits the call; its outcome must be fed back via [Breaker.Record].
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var notify func()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		notify = b.transitionLocked(BreakerHalfOpen)
		b.probes, b.probeOK = 1, 0
	case BreakerHalfOpen:
		if b.probes >= b.probeMax {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probes++
	}
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
	return nil
}

// Record feeds the outcome of an admitted call back into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	var notify func()
	switch {
	case err == nil && b.state == BreakerHalfOpen:
		b.probeOK++
		if b.probeOK >= b.probeMax {
			notify = b.transitionLocked(BreakerClosed)
			b.failures = 0
		}
	case err == nil:
		b.failures = 0
	case b.state == BreakerHalfOpen:
		// One failed probe is enough to re-open.
		notify = b.transitionLocked(BreakerOpen)
		b.openedAt = time.Now()
		b.failures = b.maxFailures
	default:
		b.failures++
		if b.state == BreakerClosed && b.failures >= b.maxFailures {
			notify = b.transitionLocked(BreakerOpen)
			b.openedAt = time.Now()
		}
	}
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// transitionLocked switches to the given state and returns the pending
// OnStateChange invocation, to be run after the lock is released.
// Must be called with b.mu held.
func (b *Breaker) transitionLocked(to BreakerState) func() {
	from := b.state
	b.state = to
	if b.onChange == nil || from == to {
		return nil
	}
	name, hook := b.name, b.onChange
	return func() { hook(name, from, to) }
}

// State returns the current breaker state. An open breaker whose reset
// timeout has elapsed reports [BreakerHalfOpen]; the actual transition
// happens on the next [Breaker.Allow].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.transitionLocked(BreakerClosed)
	b.failures, b.probes, b.probeOK = 0, 0, 0
	b.mu.Unlock()
	if notify != nil {
		notify()
	}
}
