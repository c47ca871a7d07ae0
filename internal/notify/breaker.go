package notify

import (
	"fmt"
	"sync"
	"time"
)

// State represents the breaker state.
type State int

const (
	StateClosed   State = 0 // normal operation — publishes pass through
	StateOpen     State = 1 // tripped — publishes skipped immediately
	StateHalfOpen State = 2 // probing — one publish allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards redis publishes. During a redis outage every publish
// would otherwise eat a connect timeout on the recompute path; after
// maxFailures consecutive failures the breaker opens and publishes are
// skipped outright for resetTimeout, then a single probe decides
// whether to close again. Skipped signals are harmless: the next
// successful publish triggers a full recompute anyway.
type Breaker struct {
	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time

	// OnStateChange is called on state transitions (optional).
	OnStateChange func(from, to State)
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and probes again after resetTimeout.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn unless the breaker is open. Returns ErrBreakerOpen
// when the call was skipped.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.transition(StateHalfOpen)
		} else {
			b.mu.Unlock()
			return ErrBreakerOpen
		}

	case StateHalfOpen:
		// The mutex serializes probes; let this one through.
	}

	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()

		if b.state == StateHalfOpen {
			b.transition(StateOpen)
		} else if b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
		return err
	}

	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return nil
}

// CurrentState returns the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil {
		b.OnStateChange(from, to)
	}
}

// ErrBreakerOpen is returned when a publish was skipped.
var ErrBreakerOpen = fmt.Errorf("notify breaker is open")
