package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state, exported as a gauge value.
type State int

const (
	StateClosed   State = 0 // writes pass through
	StateOpen     State = 1 // writes fail fast
	StateHalfOpen State = 2 // one probe write allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreaker turns a dead Redis into fast-failing no-ops instead of a
// stalled drain loop. A streak of maxFailures consecutive errors opens the
// breaker; after resetTimeout one probe call is let through, and its
// outcome decides between closing and reopening.
type CircuitBreaker struct {
	mu       sync.Mutex
	state    State
	streak   int // consecutive failures while closed
	lastFail time.Time

	maxFailures  int
	resetTimeout time.Duration

	// OnStateChange fires on every transition (optional).
	OnStateChange func(from, to State)
}

// NewCircuitBreaker creates a closed breaker that opens after maxFailures
// consecutive errors and probes again resetTimeout later.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// Execute runs fn unless the breaker is open, in which case it returns
// ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// allow gates the call: open + timeout elapsed moves to half-open and lets
// the probe through, open otherwise rejects.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFail) <= cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
	}
	return nil
}

// record folds the call outcome into the breaker state.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.setState(StateClosed)
		}
		cb.streak = 0
		return
	}

	cb.streak++
	cb.lastFail = time.Now()

	// A failed probe reopens immediately; a closed breaker trips at the limit.
	if cb.state == StateHalfOpen || cb.streak >= cb.maxFailures {
		cb.setState(StateOpen)
	}
}

func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.streak = 0
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
