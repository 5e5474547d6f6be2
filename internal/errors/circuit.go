package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a request is refused because the
// breaker has tripped.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state.
type State int

const (
	// StateClosed admits all requests.
	StateClosed State = iota
	// StateOpen refuses all requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits probe requests after the timeout.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

const (
	defaultTripThreshold = 5
	defaultCooldown      = 30 * time.Second
)

// CircuitBreaker fails fast once a collaborator (typically the embedding
// provider) has failed repeatedly, instead of paying a timeout on every
// request while it is down.
type CircuitBreaker struct {
	label    string
	trip     int           // consecutive failures that open the breaker
	cooldown time.Duration // open duration before half-open probing

	mu       sync.RWMutex
	state    State
	failures int
	openedAt time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.trip = n }
}

// WithResetTimeout sets how long the breaker stays open before probing.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) { cb.cooldown = d }
}

// NewCircuitBreaker creates a named breaker. Defaults: 5 consecutive
// failures trip it, probes resume after 30 seconds.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{label: name, trip: defaultTripThreshold, cooldown: defaultCooldown}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.label }

// State returns the effective state, accounting for timeout expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.effectiveState()
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Allow reports whether a request may proceed right now.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != StateOpen
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state, cb.failures = StateClosed, 0
}

// RecordFailure counts a failure, tripping the breaker at the limit.
// While half-open, a single failure re-opens it.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.trip || cb.effectiveState() == StateHalfOpen {
		cb.state, cb.openedAt = StateOpen, time.Now()
	}
}

// Execute runs fn under the breaker: ErrCircuitOpen while open, and
// success/failure recorded otherwise.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// CircuitExecute runs fn under the breaker, diverting to fallback when
// the breaker is open or fn fails.
func CircuitExecute[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	if !cb.Allow() {
		return fallback()
	}
	out, err := fn()
	if err != nil {
		cb.RecordFailure()
		if cb.State() == StateOpen {
			return fallback()
		}
		return out, err
	}
	cb.RecordSuccess()
	return out, nil
}

// effectiveState folds timeout expiry into the stored state. Callers
// hold at least a read lock.
func (cb *CircuitBreaker) effectiveState() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) > cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}
