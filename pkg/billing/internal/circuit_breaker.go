package internal

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the current state of a CircuitBreaker
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// ErrCircuitOpen is returned without calling through while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker fails fast after a run of consecutive upstream failures and
// lets a single trial call through once the reset timeout has passed.
type CircuitBreaker struct {
	mu sync.Mutex

	state        BreakerState
	threshold    int
	resetTimeout time.Duration
	failures     int
	openedAt     time.Time
	trialRunning bool

	now           func() time.Time
	onStateChange func(BreakerState)
}

// NewCircuitBreaker creates a closed breaker. onStateChange may be nil.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, onStateChange func(BreakerState)) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     threshold,
		resetTimeout:  resetTimeout,
		now:           time.Now,
		onStateChange: onStateChange,
	}
}

// State returns the current state, reporting half-open once the reset
// timeout of an open breaker has elapsed
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() BreakerState {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the breaker is open. countable decides whether an
// error from fn is an upstream failure; other errors pass through untracked.
func (cb *CircuitBreaker) Execute(fn func() error, countable func(error) bool) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && countable(err) {
		cb.failure()
		return err
	}
	cb.success()
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateOpen:
		return false
	case StateHalfOpen:
		if cb.trialRunning {
			return false
		}
		cb.trialRunning = true
		cb.changeState(StateHalfOpen)
	}
	return true
}

func (cb *CircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.trialRunning = false
	cb.changeState(StateClosed)
}

func (cb *CircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
		cb.trialRunning = false
		cb.openedAt = cb.now()
		cb.changeState(StateOpen)
	}
}

func (cb *CircuitBreaker) changeState(next BreakerState) {
	if cb.state == next {
		return
	}
	cb.state = next
	if cb.onStateChange != nil {
		cb.onStateChange(next)
	}
}
