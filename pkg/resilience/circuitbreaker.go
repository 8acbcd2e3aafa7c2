// Package resilience guards calls to the stores and brokers the geocoder
// depends on: a circuit breaker for the query cache, backoff retry for
// connecting and consuming, and a deadline wrapper for forward geocoding.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a circuit breaker. The values are exported as the
// circuit_breaker_state gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// CircuitBreakerConfig controls failure thresholds and recovery timing.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// OnStateChange, when set, is called after every transition outside the
	// breaker's lock.
	OnStateChange func(name string, to State)
	// Ignore reports errors that do not count against the backend. A nil
	// Ignore skips context cancellation, which means the caller went away.
	Ignore func(error) bool
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for ResetTimeout, then lets HalfOpenMaxRequests trial calls through.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trialsInUse int
}

// NewCircuitBreaker returns a closed breaker. Zero config values take 5
// failures, 30s and one trial call.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.Ignore == nil {
		cfg.Ignore = func(err error) bool { return errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker is open and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.trialsInUse = 1
		cb.transition(StateHalfOpen)
		return nil
	case StateHalfOpen:
		if cb.trialsInUse >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (trial in progress)", ErrCircuitOpen, cb.name)
		}
		cb.trialsInUse++
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	if err == nil || cb.cfg.Ignore(err) {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.trialsInUse = 0
			cb.transition(StateClosed)
			return
		}
		cb.mu.Unlock()
		return
	}

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.logger.Warn("trial call failed", "error", err)
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.logger.Warn("failure threshold reached", "failures", cb.failures, "error", err)
		cb.openedAt = time.Now()
		cb.transition(StateOpen)
	default:
		cb.mu.Unlock()
	}
}

// transition moves to state to and releases cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.mu.Unlock()

	cb.logger.Info("circuit state changed", "from", from.String(), "to", to.String())
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
