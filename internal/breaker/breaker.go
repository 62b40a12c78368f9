// Package breaker provides a circuit breaker gating upstream fetches.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit breaker rejects a call.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed and requests are allowed.
	StateClosed State = iota
	// StateOpen means the circuit is open and requests are blocked.
	StateOpen
	// StateHalfOpen means the circuit admits a bounded number of probe calls.
	StateHalfOpen
)

// String returns the string representation of the state.
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

// OpenError reports a rejected call. RetryAfter is the remaining recovery
// window, or zero when the breaker is half-open and all probe slots are
// taken (retry once an in-flight probe resolves).
type OpenError struct {
	State      State
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker is open: retry after %s", e.RetryAfter)
	}
	return "circuit breaker is open"
}

// Unwrap lets errors.Is match ErrOpen.
func (e *OpenError) Unwrap() error {
	return ErrOpen
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of counted failures before opening the
	// circuit. Only overload failures count.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before admitting
	// half-open probes.
	RecoveryTimeout time.Duration
	// HalfOpenMaxCalls caps concurrent in-flight probe calls while half-open.
	HalfOpenMaxCalls int
	// HalfOpenSuccessThreshold is the number of probe successes required to
	// close the circuit again.
	HalfOpenSuccessThreshold int
	// ResetTimeout decays a stale failure count while closed: a failure older
	// than this no longer counts toward the threshold.
	ResetTimeout time.Duration
	// OnStateChange is an optional callback when state changes. It runs under
	// the breaker's lock and must not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default circuit breaker configuration. The
// failure threshold of one trips the breaker on the first overload, matching
// how aggressively the upstream platform rate-limits.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         1,
		RecoveryTimeout:          60 * time.Second,
		HalfOpenMaxCalls:         1,
		HalfOpenSuccessThreshold: 1,
		ResetTimeout:             120 * time.Second,
	}
}

// Breaker implements the circuit breaker state machine. One instance is
// constructed at startup and injected into the HTTP client; there is no
// package-level singleton.
type Breaker struct {
	mu sync.Mutex

	state           State
	failureCount    int
	lastFailureTime time.Time
	openedAt        time.Time

	halfOpenInFlight  int
	halfOpenSuccesses int

	config Config
}

// New creates a new circuit breaker with the given configuration.
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = def.RecoveryTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if config.HalfOpenSuccessThreshold <= 0 {
		config.HalfOpenSuccessThreshold = def.HalfOpenSuccessThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}

	return &Breaker{
		state:  StateClosed,
		config: config,
	}
}

// Allow reports whether a call may proceed. While open it fails with an
// *OpenError carrying the remaining recovery wait, transitioning to half-open
// once the recovery timeout has elapsed. While half-open it admits at most
// HalfOpenMaxCalls in-flight probes. Every admitted call must be concluded
// with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		remaining := b.config.RecoveryTimeout - time.Since(b.openedAt)
		if remaining > 0 {
			return &OpenError{State: StateOpen, RetryAfter: remaining}
		}
		b.transitionTo(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.halfOpenInFlight >= b.config.HalfOpenMaxCalls {
			return &OpenError{State: StateHalfOpen}
		}
		b.halfOpenInFlight++
		return nil
	}

	// Closed. Decay a stale failure count before admitting.
	if b.failureCount > 0 && time.Since(b.lastFailureTime) >= b.config.ResetTimeout {
		b.failureCount = 0
	}
	return nil
}

// RecordSuccess concludes an admitted call that succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.releaseProbe()
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenSuccessThreshold {
			b.transitionTo(StateClosed)
		}
	case StateOpen:
		// A call admitted before the trip finished late. Nothing to record.
	}
}

// RecordFailure concludes an admitted call that failed. Only overload
// failures (the upstream service-unavailable condition) count toward the
// failure threshold; other failures merely release a half-open probe slot.
func (b *Breaker) RecordFailure(overload bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if !overload {
			return
		}
		b.failureCount++
		b.lastFailureTime = time.Now()
		if b.failureCount >= b.config.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		b.releaseProbe()
		if overload {
			b.transitionTo(StateOpen)
		}
	case StateOpen:
		// Late result from a call admitted before the trip. The recovery
		// window stays anchored at the transition time.
	}
}

// releaseProbe frees a half-open probe slot. Callers hold b.mu.
func (b *Breaker) releaseProbe() {
	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// transitionTo moves the state machine and resets counters. Callers hold b.mu.
func (b *Breaker) transitionTo(newState State) {
	if b.state == newState {
		return
	}

	oldState := b.state
	b.state = newState

	switch newState {
	case StateClosed:
		b.failureCount = 0
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	case StateOpen:
		b.openedAt = time.Now()
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	case StateHalfOpen:
		b.halfOpenInFlight = 0
		b.halfOpenSuccesses = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(oldState, newState)
	}
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a read-only snapshot of the breaker for observability.
type Stats struct {
	State             State         `json:"-"`
	StateName         string        `json:"state"`
	FailureCount      int           `json:"failure_count"`
	RemainingRecovery time.Duration `json:"remaining_recovery"`
	HalfOpenInFlight  int           `json:"half_open_in_flight"`
	HalfOpenSuccesses int           `json:"half_open_successes"`
	OpenedAt          time.Time     `json:"opened_at,omitempty"`
}

// GetStats returns current statistics.
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var remaining time.Duration
	if b.state == StateOpen {
		remaining = b.config.RecoveryTimeout - time.Since(b.openedAt)
		if remaining < 0 {
			remaining = 0
		}
	}

	return Stats{
		State:             b.state,
		StateName:         b.state.String(),
		FailureCount:      b.failureCount,
		RemainingRecovery: remaining,
		HalfOpenInFlight:  b.halfOpenInFlight,
		HalfOpenSuccesses: b.halfOpenSuccesses,
		OpenedAt:          b.openedAt,
	}
}
