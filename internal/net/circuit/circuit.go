// Package circuit guards the hot-path calls this repo cannot afford to
// retry indefinitely: execution.Adapter order submission and risk-gate
// evaluation. A tripped breaker here is not a side-path fallback (see
// internal/infrastructure/providers for that, built on sony/gobreaker
// instead) — it fails the call fast so the stream's state machine can
// react (log, hold the slot, surface it at /healthz) rather than hang on
// a broker that stopped answering.
package circuit

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned when the breaker is refusing calls.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when a guarded call exceeds its request timeout.
	ErrTimeout = errors.New("circuit breaker: request timeout")
)

// State is one of the three breaker states.
type State int

const (
	Closed   State = iota // calls pass through; failures accumulate
	Open                  // calls rejected until Config.Timeout elapses
	HalfOpen              // one cohort of trial calls allowed through
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls one Breaker's trip/recovery thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	SuccessThreshold int           // consecutive half-open successes that close it
	Timeout          time.Duration // Open duration before a half-open trial is allowed
	RequestTimeout   time.Duration // per-call deadline enforced on top of ctx
}

// Breaker is a single consecutive-failure circuit breaker guarding one
// outbound dependency (one broker session's adapter calls, in practice).
type Breaker struct {
	mu sync.RWMutex
	cfg Config

	state              State
	consecFailures     int
	consecSuccesses    int
	openedAt           time.Time
	lastStateChangeAt  time.Time

	requests, successes, failures, timeouts int64
}

// NewBreaker builds a Breaker in the Closed state.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, lastStateChangeAt: time.Now()}
}

// Call runs fn if the breaker currently admits calls, enforcing
// cfg.RequestTimeout on top of whatever deadline ctx already carries.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.admit() {
		return ErrOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	b.mu.Lock()
	b.requests++
	b.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- fn(callCtx) }()

	select {
	case err := <-result:
		if err != nil {
			b.recordFailure(false)
			return err
		}
		b.recordSuccess()
		return nil
	case <-callCtx.Done():
		b.recordFailure(true)
		return ErrTimeout
	}
}

// admit reports whether a call should be let through, transitioning
// Open -> HalfOpen once cfg.Timeout has elapsed since the trip.
func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(b.openedAt) > b.cfg.Timeout {
			b.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++

	switch b.state {
	case Closed:
		b.consecFailures = 0
	case HalfOpen:
		b.consecSuccesses++
		if b.consecSuccesses >= b.cfg.SuccessThreshold {
			b.transition(Closed)
			b.consecFailures, b.consecSuccesses = 0, 0
		}
	}
}

// recordFailure handles both a guarded call's error and its timeout;
// isTimeout only affects the timeout tally, trip logic is identical.
func (b *Breaker) recordFailure(isTimeout bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if isTimeout {
		b.timeouts++
	}

	switch b.state {
	case Closed:
		b.consecFailures++
		if b.consecFailures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
		b.consecSuccesses = 0
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.state = to
	b.lastStateChangeAt = time.Now()
	switch to {
	case Open:
		b.openedAt = time.Now()
	case HalfOpen:
		b.consecFailures = 0
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Stats is a snapshot of a Breaker's counters, JSON-friendly for
// exposing over /healthz.
type Stats struct {
	State                State     `json:"state"`
	TotalRequests        int64     `json:"total_requests"`
	TotalSuccesses       int64     `json:"total_successes"`
	TotalFailures        int64     `json:"total_failures"`
	TotalTimeouts        int64     `json:"total_timeouts"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastStateChange      time.Time `json:"last_state_change"`
	SuccessRate          float64   `json:"success_rate"`
}

// Healthy reports whether the breaker is closed and, once it has seen
// traffic, succeeding at least 90% of its calls.
func (s Stats) Healthy() bool {
	return s.State == Closed && (s.TotalRequests == 0 || s.SuccessRate >= 0.9)
}

// Stats snapshots the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var successRate float64
	if b.requests > 0 {
		successRate = float64(b.successes) / float64(b.requests)
	}

	return Stats{
		State:                b.state,
		TotalRequests:        b.requests,
		TotalSuccesses:       b.successes,
		TotalFailures:        b.failures,
		TotalTimeouts:        b.timeouts,
		ConsecutiveFailures:  b.consecFailures,
		ConsecutiveSuccesses: b.consecSuccesses,
		LastStateChange:      b.lastStateChangeAt,
		SuccessRate:          successRate,
	}
}

// Reset clears all counters and returns the breaker to Closed. Used by
// tests; no production caller needs it today.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecFailures, b.consecSuccesses = 0, 0
	b.requests, b.successes, b.failures, b.timeouts = 0, 0, 0, 0
	b.lastStateChangeAt = time.Now()
	b.openedAt = time.Time{}
}
