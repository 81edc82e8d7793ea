// Package providers guards the engine's best-effort side paths — the
// Postgres journal mirror and the Redis pending-bars tracker — with
// sony/gobreaker circuit breakers. Neither side path ever gates a
// stream's control flow (spec §5): a tripped breaker here only means the
// mirror write or pending-bars lookup is skipped for a while, logged and
// swallowed, the same discipline the hot-path breaker in
// internal/net/circuit applies to adapter and risk-gate calls.
package providers

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Side path names recognized by SideBreakerManager.
const (
	SidePostgresMirror   = "postgres_mirror"
	SideRedisPendingBars = "redis_pendingbars"
)

// SideBreakerConfig controls one side path's breaker.
type SideBreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// DefaultSideBreakerConfigs returns sane defaults for the two known side
// paths: the Postgres mirror tolerates more consecutive failures (5)
// before tripping since each failed insert is a lost analytics row, while
// the Redis pending-bars tracker trips faster (3) since it's consulted
// every tick.
func DefaultSideBreakerConfigs() map[string]SideBreakerConfig {
	return map[string]SideBreakerConfig{
		SidePostgresMirror: {
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		SideRedisPendingBars: {
			MaxRequests:         1,
			Interval:            30 * time.Second,
			Timeout:             10 * time.Second,
			ConsecutiveFailures: 3,
		},
	}
}

// SideBreakerManager wraps each configured side path in its own
// gobreaker.CircuitBreaker.
type SideBreakerManager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// NewSideBreakerManager builds a manager from the given per-path configs.
func NewSideBreakerManager(configs map[string]SideBreakerConfig, log zerolog.Logger) *SideBreakerManager {
	m := &SideBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(configs)),
		log:      log,
	}
	for name, cfg := range configs {
		name := name
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			OnStateChange: func(breakerName string, from, to gobreaker.State) {
				m.log.Warn().
					Str("side_path", breakerName).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("side path circuit breaker state change")
			},
		}
		m.breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}
	return m
}

// Execute runs fn through the named side path's breaker. If the path is
// unknown, fn runs unguarded (a misconfigured side path should not be
// able to block a caller outright).
func (m *SideBreakerManager) Execute(path string, fn func() (interface{}, error)) (interface{}, error) {
	m.mu.RLock()
	breaker, ok := m.breakers[path]
	m.mu.RUnlock()
	if !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// State reports the current breaker state for a side path, e.g. for the
// /healthz surface.
func (m *SideBreakerManager) State(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	breaker, ok := m.breakers[path]
	if !ok {
		return "", fmt.Errorf("unknown side path: %s", path)
	}
	return breaker.State().String(), nil
}
