package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/infrastructure/providers"
)

// PendingBarsTracker is a cross-process "historical-bars-request
// pending" flag backed by Redis, so multiple engine processes sharing
// one broker session agree on hydration state (spec §4.4 gate). A
// tracker failure never blocks a stream: Request fails open (reports
// not-pending) and logs a warning, since this is a best-effort side
// path, never the hot path, per spec §5.
type PendingBarsTracker struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *providers.SideBreakerManager
	log     zerolog.Logger
}

// NewPendingBarsTracker builds a tracker against an existing Redis
// client, guarded by a side breaker keyed providers.SideRedisPendingBars.
func NewPendingBarsTracker(client *redis.Client, ttl time.Duration, breaker *providers.SideBreakerManager, log zerolog.Logger) *PendingBarsTracker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PendingBarsTracker{client: client, ttl: ttl, breaker: breaker, log: log}
}

func pendingBarsKey(canonicalInstrument, executionInstrument string) string {
	return fmt.Sprintf("orbstream:pendingbars:%s:%s", canonicalInstrument, executionInstrument)
}

// MarkPending records that a historical-bars request is outstanding for
// the given instrument pair.
func (t *PendingBarsTracker) MarkPending(ctx context.Context, canonicalInstrument, executionInstrument string) error {
	_, err := t.breaker.Execute(providers.SideRedisPendingBars, func() (interface{}, error) {
		return nil, t.client.Set(ctx, pendingBarsKey(canonicalInstrument, executionInstrument), "1", t.ttl).Err()
	})
	if err != nil {
		t.log.Warn().Err(err).Str("canonical", canonicalInstrument).Str("execution", executionInstrument).Msg("mark pending-bars failed")
	}
	return err
}

// ClearPending removes the outstanding-request flag once historical
// bars have arrived.
func (t *PendingBarsTracker) ClearPending(ctx context.Context, canonicalInstrument, executionInstrument string) error {
	_, err := t.breaker.Execute(providers.SideRedisPendingBars, func() (interface{}, error) {
		return nil, t.client.Del(ctx, pendingBarsKey(canonicalInstrument, executionInstrument)).Err()
	})
	if err != nil {
		t.log.Warn().Err(err).Str("canonical", canonicalInstrument).Str("execution", executionInstrument).Msg("clear pending-bars failed")
	}
	return err
}

// Request implements the stream.Deps.PendingBarsRequest signature: a
// synchronous, context-free bool query the state machine calls from
// Tick/TryLockRange. It fails open on any Redis or breaker error.
func (t *PendingBarsTracker) Request(canonicalInstrument, executionInstrument string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	result, err := t.breaker.Execute(providers.SideRedisPendingBars, func() (interface{}, error) {
		return t.client.Exists(ctx, pendingBarsKey(canonicalInstrument, executionInstrument)).Result()
	})
	if err != nil {
		t.log.Warn().Err(err).Str("canonical", canonicalInstrument).Str("execution", executionInstrument).Msg("pending-bars check failed, assuming not pending")
		return false
	}
	count, _ := result.(int64)
	return count > 0
}
