// Package engine owns the running set of streams for one process: it
// drives each stream's Tick/OnBar from a single per-stream goroutine
// pumped by a buffered channel, applies the polled timetable, and fans
// out health events to the websocket hub, the Postgres mirror and
// zerolog (spec §5, §6, §9).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/config"
	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/domain/timeservice"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/journal"
	"github.com/sawpanic/orbstream/internal/net/circuit"
	"github.com/sawpanic/orbstream/internal/persistence"
	acctcache "github.com/sawpanic/orbstream/internal/providers/guards"
	"github.com/sawpanic/orbstream/internal/stream"
)

// pumpJob is one job on a stream's pump channel: a tick (tick=true) or
// a bar. Encoding both on one channel, rather than two, preserves delivery
// order between ticks and bars for a given stream, which the state
// machine's cooperative single-threaded contract assumes (spec §5).
type pumpJob struct {
	tick bool
	bar  bar.Bar
	src  bar.Source
	now  time.Time
	done chan struct{}
}

// ownedStream bundles a running Stream with its pump.
type ownedStream struct {
	s      *stream.Stream
	jobs   chan pumpJob
	cancel context.CancelFunc
}

// Deps bundles every collaborator the engine wires into each stream it
// constructs. Per-stream Deps are derived from this plus the timetable
// entry and parity spec lookups.
type Deps struct {
	TS           *timeservice.Service
	JournalStore *journal.Store
	EventPaths   eventlog.Paths
	ExecJournal  *eventlog.ExecutionJournal
	Adapter      execution.Adapter
	RiskGate     execution.RiskGate
	PendingBars  *PendingBarsTracker
	Mirror       persistence.MirrorRepo // nil-safe: best-effort audit mirror
	Log          zerolog.Logger
	Metrics      *Metrics

	// JobBufferSize sizes each stream's pump channel. Defaults to 64.
	JobBufferSize int
}

// Engine owns the running set of streams, keyed by stream ID, and
// implements config.StreamHandler so a Poller can drive it directly.
type Engine struct {
	deps Deps
	spec *config.ParitySpec

	mu      sync.RWMutex
	streams map[string]*ownedStream

	health     chan eventlog.HealthEvent
	healthSubs []chan eventlog.HealthEvent
	subsMu     sync.Mutex

	tradingDate time.Time
	liveMode    bool

	acctCache *acctcache.AccountSnapshotCache
}

// New constructs an Engine for one trading date. liveMode selects
// whether new streams wait on PendingBars (live) or CSV pre-hydrate.
func New(deps Deps, spec *config.ParitySpec, tradingDate time.Time, liveMode bool) *Engine {
	if deps.JobBufferSize <= 0 {
		deps.JobBufferSize = 64
	}
	return &Engine{
		deps:        deps,
		spec:        spec,
		streams:     make(map[string]*ownedStream),
		health:      make(chan eventlog.HealthEvent, 256),
		tradingDate: tradingDate,
		liveMode:    liveMode,
		acctCache:   acctcache.NewAccountSnapshotCache(5 * time.Second),
	}
}

// AccountSnapshot returns the adapter's account state as of now, served
// from a short TTL cache so the /account endpoint doesn't hit the
// adapter on every poll. Returns an error if no adapter is configured
// (dry-run engines built without one).
func (e *Engine) AccountSnapshot(ctx context.Context, now time.Time) (execution.AccountSnapshot, error) {
	if e.deps.Adapter == nil {
		return execution.AccountSnapshot{}, fmt.Errorf("engine: no execution adapter configured")
	}
	return e.acctCache.FetchCached(ctx, e.deps.Adapter, now)
}

// breakerHealth is implemented by an execution.Adapter that guards its
// calls with internal/net/circuit and wants that breaker's counters
// surfaced at /healthz. The engine depends on neither circuit nor a
// concrete adapter package to check for it.
type breakerHealth interface {
	BreakerStats() circuit.Stats
}

// AdapterBreakerStats returns the configured adapter's hot-path breaker
// counters, if it exposes breakerHealth. ok is false for an adapter
// (or no adapter) that doesn't guard its calls with a circuit.Breaker.
func (e *Engine) AdapterBreakerStats() (circuit.Stats, bool) {
	bh, ok := e.deps.Adapter.(breakerHealth)
	if !ok {
		return circuit.Stats{}, false
	}
	return bh.BreakerStats(), true
}

// Run starts the health fan-out pump and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.health:
			e.fanOutHealth(ev)
		}
	}
}

// SubscribeHealth registers a channel that receives every health event
// this engine's streams emit, used by the websocket hub (spec §9).
func (e *Engine) SubscribeHealth(buf int) <-chan eventlog.HealthEvent {
	ch := make(chan eventlog.HealthEvent, buf)
	e.subsMu.Lock()
	e.healthSubs = append(e.healthSubs, ch)
	e.subsMu.Unlock()
	return ch
}

func (e *Engine) fanOutHealth(ev eventlog.HealthEvent) {
	lvl := e.deps.Log.Info()
	if ev.Level == eventlog.HealthWarn {
		lvl = e.deps.Log.Warn()
	} else if ev.Level == eventlog.HealthCritical {
		lvl = e.deps.Log.Error()
	}
	lvl.Str("stream", ev.StreamID).Str("code", ev.Code).Msg(ev.Message)

	if e.deps.Mirror != nil && ev.Level == eventlog.HealthCritical {
		if err := e.deps.Mirror.MirrorJournal(context.Background(), persistence.JournalSnapshot{
			StreamID:      ev.StreamID,
			LastState:     ev.Code,
			SlotStatus:    string(ev.Level),
			LastUpdateUTC: ev.AtUTC,
			Fields:        ev.Fields,
		}); err != nil {
			e.deps.Log.Warn().Err(err).Msg("health event mirror failed")
		}
	}

	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, sub := range e.healthSubs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// StreamTelemetry implements execution.TelemetryFunc, wired into the
// risk gate so its guards can see a stream's live range width, missing
// breakout levels, and gap tracking without the engine depending on any
// concrete RiskGate implementation.
func (e *Engine) StreamTelemetry(streamID string) (execution.Telemetry, bool) {
	e.mu.RLock()
	owned, ok := e.streams[streamID]
	e.mu.RUnlock()
	if !ok {
		return execution.Telemetry{}, false
	}
	widthTicks, missing := owned.s.RangeQuality()
	largest, total := owned.s.GapMetrics()
	return execution.Telemetry{
		RangeWidthTicks:       widthTicks,
		BreakoutLevelsMissing: missing,
		LargestGapMinutes:     largest,
		TotalGapMinutes:       total,
	}, true
}

// StreamState implements config.StreamHandler.
func (e *Engine) StreamState(streamID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	os, ok := e.streams[streamID]
	if !ok {
		return "", false
	}
	return string(os.s.State()), true
}

// ApplyStream implements config.StreamHandler: it starts a new stream
// for an entry not yet owned, or is a no-op for one already running
// (slot_time changes to a running stream are rejected upstream by the
// poller itself per spec §6).
func (e *Engine) ApplyStream(entry config.StreamEntry) error {
	if !entry.Enabled {
		return nil
	}
	e.mu.RLock()
	_, exists := e.streams[entry.Stream]
	e.mu.RUnlock()
	if exists {
		return nil
	}
	return e.startStream(entry)
}

func (e *Engine) startStream(entry config.StreamEntry) error {
	instrument, ok := e.spec.Instrument(entry.Instrument)
	if !ok {
		return fmt.Errorf("engine: unknown instrument %q for stream %q", entry.Instrument, entry.Stream)
	}
	session, ok := e.spec.Session(entry.Session)
	if !ok {
		return fmt.Errorf("engine: unknown session %q for stream %q", entry.Session, entry.Stream)
	}

	roundMethod := breakout.RoundNearest
	if e.spec.Global.Breakout.TickRounding.Method == "favorable" {
		roundMethod = breakout.RoundFavorable
	}

	// A micro contract trades under its own symbol but runs its logic
	// against the underlying named by base_instrument.
	canonical := entry.Instrument
	if instrument.IsMicro && instrument.BaseInstrument != "" {
		canonical = instrument.BaseInstrument
	}

	cfg := stream.Config{
		StreamID:              entry.Stream,
		ExecutionInstrument:   entry.Instrument,
		CanonicalInstrument:   canonical,
		Session:               entry.Session,
		SlotTimeChicago:       entry.SlotTime,
		RangeStartChicago:     session.RangeStartTime,
		MarketCloseChicago:    e.spec.Global.EntryCutoff.MarketCloseTime,
		TickSize:              instrument.TickSize,
		BaseTarget:            instrument.BaseTarget,
		IsMicro:               instrument.IsMicro,
		RoundMethod:           roundMethod,
		Quantity:              1,
		Mode:                  execution.ModeLive,
		LiveAdapterMode:       e.liveMode,
		CSVDataRoot:           "data/raw",
		ExpectedHydrationBars: 30,
	}

	now := time.Now()
	deps := e.streamDeps(cfg)

	rec, found, err := e.deps.JournalStore.Load(journal.Record{TradingDate: e.tradingDate, StreamID: cfg.StreamID}.Key())
	var s *stream.Stream
	if found && err == nil {
		s, err = stream.NewFromJournal(cfg, deps, rec, now)
	} else {
		s, err = stream.New(cfg, deps, e.tradingDate, now)
	}
	if err != nil {
		return fmt.Errorf("engine: start stream %q: %w", entry.Stream, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	owned := &ownedStream{s: s, jobs: make(chan pumpJob, e.deps.JobBufferSize), cancel: cancel}

	e.mu.Lock()
	e.streams[entry.Stream] = owned
	e.mu.Unlock()

	go e.pump(ctx, owned)
	e.deps.Log.Info().Str("stream", entry.Stream).Str("instrument", entry.Instrument).Str("slot_time", entry.SlotTime).Msg("stream started")
	return nil
}

// streamDeps builds per-stream Deps, wiring the shared Health channel
// and the pending-bars side path.
func (e *Engine) streamDeps(cfg stream.Config) stream.Deps {
	var pendingFn func(string, string) bool
	if e.deps.PendingBars != nil {
		pendingFn = e.deps.PendingBars.Request
	}
	return stream.Deps{
		TS:                 e.deps.TS,
		JournalStore:       e.deps.JournalStore,
		RangePersister:     eventlog.NewRangeLockedEventPersister(e.deps.EventPaths),
		HydrationPersister: eventlog.NewHydrationEventPersister(e.deps.EventPaths),
		EventPaths:         e.deps.EventPaths,
		ExecJournal:        e.deps.ExecJournal,
		Adapter:            e.deps.Adapter,
		RiskGate:           e.deps.RiskGate,
		PendingBarsRequest: pendingFn,
		Log:                e.deps.Log.With().Str("stream", cfg.StreamID).Logger(),
		Health:             e.health,
	}
}

// pump is the single goroutine that owns calling Tick/OnBar for one
// stream, serializing every job off the buffered channel (spec §5).
func (e *Engine) pump(ctx context.Context, owned *ownedStream) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-owned.jobs:
			if job.tick {
				owned.s.Tick(ctx, job.now)
			} else {
				owned.s.OnBar(ctx, job.bar, job.src, job.now)
			}
			if e.deps.Metrics != nil {
				largest, total := owned.s.GapMetrics()
				e.deps.Metrics.Snapshot(owned.s.StreamID(), owned.s.State(), owned.s.BarBuffer().Counters(), largest, total, owned.s.Journal().SlotStatus)
			}
			if job.done != nil {
				close(job.done)
			}
		}
	}
}

// TickAll enqueues a tick for every running stream. Callers (the wall
// clock driver in cmd/orbrunner) call this roughly once per second; a
// full pump channel drops the tick rather than blocking the caller.
func (e *Engine) TickAll(now time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, owned := range e.streams {
		select {
		case owned.jobs <- pumpJob{tick: true, now: now}:
		default:
			e.deps.Log.Warn().Str("stream", id).Msg("tick dropped: pump channel full")
		}
	}
}

// RouteBar enqueues one bar for every running stream whose canonical
// instrument equals canonicalInstrument; a bar with no matching running
// stream is a no-op.
func (e *Engine) RouteBar(canonicalInstrument string, b bar.Bar, src bar.Source, now time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, owned := range e.streams {
		if owned.s.CanonicalInstrument() != canonicalInstrument {
			continue
		}
		select {
		case owned.jobs <- pumpJob{bar: b, src: src, now: now}:
		default:
			e.deps.Log.Warn().Str("stream", id).Msg("bar dropped: pump channel full")
		}
	}
}

// Streams returns a snapshot of every stream ID currently owned, for
// the /streams HTTP endpoint.
func (e *Engine) Streams() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.streams))
	for id := range e.streams {
		out = append(out, id)
	}
	return out
}

// StreamSnapshot describes one stream's state for the HTTP surface.
type StreamSnapshot struct {
	StreamID   string            `json:"stream_id"`
	State      string            `json:"state"`
	SlotStatus journal.SlotStatus `json:"slot_status"`
}

// Snapshot returns every owned stream's current state and slot status.
func (e *Engine) Snapshot() []StreamSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StreamSnapshot, 0, len(e.streams))
	for id, owned := range e.streams {
		out = append(out, StreamSnapshot{StreamID: id, State: string(owned.s.State()), SlotStatus: owned.s.Journal().SlotStatus})
	}
	return out
}

// Stop cancels every stream's pump goroutine.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, owned := range e.streams {
		owned.cancel()
	}
}
