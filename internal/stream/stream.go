// Package stream implements the per-slot state machine: state
// transitions, bar ingestion, range locking, entry detection, protective
// bracket derivation, idempotent journaling, restart recovery and
// trading-date carry-forward for one (instrument, trading-date,
// slot-time) unit.
//
// Scheduling contract: a Stream is cooperative single-threaded. The
// engine must not call Tick or OnBar concurrently for the same Stream;
// only the bar buffer's internal mutex exists to let bar delivery and
// tick-driving run on separate goroutines that still serialize through
// it (spec §5).
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/journal"
)

// emitHealth sends a HealthEvent on the optional health channel the
// engine supplies. The send never blocks: an engine too slow to drain
// the channel must not stall a stream's tick (spec §9 "message channels,
// no shared mutable singletons").
func (s *Stream) emitHealth(level eventlog.HealthLevel, code, message string, fields map[string]interface{}, now time.Time) {
	if s.deps.Health == nil {
		return
	}
	ev := eventlog.HealthEvent{
		StreamID:    s.cfg.StreamID,
		TradingDate: s.tradingDate.Format("2006-01-02"),
		Level:       level,
		Code:        code,
		Message:     message,
		AtUTC:       now,
		Fields:      fields,
	}
	select {
	case s.deps.Health <- ev:
	default:
	}
}

// State is one of the exhaustive StreamState variants (spec §3). Go has
// no tagged-union type; immutability of the range fields once RangeLocked
// is reached is enforced by convention (TryLockRange is the only writer)
// rather than by the type system, and is covered by tests instead.
type State string

const (
	PreHydration             State = "PRE_HYDRATION"
	Armed                    State = "ARMED"
	RangeBuilding            State = "RANGE_BUILDING"
	RangeLocked              State = "RANGE_LOCKED"
	Done                     State = "DONE"
	SuspendedDataInsufficient State = "SUSPENDED_DATA_INSUFFICIENT"
)

// Config is the per-stream identity and strategy configuration, sourced
// from the timetable entry and the parity spec (spec §3, §6).
type Config struct {
	StreamID            string
	ExecutionInstrument string
	CanonicalInstrument string
	Session             string
	SlotTimeChicago     string // "HH:mm"
	RangeStartChicago   string // "HH:mm", from the parity spec's session config
	MarketCloseChicago  string // "HH:mm", from the parity spec's global entry_cutoff

	TickSize    float64
	BaseTarget  float64
	IsMicro     bool
	RoundMethod breakout.RoundMethod
	Quantity    int

	Mode            execution.Mode
	LiveAdapterMode bool   // true: wait for host bars-request; false: CSV pre-hydration
	CSVDataRoot     string // root for file-based pre-hydration, e.g. "data/raw"

	// ExpectedHydrationBars estimates bar count for a full range window,
	// used for the 85% sufficiency threshold on restart (spec §4.7).
	ExpectedHydrationBars int
}

// Deps bundles every out-of-process collaborator a Stream calls into.
// All are interfaces or narrow structs so tests can substitute fakes.
type Deps struct {
	TS                 TimeService
	JournalStore       *journal.Store
	RangePersister     *eventlog.RangeLockedEventPersister
	HydrationPersister *eventlog.HydrationEventPersister
	EventPaths         eventlog.Paths
	ExecJournal        *eventlog.ExecutionJournal
	Adapter            execution.Adapter
	RiskGate           execution.RiskGate
	// PendingBarsRequest reports whether the host has an outstanding
	// historical-bars request for either instrument (spec §4.4 gate).
	PendingBarsRequest func(canonicalInstrument, executionInstrument string) bool
	Log                zerolog.Logger
	// Health is the send-only side of the health-event channel (spec §9
	// "alert callback... modeled as message channels"). Nil is a valid
	// zero value: emitHealth is then a no-op.
	Health chan<- eventlog.HealthEvent
}

// TimeService is the subset of timeservice.Service the stream package
// depends on, named here so test doubles don't need the real tzdata
// lookup.
type TimeService interface {
	ConstructChicagoTime(date time.Time, hhmm string) (time.Time, error)
	ConvertChicagoToUTC(zoned time.Time) time.Time
	ConvertUTCToChicago(utc time.Time) time.Time
	ChicagoDate(utc time.Time) time.Time
	SameChicagoDate(a, b time.Time) bool
}

// Stream is one slot's live state machine instance.
type Stream struct {
	cfg  Config
	deps Deps

	tradingDate time.Time
	state       State

	rangeStartChicago  time.Time
	slotTimeChicago    time.Time
	marketCloseChicago time.Time

	buf *bar.Buffer

	rangeLocked       bool
	rangeHigh         float64
	rangeLow          float64
	freezeClose       float64
	freezeCloseSource string
	breakoutLevels    breakout.Levels

	entryDetected bool
	entryIntent   *intent.Intent

	stopBracketsSubmittedAtLock bool
	rangeLockAttemptedAt        *time.Time
	rangeLockEventEmitted       bool
	slotEndSummaryLogged        bool
	hadZeroBarHydration         bool

	// gap tracking (spec §3 "Gap tracking"); never invalidates the range
	// (open question in spec §9), but the risk gate's data-freshness guard
	// reads the largest gap through GapMetrics.
	lastBarOpenChicago      *time.Time
	largestSingleGapMinutes float64
	totalGapMinutes         float64
	rangeInvalidated        bool
	rangeInvalidatedNotified bool

	rec journal.Record
}

// New constructs a fresh Stream with no prior journal (first time this
// slot has ever run).
func New(cfg Config, deps Deps, tradingDate, now time.Time) (*Stream, error) {
	s := &Stream{
		cfg:         cfg,
		deps:        deps,
		tradingDate: tradingDate,
		state:       PreHydration,
		buf:         bar.NewBuffer(),
	}
	if err := s.recomputeBoundaries(); err != nil {
		return nil, err
	}
	s.rec = journal.Record{
		TradingDate: tradingDate,
		StreamID:    cfg.StreamID,
		LastState:   string(PreHydration),
		LastUpdateUTC: now,
		SlotStatus:  journal.SlotActive,
		SlotInstanceKey: journal.SlotInstanceKeyFor(cfg.StreamID, cfg.SlotTimeChicago, tradingDate),
	}
	return s, nil
}

func (s *Stream) recomputeBoundaries() error {
	rs, err := s.deps.TS.ConstructChicagoTime(s.tradingDate, s.cfg.RangeStartChicago)
	if err != nil {
		return err
	}
	st, err := s.deps.TS.ConstructChicagoTime(s.tradingDate, s.cfg.SlotTimeChicago)
	if err != nil {
		return err
	}
	mc, err := s.deps.TS.ConstructChicagoTime(s.tradingDate, s.cfg.MarketCloseChicago)
	if err != nil {
		return err
	}
	s.rangeStartChicago = rs
	s.slotTimeChicago = st
	s.marketCloseChicago = mc
	return nil
}

// State returns the stream's current state.
func (s *Stream) State() State { return s.state }

// Journal returns a copy of the stream's current durable record.
func (s *Stream) Journal() journal.Record { return s.rec }

// BarBuffer exposes the stream's bar buffer for hydration/engine callers
// that need to feed bars directly (e.g. CSV pre-hydration).
func (s *Stream) BarBuffer() *bar.Buffer { return s.buf }

// GapMetrics returns the gap fields for the metrics snapshot and the
// risk gate's telemetry (spec §3 "Gap tracking").
func (s *Stream) GapMetrics() (largestSingleGapMinutes, totalGapMinutes float64) {
	return s.largestSingleGapMinutes, s.totalGapMinutes
}

// RangeQuality reports the locked range's width in ticks and whether
// breakout levels failed to derive (spec §3's breakout_levels_missing
// gate flag), consumed by the risk gate's range-quality guard. Zero
// width and false before a range is locked.
func (s *Stream) RangeQuality() (widthTicks float64, breakoutLevelsMissing bool) {
	if s.cfg.TickSize <= 0 {
		return 0, s.breakoutLevels.Missing
	}
	return (s.rangeHigh - s.rangeLow) / s.cfg.TickSize, s.breakoutLevels.Missing
}

// StreamID returns the stream's identity, used by the engine to label
// metrics and route bars without reaching into Config.
func (s *Stream) StreamID() string { return s.cfg.StreamID }

// CanonicalInstrument and ExecutionInstrument expose the identity pair
// PendingBarsTracker keys on.
func (s *Stream) CanonicalInstrument() string { return s.cfg.CanonicalInstrument }
func (s *Stream) ExecutionInstrument() string { return s.cfg.ExecutionInstrument }

// SetNextSlotTime records the UTC instant of this slot's next scheduled
// occurrence (tomorrow's slot_time for the same stream). The spec leaves
// the source of this value to the host; the engine is expected to
// compute it from the timetable and call this once a slot goes ACTIVE
// past entry, before the next UpdateTradingDate.
func (s *Stream) SetNextSlotTime(t time.Time, now time.Time) {
	s.rec.NextSlotTimeUTC = &t
	s.saveJournal(now)
}

func (s *Stream) saveJournal(now time.Time) {
	s.rec.LastState = string(s.state)
	s.rec.LastUpdateUTC = now
	s.rec.StopBracketsSubmittedAtLock = s.stopBracketsSubmittedAtLock
	s.rec.EntryDetected = s.entryDetected
	if err := s.deps.JournalStore.Save(s.rec); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("journal save failed")
	}
}

// commitTerminal transitions to Done, marks the journal committed with
// the given reason/terminal classification, and persists it.
func (s *Stream) commitTerminal(reason string, terminal journal.TerminalState, slotStatus journal.SlotStatus, now time.Time) {
	s.state = Done
	s.rec.LastState = string(Done)
	s.rec = s.rec.WithCommit(reason, terminal, slotStatus, now)
	s.deps.Log.Info().Str("stream", s.cfg.StreamID).Str("reason", reason).Msg("stream committed terminal")
	s.emitHealth(eventlog.HealthInfo, reason, "stream committed terminal", map[string]interface{}{
		"terminal_state": string(terminal),
		"slot_status":    string(slotStatus),
	}, now)
	if err := s.deps.JournalStore.Save(s.rec); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("journal save failed on commit")
	}
}

// Tick drives state transitions that depend only on wall-clock time
// (spec §4.7). It never panics; any internal error is logged and
// swallowed per spec §7 "the stream never throws out of tick or on_bar."
func (s *Stream) Tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Log.Error().Interface("panic", r).Str("stream", s.cfg.StreamID).Msg("recovered panic in Tick")
			s.emitHealth(eventlog.HealthCritical, "TICK_PANIC_RECOVERED", fmt.Sprintf("%v", r), nil, now)
		}
	}()

	switch s.state {
	case Done, SuspendedDataInsufficient:
		return
	case PreHydration:
		s.tickPreHydration(ctx, now)
	case Armed:
		s.tickArmed(now)
	case RangeBuilding:
		s.tickRangeBuilding(ctx, now)
	case RangeLocked:
		s.tickRangeLocked(ctx, now)
	}

	if s.rec.SlotStatus == journal.SlotActive {
		s.checkCarryForwardLifecycle(ctx, now)
	}
}

// OnBar ingests one bar for this stream (spec §4.2, §4.7). It never
// panics.
func (s *Stream) OnBar(ctx context.Context, b bar.Bar, source bar.Source, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Log.Error().Interface("panic", r).Str("stream", s.cfg.StreamID).Msg("recovered panic in OnBar")
			s.emitHealth(eventlog.HealthCritical, "ONBAR_PANIC_RECOVERED", fmt.Sprintf("%v", r), nil, now)
		}
	}()

	if s.state == Done || s.state == SuspendedDataInsufficient {
		return
	}

	result := s.buf.Add(b, source, now)
	if result.Outcome == bar.Rejected {
		s.deps.Log.Debug().Str("stream", s.cfg.StreamID).Str("reason", result.RejectReason).Msg("bar rejected")
		return
	}

	s.trackGap(b, now)

	switch s.state {
	case RangeBuilding:
		if !s.rangeLocked {
			s.updateSpeculativeRange(now)
		}
	case RangeLocked:
		s.checkIntrabarBreakout(ctx, b, now)
	}
}

// trackGap updates the gap fields (spec §3). It never changes the
// stream's state (spec §9 open question: gap invalidation is disabled).
func (s *Stream) trackGap(b bar.Bar, now time.Time) {
	chi := s.deps.TS.ConvertUTCToChicago(b.StartUTC)
	if s.lastBarOpenChicago != nil {
		gapMin := chi.Sub(*s.lastBarOpenChicago).Minutes()
		if gapMin > s.largestSingleGapMinutes {
			s.largestSingleGapMinutes = gapMin
		}
		if gapMin > 1 {
			s.totalGapMinutes += gapMin - 1
		}
	}
	t := chi
	s.lastBarOpenChicago = &t
}
