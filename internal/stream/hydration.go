package stream

import (
	"context"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/rangecalc"
	"github.com/sawpanic/orbstream/internal/journal"
)

// preHydrationTimeout is the hard liveness bound on PRE_HYDRATION (spec
// §4.7): "if now_chicago >= range_start_chicago + 1 minute, force
// transition regardless of bar count."
const preHydrationTimeout = time.Minute

func (s *Stream) tickPreHydration(ctx context.Context, now time.Time) {
	nowChicago := s.deps.TS.ConvertUTCToChicago(now)

	if s.cfg.LiveAdapterMode {
		if s.deps.PendingBarsRequest != nil && s.deps.PendingBarsRequest(s.cfg.CanonicalInstrument, s.cfg.ExecutionInstrument) {
			if !nowChicago.Before(s.rangeStartChicago.Add(preHydrationTimeout)) {
				s.exitPreHydration(now)
			}
			return
		}
	} else {
		s.hydrateFromCSV(now)
	}

	if !nowChicago.Before(s.rangeStartChicago.Add(preHydrationTimeout)) {
		s.exitPreHydration(now)
		return
	}

	if nowChicago.Before(s.rangeStartChicago) {
		return
	}

	if s.buf.Count() > 0 {
		s.exitPreHydration(now)
	}
}

// hydrateFromCSV performs file-based pre-hydration for the configured
// trading date, reading bars in [range_start, min(now, slot_time)) and
// inserting them as CSV-sourced (spec §4.7).
func (s *Stream) hydrateFromCSV(now time.Time) {
	windowEndChicago := s.slotTimeChicago
	nowChicago := s.deps.TS.ConvertUTCToChicago(now)
	if nowChicago.Before(windowEndChicago) {
		windowEndChicago = nowChicago
	}
	windowStartUTC := s.deps.TS.ConvertChicagoToUTC(s.rangeStartChicago)
	windowEndUTC := s.deps.TS.ConvertChicagoToUTC(windowEndChicago)

	path := bar.CSVPath(s.cfg.CSVDataRoot, s.cfg.ExecutionInstrument, s.tradingDate)
	bars, skipped, err := bar.ReadCSV(path, windowStartUTC, windowEndUTC)
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("stream", s.cfg.StreamID).Str("path", path).Msg("csv pre-hydration read failed")
		return
	}
	for i := 0; i < skipped; i++ {
		s.buf.NoteFilteredFuture()
	}
	for _, b := range bars {
		s.buf.Add(b, bar.CSV, now)
	}
}

// exitPreHydration emits the consolidated hydration summary and
// transitions either to a committed terminal (late-start missed
// breakout) or to Armed (spec §4.7).
func (s *Stream) exitPreHydration(now time.Time) {
	counts := s.buf.Counters()
	s.hadZeroBarHydration = s.buf.Count() == 0

	summary := struct {
		late          bool
		missed        bool
		direction     string
		reconstructedHigh *float64
		reconstructedLow  *float64
	}{}

	nowChicago := s.deps.TS.ConvertUTCToChicago(now)
	if nowChicago.After(s.slotTimeChicago) {
		summary.late = true
		res, err := rangecalc.Compute(s.deps.TS, s.buf.Snapshot(), s.tradingDate, s.rangeStartChicago, s.slotTimeChicago)
		if err == nil {
			h, l := res.RangeHigh, res.RangeLow
			summary.reconstructedHigh = &h
			summary.reconstructedLow = &l

			dir, missedAt := s.scanLateStartBreakout(res.RangeHigh, res.RangeLow, now)
			if dir != "" {
				summary.missed = true
				summary.direction = dir
				s.persistHydrationSummary(counts, summary.reconstructedHigh, summary.reconstructedLow, summary.late, summary.missed, summary.direction, now)
				s.commitTerminal("NO_TRADE_LATE_START_MISSED_BREAKOUT", journal.TerminalNoTrade, journal.SlotNoTrade, now)
				_ = missedAt
				return
			}
		}
	}

	s.persistHydrationSummary(counts, summary.reconstructedHigh, summary.reconstructedLow, summary.late, summary.missed, summary.direction, now)

	s.state = Armed
	s.saveJournal(now)
}

// scanLateStartBreakout implements spec §4.7's late-start scan: bars in
// [slot_time, now] are scanned (strict inequalities), earliest wins.
func (s *Stream) scanLateStartBreakout(rangeHigh, rangeLow float64, now time.Time) (direction string, at time.Time) {
	slotUTC := s.deps.TS.ConvertChicagoToUTC(s.slotTimeChicago)
	for _, b := range s.buf.Snapshot() {
		if b.StartUTC.Before(slotUTC) || b.StartUTC.After(now) {
			continue
		}
		if b.High > rangeHigh {
			return "LONG", b.StartUTC
		}
		if b.Low < rangeLow {
			return "SHORT", b.StartUTC
		}
	}
	return "", time.Time{}
}

func (s *Stream) persistHydrationSummary(counts bar.Counters, reconstructedHigh, reconstructedLow *float64, late, missed bool, direction string, now time.Time) {
	ev := hydrationSummaryEventFrom(s, counts, reconstructedHigh, reconstructedLow, late, missed, direction, now)
	if err := s.deps.HydrationPersister.Persist(s.tradingDate, ev); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("hydration summary persist failed")
	}
}

func (s *Stream) tickArmed(now time.Time) {
	nowChicago := s.deps.TS.ConvertUTCToChicago(now)

	if !nowChicago.Before(s.marketCloseChicago) {
		s.commitTerminal("NO_TRADE_MARKET_CLOSE", journal.TerminalNoTrade, journal.SlotNoTrade, now)
		return
	}

	if !nowChicago.Before(s.rangeStartChicago) && s.buf.Count() > 0 {
		s.state = RangeBuilding
		s.saveJournal(now)
	}
}

func (s *Stream) tickRangeBuilding(ctx context.Context, now time.Time) {
	nowChicago := s.deps.TS.ConvertUTCToChicago(now)

	if !nowChicago.Before(s.marketCloseChicago) {
		s.commitTerminal("NO_TRADE_MARKET_CLOSE", journal.TerminalNoTrade, journal.SlotNoTrade, now)
		return
	}

	if !nowChicago.Before(s.slotTimeChicago) {
		s.TryLockRange(ctx, now)
	}
}

// updateSpeculativeRange performs the incremental range update permitted
// only while range_locked == false (spec §4.7).
func (s *Stream) updateSpeculativeRange(now time.Time) {
	res, err := rangecalc.Compute(s.deps.TS, s.buf.Snapshot(), s.tradingDate, s.rangeStartChicago, s.slotTimeChicago)
	if err != nil {
		return
	}
	s.rangeHigh = res.RangeHigh
	s.rangeLow = res.RangeLow
	s.freezeClose = res.FreezeClose
	s.freezeCloseSource = res.FreezeCloseSource
}
