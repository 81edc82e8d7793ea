package stream

import (
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/journal"
)

// sufficiencyThreshold is the 85% bar-count floor from spec §4.7 used to
// decide SuspendedDataInsufficient vs. continuing after a failed restore.
const sufficiencyThreshold = 0.85

// NewFromJournal reconstructs a Stream from a persisted journal.Record
// (spec §4.8). now is the construction instant.
func NewFromJournal(cfg Config, deps Deps, rec journal.Record, now time.Time) (*Stream, error) {
	s := &Stream{
		cfg:         cfg,
		deps:        deps,
		tradingDate: rec.TradingDate,
		state:       State(rec.LastState),
		buf:         bar.NewBuffer(),
		rec:         rec,
	}
	if err := s.recomputeBoundaries(); err != nil {
		return nil, err
	}

	s.stopBracketsSubmittedAtLock = rec.StopBracketsSubmittedAtLock
	s.entryDetected = rec.EntryDetected
	if !s.entryDetected {
		if hasFill, err := s.deps.ExecJournal.HasAnyFill(s.tradingDate, s.cfg.StreamID); err == nil && hasFill {
			s.entryDetected = true
		}
	}

	if s.state != RangeLocked {
		return s, nil
	}

	ev, found, err := eventlog.RestoreRangeLocked(s.deps.EventPaths, s.tradingDate, s.cfg.StreamID, s.cfg.SlotTimeChicago)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("range lock restoration scan failed")
	}
	if found {
		s.restoreFromEvent(ev)
		return s, nil
	}

	// Restoration failed: evaluate sufficiency of whatever bars are
	// currently obtainable before suspending (spec §4.7).
	if s.cfg.ExpectedHydrationBars > 0 {
		have := float64(s.buf.Count())
		want := float64(s.cfg.ExpectedHydrationBars) * sufficiencyThreshold
		if have < want {
			s.state = SuspendedDataInsufficient
			s.saveJournal(now)
			return s, nil
		}
	}
	return s, nil
}

// restoreFromEvent rehydrates range/freeze/breakout state from a
// restored RANGE_LOCKED event (spec §4.8 step 2), recomputing breakout
// levels if the event predates that field being recorded.
func (s *Stream) restoreFromEvent(ev eventlog.RangeLockedEvent) {
	s.rangeHigh = ev.RangeHigh
	s.rangeLow = ev.RangeLow
	s.freezeClose = ev.FreezeClose
	s.freezeCloseSource = ev.FreezeCloseSource
	s.rangeLocked = true
	s.rangeLockEventEmitted = true
	s.state = RangeLocked

	if ev.BreakoutLongRounded != nil || ev.BreakoutShortRounded != nil {
		s.breakoutLevels = breakout.Levels{
			LongRounded:  ev.BreakoutLongRounded,
			ShortRounded: ev.BreakoutShortRounded,
			Missing:      ev.BreakoutLevelsMissing,
		}
	} else {
		s.breakoutLevels = breakout.DeriveLevels(s.rangeHigh, s.rangeLow, s.cfg.TickSize, s.cfg.RoundMethod)
	}
}
