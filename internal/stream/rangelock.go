package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/domain/rangecalc"
	"github.com/sawpanic/orbstream/internal/eventlog"
)

// TryLockRange is the single authoritative operation that may set
// range_locked = true and enter RangeLocked (spec §4.4). Returns true if
// the range is locked after the call, including when it was already
// locked before it.
func (s *Stream) TryLockRange(ctx context.Context, now time.Time) bool {
	if s.rangeLocked {
		return true
	}

	if s.cfg.LiveAdapterMode && s.deps.PendingBarsRequest != nil &&
		s.deps.PendingBarsRequest(s.cfg.CanonicalInstrument, s.cfg.ExecutionInstrument) {
		return false
	}

	// Phase A: atomic, no side effects.
	res, err := rangecalc.Compute(s.deps.TS, s.buf.Snapshot(), s.tradingDate, s.rangeStartChicago, s.slotTimeChicago)
	if err != nil {
		t := now
		s.rangeLockAttemptedAt = &t
		s.deps.Log.Debug().Err(err).Str("stream", s.cfg.StreamID).Msg("range lock attempt failed, retry next tick")
		return false
	}
	if res.RangeHigh <= res.RangeLow || res.BarCount == 0 {
		s.deps.Log.Error().Str("stream", s.cfg.StreamID).Msg("CRITICAL: range lock validation failed on otherwise-successful compute")
		s.emitHealth(eventlog.HealthCritical, "RANGE_LOCK_VALIDATION_FAILED", "range lock validation failed on otherwise-successful compute", nil, now)
		return false
	}

	s.rangeHigh = res.RangeHigh
	s.rangeLow = res.RangeLow
	s.freezeClose = res.FreezeClose
	s.freezeCloseSource = res.FreezeCloseSource

	s.breakoutLevels = breakout.DeriveLevels(s.rangeHigh, s.rangeLow, s.cfg.TickSize, s.cfg.RoundMethod)

	if s.rangeLocked {
		s.deps.Log.Error().Str("stream", s.cfg.StreamID).Msg("CRITICAL: duplicate range lock attempt")
		s.emitHealth(eventlog.HealthCritical, "DUPLICATE_RANGE_LOCK_ATTEMPT", "duplicate range lock attempt suppressed", nil, now)
		return true
	}
	s.rangeLocked = true
	s.state = RangeLocked
	s.saveJournal(now)

	s.runPhaseBPostLockActions(ctx, now)
	return true
}

// runPhaseBPostLockActions performs the best-effort post-lock side
// effects (spec §4.4 Phase B). Failures here are logged and never unlock
// the range.
func (s *Stream) runPhaseBPostLockActions(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Log.Error().Interface("panic", r).Str("stream", s.cfg.StreamID).Msg("RANGE_LOCKED_POST_ACTIONS_FAILED")
			s.emitHealth(eventlog.HealthCritical, "RANGE_LOCKED_POST_ACTIONS_FAILED", fmt.Sprintf("%v", r), nil, now)
		}
	}()

	s.emitRangeLockedEvent(now)

	if !s.slotEndSummaryLogged {
		s.deps.Log.Info().Str("stream", s.cfg.StreamID).
			Float64("range_high", s.rangeHigh).Float64("range_low", s.rangeLow).
			Msg("range valid, awaiting signal")
		s.slotEndSummaryLogged = true
	}

	if !s.breakoutLevels.Missing {
		s.evaluateImmediateEntryAtLock(ctx, now)
		s.submitStopEntryBrackets(ctx, now)
	}
}

func (s *Stream) emitRangeLockedEvent(now time.Time) {
	if s.rangeLockEventEmitted {
		s.deps.Log.Error().Str("stream", s.cfg.StreamID).Msg("CRITICAL: duplicate RANGE_LOCKED emission suppressed")
		s.emitHealth(eventlog.HealthCritical, "DUPLICATE_RANGE_LOCKED_EMISSION", "duplicate RANGE_LOCKED emission suppressed", nil, now)
		return
	}
	ev := eventlog.RangeLockedEvent{
		TradingDate:           s.tradingDate.Format("2006-01-02"),
		StreamID:              s.cfg.StreamID,
		SlotTimeChicago:       s.cfg.SlotTimeChicago,
		RangeHigh:             s.rangeHigh,
		RangeLow:              s.rangeLow,
		FreezeClose:           s.freezeClose,
		FreezeCloseSource:     s.freezeCloseSource,
		BreakoutLongRounded:   s.breakoutLevels.LongRounded,
		BreakoutShortRounded:  s.breakoutLevels.ShortRounded,
		BreakoutLevelsMissing: s.breakoutLevels.Missing,
		LockedAtUTC:           now,
	}
	if err := s.deps.RangePersister.Persist(s.tradingDate, ev); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("range locked event persist failed")
		return
	}
	s.rangeLockEventEmitted = true
}

// submitStopEntryBrackets places the paired Long/Short stop-entry
// brackets at lock time, each idempotency-checked on its own intent_id
// (spec §4.4 Phase B, §4.5 step 3).
func (s *Stream) submitStopEntryBrackets(ctx context.Context, now time.Time) {
	if s.stopBracketsSubmittedAtLock {
		return
	}
	ocoGroup := s.ocoGroupID()

	for _, dir := range bothDirections {
		price := s.breakoutPriceFor(dir)
		if price == nil {
			continue
		}
		i := s.buildIntent(dir, *price, now, "BREAKOUT")
		intentID := i.ID()

		if existing, found, err := s.deps.ExecJournal.FindByIntentID(s.tradingDate, s.cfg.StreamID, intentID); err == nil && found && existing.Submitted {
			continue
		}

		if err := s.deps.Adapter.RegisterIntent(ctx, i); err != nil {
			s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("register intent failed")
			continue
		}
		prot := s.protectiveFor(dir, *price)
		_ = s.deps.Adapter.RegisterIntentPolicy(ctx, intentID, protectivePolicy(prot))

		result, err := s.deps.Adapter.SubmitStopEntryOrder(ctx, intentID, s.cfg.ExecutionInstrument, dir, *price, s.cfg.Quantity, ocoGroup, now)
		s.recordSubmission(intentID, dir, result, err, now)
	}
	s.stopBracketsSubmittedAtLock = true
	s.saveJournal(now)
}
