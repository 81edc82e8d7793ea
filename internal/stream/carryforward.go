package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/journal"
)

// checkCarryForwardLifecycle runs the market-close / re-entry / expiry
// checks for a slot still ACTIVE past range lock (spec §4.9). Called
// from Tick every cycle; each sub-check is internally idempotent via the
// journal fields it tests.
func (s *Stream) checkCarryForwardLifecycle(ctx context.Context, now time.Time) {
	if s.rec.NextSlotTimeUTC != nil && !now.Before(*s.rec.NextSlotTimeUTC) {
		s.HandleSlotExpiry(ctx, now)
		return
	}

	if s.rec.ExecutionInterruptedByClose && !s.rec.ReentrySubmitted {
		s.CheckMarketOpenReentry(ctx, now)
		return
	}

	if !s.rec.ExecutionInterruptedByClose {
		nowChicago := s.deps.TS.ConvertUTCToChicago(now)
		if !nowChicago.Before(s.marketCloseChicago) {
			s.HandleForcedFlatten(ctx, now)
		}
	}
}

// HandleForcedFlatten runs once at market close for ACTIVE streams (spec
// §4.9).
func (s *Stream) HandleForcedFlatten(ctx context.Context, now time.Time) {
	if s.rec.SlotStatus != journal.SlotActive || s.rec.ExecutionInterruptedByClose {
		return
	}

	hasFill, err := s.deps.ExecJournal.HasAnyFill(s.tradingDate, s.cfg.StreamID)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("forced flatten: fill lookup failed")
	}

	if !hasFill {
		s.commitTerminal("NO_TRADE_FORCED_FLATTEN_PRE_ENTRY", journal.TerminalNoTrade, journal.SlotNoTrade, now)
		return
	}

	s.rec.ExecutionInterruptedByClose = true
	t := now
	s.rec.ForcedFlattenTimestamp = &t
	if s.entryIntent != nil {
		s.rec.OriginalIntentID = s.entryIntent.ID()
	}
	// Slot remains ACTIVE across the day boundary; not committed.
	s.saveJournal(now)

	if _, err := s.deps.Adapter.Flatten(ctx, s.rec.OriginalIntentID, s.cfg.ExecutionInstrument, now); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("forced flatten: adapter flatten call failed")
	}
}

// UpdateTradingDate recomputes time boundaries for a new trading date
// (spec §4.8). Permitted only before state leaves PreHydration in live
// operation; a no-op if dates match. Post-entry-active slots are cloned
// forward rather than reset; stream_id is unchanged across the rollover.
func (s *Stream) UpdateTradingDate(newDate time.Time, now time.Time) error {
	if s.deps.TS.SameChicagoDate(s.deps.TS.ConvertChicagoToUTC(s.tradingDate), s.deps.TS.ConvertChicagoToUTC(newDate)) {
		return nil
	}
	if s.cfg.LiveAdapterMode && s.state != PreHydration {
		return fmt.Errorf("stream: trading date change rejected, state=%s is past PRE_HYDRATION", s.state)
	}

	postEntryActive := s.rec.SlotStatus == journal.SlotActive &&
		(s.rec.ExecutionInterruptedByClose || s.hasVerifiedFill()) &&
		(s.rec.NextSlotTimeUTC == nil || now.Before(*s.rec.NextSlotTimeUTC))

	oldTradingDate := s.tradingDate
	s.tradingDate = newDate
	if err := s.recomputeBoundaries(); err != nil {
		s.tradingDate = oldTradingDate
		return err
	}

	streamID := s.cfg.StreamID
	if postEntryActive {
		s.rec = s.rec.CloneForward(newDate, streamID)
	} else {
		s.rec = journal.Record{
			TradingDate:     newDate,
			StreamID:        streamID,
			LastState:       string(PreHydration),
			LastUpdateUTC:   now,
			SlotStatus:      journal.SlotActive,
			SlotInstanceKey: journal.SlotInstanceKeyFor(streamID, s.cfg.SlotTimeChicago, newDate),
		}
		s.state = PreHydration
		s.buf = bar.NewBuffer()
		s.rangeLocked = false
		s.entryDetected = false
		s.entryIntent = nil
		s.stopBracketsSubmittedAtLock = false
		s.rangeLockEventEmitted = false
		s.slotEndSummaryLogged = false
	}
	s.saveJournal(now)
	return nil
}

func (s *Stream) hasVerifiedFill() bool {
	hasFill, err := s.deps.ExecJournal.HasAnyFill(s.rec.TradingDate, s.rec.StreamID)
	if err != nil {
		return false
	}
	return hasFill
}

// CheckMarketOpenReentry runs each tick while a carried-forward slot
// awaits re-entry (spec §4.9).
func (s *Stream) CheckMarketOpenReentry(ctx context.Context, now time.Time) {
	nowChicago := s.deps.TS.ConvertUTCToChicago(now)
	if nowChicago.Before(s.rangeStartChicago) {
		return
	}
	if s.rec.NextSlotTimeUTC != nil && !now.Before(*s.rec.NextSlotTimeUTC) {
		return
	}

	journalKeys := []string{s.rec.PriorJournalKey}
	original, found, err := s.deps.ExecJournal.FindOriginalForReentry(journalKeys, s.rec.OriginalIntentID)
	if err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("re-entry lookup failed")
		return
	}
	if !found || !original.EntryFilled || original.Quantity <= 0 {
		return
	}

	reentryIntentID := s.rec.SlotInstanceKey + "_REENTRY"
	s.rec.ReentryIntentID = reentryIntentID
	s.rec.ReentrySubmitted = true
	s.saveJournal(now)

	dir := intent.Direction(original.Direction)
	result, err := s.deps.Adapter.SubmitEntryOrder(ctx, reentryIntentID, s.cfg.ExecutionInstrument, dir, nil, original.Quantity, execution.OrderTypeStopMarket, now)
	if err != nil || !result.Success {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("re-entry order submission failed")
		return
	}

	s.rec.ReentryFilled = true
	s.saveJournal(now)

	if original.FillPrice == nil {
		return
	}
	prot := s.protectiveFor(dir, *original.FillPrice)
	stopResult, stopErr := s.deps.Adapter.SubmitProtectiveStop(ctx, reentryIntentID, s.cfg.ExecutionInstrument, dir, prot.StopPrice, original.Quantity, now)
	_, _ = s.deps.Adapter.SubmitTargetOrder(ctx, reentryIntentID, s.cfg.ExecutionInstrument, dir, prot.TargetPrice, original.Quantity, now)

	s.rec.ProtectionSubmitted = true
	if stopErr == nil && stopResult.Success {
		s.rec.ProtectionAccepted = true
		s.rec.ExecutionInterruptedByClose = false
	}
	s.saveJournal(now)
}

// HandleSlotExpiry runs when now >= next_slot_time_utc for an ACTIVE slot
// (spec §4.9): flattens both legs best-effort, cancels known orders, and
// commits SLOT_EXPIRED.
func (s *Stream) HandleSlotExpiry(ctx context.Context, now time.Time) {
	if s.rec.SlotStatus != journal.SlotActive {
		return
	}

	if s.rec.OriginalIntentID != "" {
		if _, err := s.deps.Adapter.Flatten(ctx, s.rec.OriginalIntentID, s.cfg.ExecutionInstrument, now); err != nil {
			s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("slot expiry: flatten original failed")
		}
	}
	if s.rec.ReentryIntentID != "" {
		if _, err := s.deps.Adapter.Flatten(ctx, s.rec.ReentryIntentID, s.cfg.ExecutionInstrument, now); err != nil {
			s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("slot expiry: flatten re-entry failed")
		}
	}

	ids := []string{s.rec.OriginalIntentID, s.rec.ReentryIntentID, s.ocoGroupID()}
	if err := s.deps.Adapter.CancelRobotOwnedWorkingOrders(ctx, ids, now); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("slot expiry: cancel working orders failed")
	}

	s.commitTerminal("SLOT_EXPIRED", journal.TerminalTradeCompleted, journal.SlotExpired, now)
}
