package stream

import (
	"context"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/journal"
)

var bothDirections = []intent.Direction{intent.Long, intent.Short}

func (s *Stream) ocoGroupID() string {
	return intent.OCOGroupID(s.tradingDate, s.cfg.StreamID, s.cfg.SlotTimeChicago)
}

func (s *Stream) breakoutPriceFor(dir intent.Direction) *float64 {
	if dir == intent.Long {
		return s.breakoutLevels.LongRounded
	}
	return s.breakoutLevels.ShortRounded
}

func (s *Stream) protectiveFor(dir intent.Direction, entryPrice float64) breakout.Protective {
	return breakout.DeriveProtective(dir, entryPrice, s.rangeHigh, s.rangeLow, s.cfg.TickSize, s.cfg.BaseTarget)
}

func protectivePolicy(p breakout.Protective) execution.IntentPolicy {
	stop := p.StopPrice
	target := p.TargetPrice
	return execution.IntentPolicy{
		AutoSubmitProtectiveStop: true,
		AutoSubmitTarget:         true,
		StopPrice:                &stop,
		TargetPrice:              &target,
	}
}

func (s *Stream) buildIntent(dir intent.Direction, entryPrice float64, now time.Time, reason string) intent.Intent {
	prot := s.protectiveFor(dir, entryPrice)
	stop := prot.StopPrice
	target := prot.TargetPrice
	beTrigger := prot.BETriggerPrice
	return intent.Intent{
		TradingDate:         s.tradingDate,
		Stream:              s.cfg.StreamID,
		CanonicalInstrument: s.cfg.CanonicalInstrument,
		Session:             s.cfg.Session,
		SlotTimeChicago:     s.cfg.SlotTimeChicago,
		Direction:           dir,
		EntryPrice:          entryPrice,
		StopPrice:           &stop,
		TargetPrice:         &target,
		BETrigger:           &beTrigger,
		EntryTimeUTC:        now,
		TriggerReason:       reason,
	}
}

// recordSubmission appends the adapter's response to the execution
// journal and logs a failed submission. The risk gate and idempotency
// checks happen in its callers before submission. It is shared by the
// immediate-at-lock, intrabar-breakout and stop-entry-bracket paths.
func (s *Stream) recordSubmission(intentID string, dir intent.Direction, result execution.SubmitResult, err error, now time.Time) {
	entry := eventlog.ExecutionJournalEntry{
		IntentID:      intentID,
		TradingDate:   s.tradingDate.Format("2006-01-02"),
		StreamID:      s.cfg.StreamID,
		Direction:     string(dir),
		Quantity:      s.cfg.Quantity,
		Submitted:     err == nil && result.Success,
		BrokerOrderID: result.BrokerOrderID,
		AtUTC:         now,
	}
	if appendErr := s.deps.ExecJournal.Append(s.tradingDate, s.cfg.StreamID, entry); appendErr != nil {
		s.deps.Log.Error().Err(appendErr).Str("stream", s.cfg.StreamID).Msg("execution journal append failed")
	}
	if err != nil {
		s.deps.Log.Warn().Err(err).Str("stream", s.cfg.StreamID).Str("intent_id", intentID).Msg("order submission failed")
	}
}

// evaluateImmediateEntryAtLock implements the immediate-at-lock path
// (spec §4.5): freeze_close >= brk_long or <= brk_short wins; ties favor
// Long.
func (s *Stream) evaluateImmediateEntryAtLock(ctx context.Context, now time.Time) {
	if s.entryDetected {
		return
	}
	if s.breakoutLevels.LongRounded == nil || s.breakoutLevels.ShortRounded == nil {
		return
	}

	immediateLong := s.freezeClose >= *s.breakoutLevels.LongRounded
	immediateShort := s.freezeClose <= *s.breakoutLevels.ShortRounded

	var dir intent.Direction
	switch {
	case immediateLong && immediateShort:
		distLong := s.freezeClose - *s.breakoutLevels.LongRounded
		distShort := *s.breakoutLevels.ShortRounded - s.freezeClose
		if distShort < distLong {
			dir = intent.Short
		} else {
			dir = intent.Long
		}
	case immediateLong:
		dir = intent.Long
	case immediateShort:
		dir = intent.Short
	default:
		return
	}

	entryPrice := *s.breakoutPriceFor(dir)
	slotUTC := s.deps.TS.ConvertChicagoToUTC(s.slotTimeChicago)
	s.submitEntry(ctx, dir, entryPrice, slotUTC, "IMMEDIATE_AT_LOCK", execution.OrderTypeLimit, now)
}

// checkIntrabarBreakout implements the RANGE_LOCKED intrabar path (spec
// §4.5): every bar in [slot_time, market_close) with high >= brk_long or
// low <= brk_short triggers entry; Long wins a same-bar tie.
func (s *Stream) checkIntrabarBreakout(ctx context.Context, b bar.Bar, now time.Time) {
	if s.entryDetected || s.breakoutLevels.Missing {
		return
	}
	slotUTC := s.deps.TS.ConvertChicagoToUTC(s.slotTimeChicago)
	closeUTC := s.deps.TS.ConvertChicagoToUTC(s.marketCloseChicago)
	if b.StartUTC.Before(slotUTC) || !b.StartUTC.Before(closeUTC) {
		return
	}

	longTrigger := s.breakoutLevels.LongRounded != nil && b.High >= *s.breakoutLevels.LongRounded
	shortTrigger := s.breakoutLevels.ShortRounded != nil && b.Low <= *s.breakoutLevels.ShortRounded

	var dir intent.Direction
	switch {
	case longTrigger:
		dir = intent.Long
	case shortTrigger:
		dir = intent.Short
	default:
		return
	}

	entryPrice := *s.breakoutPriceFor(dir)
	s.submitEntry(ctx, dir, entryPrice, b.StartUTC, "BREAKOUT", execution.OrderTypeStopMarket, now)
}

// tickRangeLocked drives breakout detection's time-based half (the bar-
// driven half lives in checkIntrabarBreakout via OnBar), retries stop-
// entry bracket submission for a stream restored mid-gap, and enforces
// the market-close cutoff.
func (s *Stream) tickRangeLocked(ctx context.Context, now time.Time) {
	if !s.stopBracketsSubmittedAtLock && !s.entryDetected && !s.breakoutLevels.Missing {
		s.retryStopEntryBrackets(ctx, now)
	}

	nowChicago := s.deps.TS.ConvertUTCToChicago(now)
	if s.entryDetected {
		return
	}
	if !nowChicago.Before(s.marketCloseChicago) {
		s.commitTerminal("NO_TRADE_MARKET_CLOSE", journal.TerminalNoTrade, journal.SlotNoTrade, now)
	}
}

// retryStopEntryBrackets covers the restart gap where TryLockRange
// persisted RangeLocked but the process crashed before
// runPhaseBPostLockActions submitted the stop-entry brackets: a stream
// restored from the journal into RangeLocked with
// stopBracketsSubmittedAtLock still false would otherwise sit there for
// the rest of the session with no working order and no signal. Called
// from every RangeLocked tick; submitStopEntryBrackets itself is the
// idempotency guard once it succeeds.
func (s *Stream) retryStopEntryBrackets(ctx context.Context, now time.Time) {
	s.deps.Log.Warn().Str("stream", s.cfg.StreamID).Msg("stop-entry brackets missing after restart, retrying submission")
	s.emitHealth(eventlog.HealthWarn, "RANGE_LOCKED_BRACKET_RETRY", "stop-entry brackets not submitted at lock time, retrying on restart", nil, now)
	s.submitStopEntryBrackets(ctx, now)
}

// submitEntry runs the full entry-detection pipeline (spec §4.5 steps
// 1-7): protective computation, intent construction, idempotency check,
// risk gate, intent registration, order submission, journaling.
func (s *Stream) submitEntry(ctx context.Context, dir intent.Direction, entryPrice float64, entryTimeUTC time.Time, reason string, orderType execution.OrderType, now time.Time) {
	i := s.buildIntent(dir, entryPrice, entryTimeUTC, reason)
	intentID := i.ID()

	if existing, found, err := s.deps.ExecJournal.FindByIntentID(s.tradingDate, s.cfg.StreamID, intentID); err == nil && found && existing.Submitted {
		s.deps.Log.Debug().Str("stream", s.cfg.StreamID).Str("intent_id", intentID).Msg("duplicate entry submission suppressed")
		s.markEntryDetected(i, now)
		return
	}

	gate, err := s.deps.RiskGate.CheckGates(ctx, s.cfg.Mode, s.tradingDate, s.cfg.StreamID, s.cfg.CanonicalInstrument, s.cfg.Session, s.cfg.SlotTimeChicago, true, true, now)
	if err != nil || !gate.Allowed {
		reasonStr := "risk_gate_error"
		if err == nil {
			reasonStr = gate.Reason
		}
		s.deps.Log.Warn().Str("stream", s.cfg.StreamID).Str("reason", reasonStr).Strs("failed_gates", gate.FailedGates).Msg("entry blocked by risk gate")
		return
	}

	if err := s.deps.Adapter.RegisterIntent(ctx, i); err != nil {
		s.deps.Log.Error().Err(err).Str("stream", s.cfg.StreamID).Msg("register intent failed")
		return
	}
	prot := s.protectiveFor(dir, entryPrice)
	_ = s.deps.Adapter.RegisterIntentPolicy(ctx, intentID, protectivePolicy(prot))

	var price *float64
	if orderType == execution.OrderTypeLimit {
		p := entryPrice
		price = &p
	}
	result, submitErr := s.deps.Adapter.SubmitEntryOrder(ctx, intentID, s.cfg.ExecutionInstrument, dir, price, s.cfg.Quantity, orderType, now)
	s.recordSubmission(intentID, dir, result, submitErr, now)

	if submitErr == nil && result.Success {
		s.markEntryDetected(i, now)
	}
}

func (s *Stream) markEntryDetected(i intent.Intent, now time.Time) {
	s.entryDetected = true
	s.entryIntent = &i
	s.rec.EntryDetected = true
	s.rec.OriginalIntentID = i.ID()
	s.saveJournal(now)
}
