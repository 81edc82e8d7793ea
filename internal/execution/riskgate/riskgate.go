// Package riskgate is a reference execution.RiskGate implementation:
// timetable/armed preconditions first, then three entry guards (slot
// timing, range quality, data freshness) evaluated against live
// per-stream telemetry the engine supplies.
package riskgate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/domain/guards"
	"github.com/sawpanic/orbstream/internal/domain/timeservice"
	"github.com/sawpanic/orbstream/internal/execution"
)

// Gate implements execution.RiskGate.
type Gate struct {
	ts        *timeservice.Service
	evaluator *guards.GuardEvaluator
	log       zerolog.Logger

	// Telemetry looks up a stream's current range-quality and
	// data-freshness state. Wired by the caller (the engine knows
	// about running streams; this package deliberately doesn't) after
	// construction; nil is treated as "no telemetry available yet,"
	// which evaluates as an empty, not-yet-locked range.
	Telemetry execution.TelemetryFunc
}

// New builds a Gate from guard thresholds (spec §6 parity-spec-adjacent
// config, loaded the way internal/config loads the guard defaults).
func New(ts *timeservice.Service, cfg guards.GuardConfig, log zerolog.Logger) *Gate {
	return &Gate{
		ts:        ts,
		evaluator: guards.NewGuardEvaluator(cfg),
		log:       log,
	}
}

// CheckGates implements execution.RiskGate. A timetable or arming
// failure blocks before any guard runs; guard errors are impossible
// here (the guard evaluator is pure) but an unparsable slot_time_chicago
// blocks rather than panicking, consistent with spec §5's "treat a
// thrown error as block, never allow."
func (g *Gate) CheckGates(ctx context.Context, mode execution.Mode, tradingDate time.Time, stream, canonicalInstrument, session, slotTimeChicago string, timetableValidated, streamArmed bool, now time.Time) (execution.GateResult, error) {
	var failed []string

	if !timetableValidated {
		failed = append(failed, "timetable_validated")
	}
	if !streamArmed {
		failed = append(failed, "stream_armed")
	}
	if len(failed) > 0 {
		return execution.GateResult{Allowed: false, Reason: "preconditions_not_met", FailedGates: failed}, nil
	}

	slotUTC, err := g.ts.ConstructChicagoTime(tradingDate, slotTimeChicago)
	if err != nil {
		g.log.Warn().Err(err).Str("stream", stream).Str("slot_time_chicago", slotTimeChicago).Msg("risk gate: bad slot time, blocking")
		return execution.GateResult{Allowed: false, Reason: "bad_slot_time", FailedGates: []string{"slot_timing"}}, nil
	}

	var telemetry execution.Telemetry
	if g.Telemetry != nil {
		telemetry, _ = g.Telemetry(stream)
	}

	result := g.evaluator.EvaluateAllGuards(guards.AllGuardsInputs{
		SlotTiming: guards.SlotTimingInputs{
			Stream:        stream,
			SignalTime:    g.ts.ConvertChicagoToUTC(slotUTC),
			ExecutionTime: now,
		},
		RangeQuality: guards.RangeQualityInputs{
			Stream:                stream,
			WidthTicks:            telemetry.RangeWidthTicks,
			BreakoutLevelsMissing: telemetry.BreakoutLevelsMissing,
		},
		DataFreshness: guards.DataFreshnessInputs{
			Stream:            stream,
			LargestGapMinutes: telemetry.LargestGapMinutes,
			TotalGapMinutes:   telemetry.TotalGapMinutes,
		},
	})

	if !result.AllowEntry {
		return execution.GateResult{
			Allowed:     false,
			Reason:      fmt.Sprintf("%s: %s", result.BlockedBy, result.BlockReason),
			FailedGates: []string{result.BlockedBy},
		}, nil
	}

	return execution.GateResult{Allowed: true}, nil
}
