package guards

// GuardEvaluator orchestrates the three entry guards (slot timing,
// range quality, data freshness) against one GuardConfig.
type GuardEvaluator struct {
	config GuardConfig
}

// NewGuardEvaluator creates a new guard evaluator.
func NewGuardEvaluator(config GuardConfig) *GuardEvaluator {
	return &GuardEvaluator{config: config}
}

// EvaluateAllGuards runs all three guards and returns the combined
// result. Every guard must pass for AllowEntry.
func (ge *GuardEvaluator) EvaluateAllGuards(inputs AllGuardsInputs) AllGuardsResult {
	slotTimingResult := EvaluateSlotTimingGuard(inputs.SlotTiming, ge.config.SlotTiming)
	rangeQualityResult := EvaluateRangeQualityGuard(inputs.RangeQuality, ge.config.RangeQuality)
	dataFreshnessResult := EvaluateDataFreshnessGuard(inputs.DataFreshness, ge.config.DataFreshness)

	guardResults := map[string]GuardResult{
		"slot_timing":    slotTimingResult,
		"range_quality":  rangeQualityResult,
		"data_freshness": dataFreshnessResult,
	}

	allowEntry := slotTimingResult.Allow && rangeQualityResult.Allow && dataFreshnessResult.Allow

	var blockReason, blockedBy string
	if !allowEntry {
		// Check guards in order of priority; the first to block wins.
		ordered := []struct {
			name   string
			result GuardResult
		}{
			{"slot_timing", slotTimingResult},
			{"range_quality", rangeQualityResult},
			{"data_freshness", dataFreshnessResult},
		}
		for _, guard := range ordered {
			if !guard.result.Allow {
				blockReason = guard.result.Reason
				blockedBy = guard.name
				break
			}
		}
	} else {
		blockReason = "all_guards_passed"
	}

	return AllGuardsResult{
		AllowEntry:   allowEntry,
		BlockReason:  blockReason,
		BlockedBy:    blockedBy,
		GuardResults: guardResults,
	}
}

// GetEffectiveThresholds returns the thresholds the evaluator is
// currently configured with, for the /streams or /healthz surfaces to
// report alongside a stream's state.
func (ge *GuardEvaluator) GetEffectiveThresholds() map[string]interface{} {
	return map[string]interface{}{
		"slot_timing": map[string]interface{}{
			"max_delay_seconds": ge.config.SlotTiming.MaxDelaySeconds,
		},
		"range_quality": map[string]interface{}{
			"min_width_ticks": ge.config.RangeQuality.MinWidthTicks,
			"max_width_ticks": ge.config.RangeQuality.MaxWidthTicks,
		},
		"data_freshness": map[string]interface{}{
			"max_gap_minutes": ge.config.DataFreshness.MaxGapMinutes,
		},
	}
}
