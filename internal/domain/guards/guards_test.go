package guards

import (
	"testing"
	"time"
)

func TestEvaluateSlotTimingGuard(t *testing.T) {
	config := SlotTimingConfig{MaxDelaySeconds: 30, MinDelaySeconds: 0}
	signalTime := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		delay     time.Duration
		wantAllow bool
	}{
		{"quick_execution", 15 * time.Second, true},
		{"at_threshold", 30 * time.Second, false},
		{"too_late", 35 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EvaluateSlotTimingGuard(SlotTimingInputs{
				Stream:        "es_0830",
				SignalTime:    signalTime,
				ExecutionTime: signalTime.Add(tt.delay),
			}, config)
			if result.Allow != tt.wantAllow {
				t.Errorf("Allow = %v, want %v (reason=%s)", result.Allow, tt.wantAllow, result.Reason)
			}
		})
	}
}

func TestEvaluateSlotTimingGuard_ClockSkewBlocks(t *testing.T) {
	config := SlotTimingConfig{MaxDelaySeconds: 30, MinDelaySeconds: 0}
	signalTime := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

	result := EvaluateSlotTimingGuard(SlotTimingInputs{
		SignalTime:    signalTime,
		ExecutionTime: signalTime.Add(-5 * time.Second),
	}, config)

	if result.Allow {
		t.Error("expected clock skew (negative delay) to block")
	}
}

func TestEvaluateRangeQualityGuard_BlocksMissingBreakoutLevels(t *testing.T) {
	config := RangeQualityConfig{MinWidthTicks: 2, MaxWidthTicks: 500}

	result := EvaluateRangeQualityGuard(RangeQualityInputs{
		BreakoutLevelsMissing: true,
		WidthTicks:            10,
	}, config)

	if result.Allow {
		t.Error("expected missing breakout levels to block regardless of width")
	}
}

func TestEvaluateRangeQualityGuard_BlocksTooNarrow(t *testing.T) {
	config := RangeQualityConfig{MinWidthTicks: 4, MaxWidthTicks: 500}

	result := EvaluateRangeQualityGuard(RangeQualityInputs{WidthTicks: 1}, config)

	if result.Allow {
		t.Error("expected a range narrower than the minimum to block")
	}
}

func TestEvaluateRangeQualityGuard_BlocksTooWide(t *testing.T) {
	config := RangeQualityConfig{MinWidthTicks: 1, MaxWidthTicks: 100}

	result := EvaluateRangeQualityGuard(RangeQualityInputs{WidthTicks: 250}, config)

	if result.Allow {
		t.Error("expected a range wider than the maximum to block")
	}
}

func TestEvaluateRangeQualityGuard_AllowsWithinBounds(t *testing.T) {
	config := RangeQualityConfig{MinWidthTicks: 1, MaxWidthTicks: 100}

	result := EvaluateRangeQualityGuard(RangeQualityInputs{WidthTicks: 20}, config)

	if !result.Allow {
		t.Errorf("expected a range within bounds to pass, got blocked: %s", result.Reason)
	}
}

func TestEvaluateDataFreshnessGuard_BlocksLargeGap(t *testing.T) {
	config := DataFreshnessConfig{MaxGapMinutes: 5}

	result := EvaluateDataFreshnessGuard(DataFreshnessInputs{LargestGapMinutes: 12}, config)

	if result.Allow {
		t.Error("expected a gap exceeding the max to block")
	}
}

func TestEvaluateDataFreshnessGuard_AllowsSmallGap(t *testing.T) {
	config := DataFreshnessConfig{MaxGapMinutes: 5}

	result := EvaluateDataFreshnessGuard(DataFreshnessInputs{LargestGapMinutes: 1}, config)

	if !result.Allow {
		t.Errorf("expected a small gap to pass, got blocked: %s", result.Reason)
	}
}

func TestEvaluateDataFreshnessGuard_ZeroMaxGapMinutesDisablesGuard(t *testing.T) {
	result := EvaluateDataFreshnessGuard(DataFreshnessInputs{LargestGapMinutes: 1000}, DataFreshnessConfig{MaxGapMinutes: 0})

	if !result.Allow {
		t.Error("expected MaxGapMinutes=0 to disable the guard (always allow)")
	}
}

func TestGuardEvaluator_EvaluateAllGuards_AllPass(t *testing.T) {
	evaluator := NewGuardEvaluator(GuardConfig{
		SlotTiming:    SlotTimingConfig{MaxDelaySeconds: 60},
		RangeQuality:  RangeQualityConfig{MinWidthTicks: 1, MaxWidthTicks: 500},
		DataFreshness: DataFreshnessConfig{MaxGapMinutes: 5},
	})

	signalTime := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	result := evaluator.EvaluateAllGuards(AllGuardsInputs{
		SlotTiming:    SlotTimingInputs{SignalTime: signalTime, ExecutionTime: signalTime.Add(time.Second)},
		RangeQuality:  RangeQualityInputs{WidthTicks: 10},
		DataFreshness: DataFreshnessInputs{LargestGapMinutes: 0},
	})

	if !result.AllowEntry {
		t.Errorf("expected all guards to pass, blocked by %s: %s", result.BlockedBy, result.BlockReason)
	}
}

func TestGuardEvaluator_EvaluateAllGuards_ReportsFirstBlocker(t *testing.T) {
	evaluator := NewGuardEvaluator(GuardConfig{
		SlotTiming:    SlotTimingConfig{MaxDelaySeconds: 1},
		RangeQuality:  RangeQualityConfig{MinWidthTicks: 1, MaxWidthTicks: 500},
		DataFreshness: DataFreshnessConfig{MaxGapMinutes: 5},
	})

	signalTime := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	result := evaluator.EvaluateAllGuards(AllGuardsInputs{
		SlotTiming:    SlotTimingInputs{SignalTime: signalTime, ExecutionTime: signalTime.Add(time.Minute)},
		RangeQuality:  RangeQualityInputs{WidthTicks: 10},
		DataFreshness: DataFreshnessInputs{LargestGapMinutes: 0},
	})

	if result.AllowEntry {
		t.Fatal("expected slot_timing guard to block")
	}
	if result.BlockedBy != "slot_timing" {
		t.Errorf("BlockedBy = %q, want slot_timing", result.BlockedBy)
	}
}
