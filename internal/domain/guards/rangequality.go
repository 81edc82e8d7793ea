package guards

import (
	"fmt"
)

// EvaluateRangeQualityGuard checks that a locked range is well-formed:
// breakout levels must have derived successfully, and the range's
// width must fall within the configured tick bounds.
func EvaluateRangeQualityGuard(inputs RangeQualityInputs, config RangeQualityConfig) GuardResult {
	if inputs.BreakoutLevelsMissing {
		return GuardResult{
			Allow:  false,
			Reason: "breakout_levels_missing",
			Details: map[string]interface{}{
				"breakout_levels_missing": true,
			},
		}
	}

	tooNarrow := inputs.WidthTicks < config.MinWidthTicks
	tooWide := config.MaxWidthTicks > 0 && inputs.WidthTicks > config.MaxWidthTicks
	shouldBlock := tooNarrow || tooWide

	details := map[string]interface{}{
		"width_ticks":     inputs.WidthTicks,
		"min_width_ticks": config.MinWidthTicks,
		"max_width_ticks": config.MaxWidthTicks,
		"too_narrow":      tooNarrow,
		"too_wide":        tooWide,
	}

	var reason string
	switch {
	case !shouldBlock:
		reason = fmt.Sprintf("range_ok (%.2f ticks within [%.2f, %.2f])", inputs.WidthTicks, config.MinWidthTicks, config.MaxWidthTicks)
	case tooNarrow:
		reason = fmt.Sprintf("range_too_narrow (%.2f < %.2f ticks)", inputs.WidthTicks, config.MinWidthTicks)
	default:
		reason = fmt.Sprintf("range_too_wide (%.2f > %.2f ticks)", inputs.WidthTicks, config.MaxWidthTicks)
	}

	return GuardResult{
		Allow:   !shouldBlock,
		Reason:  reason,
		Details: details,
	}
}
