package guards

import (
	"fmt"
)

// EvaluateDataFreshnessGuard checks that the bar feed's gap tracking
// (spec §3/§9, otherwise observability-only) hasn't exceeded the
// tolerance the gate is willing to trade on.
func EvaluateDataFreshnessGuard(inputs DataFreshnessInputs, config DataFreshnessConfig) GuardResult {
	shouldBlock := config.MaxGapMinutes > 0 && inputs.LargestGapMinutes > config.MaxGapMinutes

	details := map[string]interface{}{
		"largest_gap_minutes": inputs.LargestGapMinutes,
		"total_gap_minutes":   inputs.TotalGapMinutes,
		"max_gap_minutes":     config.MaxGapMinutes,
	}

	var reason string
	if !shouldBlock {
		reason = fmt.Sprintf("fresh (largest_gap=%.1fm <= %.1fm)", inputs.LargestGapMinutes, config.MaxGapMinutes)
	} else {
		reason = fmt.Sprintf("gap_too_large (%.1fm > %.1fm)", inputs.LargestGapMinutes, config.MaxGapMinutes)
	}

	return GuardResult{
		Allow:   !shouldBlock,
		Reason:  reason,
		Details: details,
	}
}
