package guards

import (
	"fmt"
)

// EvaluateSlotTimingGuard checks how far an execution call trails the
// stream's slot time.
func EvaluateSlotTimingGuard(inputs SlotTimingInputs, config SlotTimingConfig) GuardResult {
	delay := inputs.ExecutionTime.Sub(inputs.SignalTime)
	delaySeconds := int(delay.Seconds())

	if delaySeconds < config.MinDelaySeconds {
		return GuardResult{
			Allow:  false,
			Reason: fmt.Sprintf("clock_skew (delay=%ds < %ds)", delaySeconds, config.MinDelaySeconds),
			Details: map[string]interface{}{
				"delay_seconds": delaySeconds,
				"clock_skew":    true,
			},
		}
	}

	shouldBlock := delaySeconds >= config.MaxDelaySeconds

	details := map[string]interface{}{
		"delay_seconds": delaySeconds,
		"max_delay":     config.MaxDelaySeconds,
	}

	var reason string
	if !shouldBlock {
		reason = fmt.Sprintf("timing_ok (%ds < %ds)", delaySeconds, config.MaxDelaySeconds)
	} else {
		reason = fmt.Sprintf("too_late (%ds >= %ds)", delaySeconds, config.MaxDelaySeconds)
	}

	return GuardResult{
		Allow:   !shouldBlock,
		Reason:  reason,
		Details: details,
	}
}
