package eventlog

import (
	"encoding/json"
	"time"
)

// RestoreRangeLocked scans hydration log (primary) then ranges log
// (fallback) for the most recent RANGE_LOCKED event matching
// (tradingDate, streamID, slotTimeChicago). Returns ok=false if neither
// log has a match, which the caller (stream construction, spec §4.8)
// treats as restoration failure.
func RestoreRangeLocked(paths Paths, tradingDate time.Time, streamID, slotTimeChicago string) (RangeLockedEvent, bool, error) {
	if ev, ok, err := scanForLock(paths.HydrationPath(tradingDate), streamID, slotTimeChicago); err != nil {
		return RangeLockedEvent{}, false, err
	} else if ok {
		return ev, true, nil
	}

	if ev, ok, err := scanForLock(paths.RangesPath(tradingDate), streamID, slotTimeChicago); err != nil {
		return RangeLockedEvent{}, false, err
	} else if ok {
		return ev, true, nil
	}

	return RangeLockedEvent{}, false, nil
}

func scanForLock(path, streamID, slotTimeChicago string) (RangeLockedEvent, bool, error) {
	var latest RangeLockedEvent
	found := false

	err := Open(path).ScanRaw(func(line []byte) error {
		var probe struct {
			Kind            Kind   `json:"kind"`
			StreamID        string `json:"stream_id"`
			SlotTimeChicago string `json:"slot_time_chicago"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return nil // malformed line: skip, don't fail the whole scan
		}
		if probe.Kind != KindRangeLocked || probe.StreamID != streamID || probe.SlotTimeChicago != slotTimeChicago {
			return nil
		}
		var ev RangeLockedEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil
		}
		if !found || ev.LockedAtUTC.After(latest.LockedAtUTC) {
			latest = ev
			found = true
		}
		return nil
	})
	return latest, found, err
}
