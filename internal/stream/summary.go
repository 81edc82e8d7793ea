package stream

import (
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/eventlog"
)

func hydrationSummaryEventFrom(s *Stream, counts bar.Counters, reconstructedHigh, reconstructedLow *float64, late, missed bool, direction string, now time.Time) eventlog.HydrationSummaryEvent {
	return eventlog.HydrationSummaryEvent{
		TradingDate:            s.tradingDate.Format("2006-01-02"),
		StreamID:               s.cfg.StreamID,
		LiveCount:              counts.LiveCount,
		HistoricalCount:        counts.HistoricalCount,
		DedupedCount:           counts.DedupedCount,
		FilteredFutureCount:    counts.FilteredFutureCount,
		FilteredPartialCount:   counts.FilteredPartialCount,
		ReconstructedRangeHigh: reconstructedHigh,
		ReconstructedRangeLow:  reconstructedLow,
		HadZeroBarHydration:    s.hadZeroBarHydration,
		LateStart:              late,
		MissedBreakout:         missed,
		BreakoutDirection:      direction,
		AtUTC:                  now,
	}
}
