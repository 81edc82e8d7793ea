package eventlog

import (
	"fmt"
	"path/filepath"
	"time"
)

// Kind tags an event line so a single file can hold several event types.
type Kind string

const (
	KindRangeLocked      Kind = "RANGE_LOCKED"
	KindHydrationSummary Kind = "HYDRATION_SUMMARY"
)

// RangeLockedEvent is emitted exactly once per (trading_date, stream_id,
// slot_time_chicago) by the only authoritative range-lock operation
// (spec §4.4), to both the hydration and ranges logs. It is also the
// canonical source for range restoration after restart (spec §4.8).
type RangeLockedEvent struct {
	Kind            Kind      `json:"kind"`
	TradingDate     string    `json:"trading_date"`
	StreamID        string    `json:"stream_id"`
	SlotTimeChicago string    `json:"slot_time_chicago"`
	RangeHigh       float64   `json:"range_high"`
	RangeLow        float64   `json:"range_low"`
	FreezeClose     float64   `json:"freeze_close"`
	FreezeCloseSource string  `json:"freeze_close_source"`
	BreakoutLongRounded  *float64 `json:"breakout_long_rounded,omitempty"`
	BreakoutShortRounded *float64 `json:"breakout_short_rounded,omitempty"`
	BreakoutLevelsMissing bool    `json:"breakout_levels_missing"`
	LockedAtUTC     time.Time `json:"locked_at_utc"`
}

// HydrationSummaryEvent is the consolidated summary emitted on exit from
// PRE_HYDRATION (spec §4.7).
type HydrationSummaryEvent struct {
	Kind               Kind      `json:"kind"`
	TradingDate        string    `json:"trading_date"`
	StreamID           string    `json:"stream_id"`
	LiveCount          int       `json:"live_count"`
	HistoricalCount    int       `json:"historical_count"`
	DedupedCount       int       `json:"deduped_count"`
	FilteredFutureCount int      `json:"filtered_future_count"`
	FilteredPartialCount int     `json:"filtered_partial_count"`
	ReconstructedRangeHigh *float64 `json:"reconstructed_range_high,omitempty"`
	ReconstructedRangeLow  *float64 `json:"reconstructed_range_low,omitempty"`
	HadZeroBarHydration bool    `json:"had_zero_bar_hydration"`
	LateStart           bool    `json:"late_start"`
	MissedBreakout       bool    `json:"missed_breakout"`
	BreakoutDirection    string  `json:"breakout_direction,omitempty"`
	AtUTC                time.Time `json:"at_utc"`
}

// Paths constructs the authoritative log file paths from spec §6:
// logs/robot/hydration_{YYYY-MM-DD}.jsonl (primary for range restore) and
// logs/robot/ranges_{YYYY-MM-DD}.jsonl (fallback).
type Paths struct {
	Root string // typically "logs/robot"
}

func (p Paths) HydrationPath(tradingDate time.Time) string {
	return filepath.Join(p.Root, fmt.Sprintf("hydration_%s.jsonl", tradingDate.Format("2006-01-02")))
}

func (p Paths) RangesPath(tradingDate time.Time) string {
	return filepath.Join(p.Root, fmt.Sprintf("ranges_%s.jsonl", tradingDate.Format("2006-01-02")))
}

// RangeLockedEventPersister appends a RangeLockedEvent to both the
// ranges log and the hydration log, mirroring spec §4.4 Phase B: "Emit
// RANGE_LOCKED event to both the ranges log and the hydration log."
type RangeLockedEventPersister struct {
	paths Paths
}

func NewRangeLockedEventPersister(paths Paths) *RangeLockedEventPersister {
	return &RangeLockedEventPersister{paths: paths}
}

func (p *RangeLockedEventPersister) Persist(tradingDate time.Time, ev RangeLockedEvent) error {
	ev.Kind = KindRangeLocked
	if err := Open(p.paths.RangesPath(tradingDate)).Append(ev); err != nil {
		return fmt.Errorf("eventlog: persist range-locked to ranges log: %w", err)
	}
	if err := Open(p.paths.HydrationPath(tradingDate)).Append(ev); err != nil {
		return fmt.Errorf("eventlog: persist range-locked to hydration log: %w", err)
	}
	return nil
}

// HydrationEventPersister appends HydrationSummaryEvents to the
// hydration log.
type HydrationEventPersister struct {
	paths Paths
}

func NewHydrationEventPersister(paths Paths) *HydrationEventPersister {
	return &HydrationEventPersister{paths: paths}
}

func (p *HydrationEventPersister) Persist(tradingDate time.Time, ev HydrationSummaryEvent) error {
	ev.Kind = KindHydrationSummary
	if err := Open(p.paths.HydrationPath(tradingDate)).Append(ev); err != nil {
		return fmt.Errorf("eventlog: persist hydration summary: %w", err)
	}
	return nil
}
