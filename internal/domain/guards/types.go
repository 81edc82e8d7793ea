package guards

import (
	"time"
)

// GuardConfig holds the risk gate's threshold configuration for the
// three entry guards evaluated on top of the timetable/armed
// preconditions (spec §6's check_gates signature carries only
// timetable_validated/stream_armed/slot_time_chicago; everything
// beyond those is this package's own gate).
type GuardConfig struct {
	SlotTiming    SlotTimingConfig    `yaml:"slot_timing"`
	RangeQuality  RangeQualityConfig  `yaml:"range_quality"`
	DataFreshness DataFreshnessConfig `yaml:"data_freshness"`
}

// SlotTimingConfig bounds how late an execution call may trail the
// stream's slot time before the gate blocks it. A fill negotiated long
// after the slot has less relationship to the range that triggered it.
type SlotTimingConfig struct {
	MaxDelaySeconds int `yaml:"max_delay_seconds"`
	MinDelaySeconds int `yaml:"min_delay_seconds"` // a negative delay signals clock skew
}

// RangeQualityConfig bounds the locked range's width, in ticks, that
// the gate considers well-formed. A range near zero ticks wide (a dead
// market) and an implausibly wide one (a bad print or feed glitch)
// both indicate the breakout levels aren't trustworthy.
type RangeQualityConfig struct {
	MinWidthTicks float64 `yaml:"min_width_ticks"`
	MaxWidthTicks float64 `yaml:"max_width_ticks"`
}

// DataFreshnessConfig bounds the bar feed's gap tolerance at decision
// time. The bar buffer tracks gap minutes purely as an observability
// signal (spec §3/§9's open question on gap tracking); this guard is
// the one place a large gap actually blocks an entry.
type DataFreshnessConfig struct {
	MaxGapMinutes float64 `yaml:"max_gap_minutes"`
}

// SlotTimingInputs is the evaluator input for the slot-timing guard.
type SlotTimingInputs struct {
	Stream        string
	SignalTime    time.Time // the stream's slot_time_chicago, converted to UTC
	ExecutionTime time.Time // now, the call's wall clock
}

// RangeQualityInputs is the evaluator input for the range-quality
// guard.
type RangeQualityInputs struct {
	Stream                string
	WidthTicks            float64
	BreakoutLevelsMissing bool
}

// DataFreshnessInputs is the evaluator input for the data-freshness
// guard.
type DataFreshnessInputs struct {
	Stream            string
	LargestGapMinutes float64
	TotalGapMinutes   float64
}

// GuardResult is one guard's verdict.
type GuardResult struct {
	Allow   bool
	Reason  string
	Details map[string]interface{}
}

// AllGuardsInputs bundles every guard's input for one evaluation.
type AllGuardsInputs struct {
	SlotTiming    SlotTimingInputs
	RangeQuality  RangeQualityInputs
	DataFreshness DataFreshnessInputs
}

// AllGuardsResult is the combined verdict across every guard.
type AllGuardsResult struct {
	AllowEntry   bool
	BlockReason  string
	BlockedBy    string // which guard blocked, empty if none did
	GuardResults map[string]GuardResult
}
