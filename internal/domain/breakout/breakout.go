// Package breakout computes breakout levels and protective bracket
// prices. Every function here is pure: no I/O, no clock, no state.
package breakout

import (
	"math"

	"github.com/sawpanic/orbstream/internal/domain/intent"
)

// Levels holds the derived raw and tick-rounded breakout prices.
type Levels struct {
	LongRaw       float64
	ShortRaw      float64
	LongRounded   *float64
	ShortRounded  *float64
	Missing       bool // true if rounding yielded no value on either side
}

// RoundMethod selects the tick-rounding strategy named by the parity
// spec's breakout.tick_rounding.method.
type RoundMethod string

const (
	RoundNearest RoundMethod = "nearest"
	RoundFavorable RoundMethod = "favorable" // long rounds up, short rounds down
)

// DeriveLevels computes brk_long_raw = range_high + tick, brk_short_raw =
// range_low - tick, and rounds both to the instrument tick size (spec
// §3). If tickSize <= 0, rounding cannot be performed and Missing is set.
func DeriveLevels(rangeHigh, rangeLow, tickSize float64, method RoundMethod) Levels {
	lv := Levels{
		LongRaw:  rangeHigh + tickSize,
		ShortRaw: rangeLow - tickSize,
	}
	if tickSize <= 0 {
		lv.Missing = true
		return lv
	}
	longR := roundToTick(lv.LongRaw, tickSize, method, intent.Long)
	shortR := roundToTick(lv.ShortRaw, tickSize, method, intent.Short)
	lv.LongRounded = &longR
	lv.ShortRounded = &shortR
	return lv
}

func roundToTick(price, tick float64, method RoundMethod, dir intent.Direction) float64 {
	ticks := price / tick
	switch method {
	case RoundFavorable:
		if dir == intent.Long {
			return math.Ceil(ticks) * tick
		}
		return math.Floor(ticks) * tick
	default: // RoundNearest
		return math.Round(ticks) * tick
	}
}

// Protective holds the full protective bracket derived for an entry.
type Protective struct {
	TargetPrice   float64
	StopPrice     float64
	BETriggerPts  float64
	BETriggerPrice float64
	BEStopPrice   float64
}

// DeriveProtective computes the protective bracket from a lock snapshot
// (spec §4.6). Pure, and safe to call eagerly at lock time before an
// entry is detected so stop-entry brackets carry correct protection.
func DeriveProtective(dir intent.Direction, entryPrice, rangeHigh, rangeLow, tickSize, baseTarget float64) Protective {
	slPoints := math.Min(rangeHigh-rangeLow, 3*baseTarget)
	beTriggerPts := 0.65 * baseTarget

	sign := 1.0
	if dir == intent.Short {
		sign = -1.0
	}

	return Protective{
		TargetPrice:    entryPrice + sign*baseTarget,
		StopPrice:      entryPrice - sign*slPoints,
		BETriggerPts:   beTriggerPts,
		BETriggerPrice: entryPrice + sign*beTriggerPts,
		BEStopPrice:    entryPrice - sign*tickSize,
	}
}
