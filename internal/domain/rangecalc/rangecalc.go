// Package rangecalc computes the retrospective opening range from a bar
// snapshot. Failure modes are typed errors; they never mutate caller
// state (spec §4.3).
package rangecalc

import (
	"errors"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
)

// TimeService is the subset of timeservice.Service this package needs,
// named locally so callers can inject a test double without importing
// the concrete zoned-clock implementation (spec §9 "clock injection").
type TimeService interface {
	ConvertUTCToChicago(utc time.Time) time.Time
	ConvertChicagoToUTC(zoned time.Time) time.Time
	SameChicagoDate(a, b time.Time) bool
}

var (
	ErrInsufficientBars   = errors.New("rangecalc: fewer than 3 bars in range window")
	ErrInvalidRangeHighLow = errors.New("rangecalc: range_high must exceed range_low")
	ErrNoFreezeClose       = errors.New("rangecalc: no bar strictly before end time")
)

// Result is the successful output of a range computation.
type Result struct {
	RangeHigh         float64
	RangeLow          float64
	FreezeClose       float64
	FreezeCloseSource string
	BarCount          int
}

// Compute filters the snapshot to bars whose Chicago start time falls in
// [rangeStartChicago, endChicago) and whose Chicago trading date equals
// tradingDate, then derives range_high/low and freeze_close.
func Compute(ts TimeService, snapshot []bar.Bar, tradingDate, rangeStartChicago, endChicago time.Time) (Result, error) {
	var filtered []bar.Bar
	for _, b := range snapshot {
		chi := ts.ConvertUTCToChicago(b.StartUTC)
		if chi.Before(rangeStartChicago) || !chi.Before(endChicago) {
			continue
		}
		if !ts.SameChicagoDate(b.StartUTC, ts.ConvertChicagoToUTC(tradingDate)) {
			continue
		}
		filtered = append(filtered, b)
	}

	if len(filtered) < 3 {
		return Result{}, ErrInsufficientBars
	}

	res := Result{BarCount: len(filtered)}
	res.RangeHigh = filtered[0].High
	res.RangeLow = filtered[0].Low

	var lastBeforeEnd *bar.Bar
	for i := range filtered {
		b := filtered[i]
		if b.High > res.RangeHigh {
			res.RangeHigh = b.High
		}
		if b.Low < res.RangeLow {
			res.RangeLow = b.Low
		}
		chi := ts.ConvertUTCToChicago(b.StartUTC)
		if chi.Before(endChicago) {
			if lastBeforeEnd == nil || b.StartUTC.After(lastBeforeEnd.StartUTC) {
				bb := filtered[i]
				lastBeforeEnd = &bb
			}
		}
	}

	if lastBeforeEnd == nil {
		return Result{}, ErrNoFreezeClose
	}
	res.FreezeClose = lastBeforeEnd.Close
	res.FreezeCloseSource = "BAR_CLOSE"

	if res.RangeHigh <= res.RangeLow {
		return Result{}, ErrInvalidRangeHighLow
	}

	return res, nil
}
