package rangecalc

import (
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
)

// fixedOffsetTS is a deterministic TimeService double: Chicago == UTC-5,
// no DST handling, sufficient for range-window filtering logic tests.
type fixedOffsetTS struct{ offset time.Duration }

func (f fixedOffsetTS) ConvertUTCToChicago(utc time.Time) time.Time { return utc.Add(f.offset) }
func (f fixedOffsetTS) ConvertChicagoToUTC(zoned time.Time) time.Time { return zoned.Add(-f.offset) }
func (f fixedOffsetTS) SameChicagoDate(a, b time.Time) bool {
	ac := a.Add(f.offset)
	bc := b.Add(f.offset)
	ay, am, ad := ac.Date()
	by, bm, bd := bc.Date()
	return ay == by && am == bm && ad == bd
}

func newTS() fixedOffsetTS { return fixedOffsetTS{offset: -5 * time.Hour} }

func bars(chicagoStarts []time.Time, ts fixedOffsetTS) []bar.Bar {
	out := make([]bar.Bar, 0, len(chicagoStarts))
	for i, chi := range chicagoStarts {
		startUTC := ts.ConvertChicagoToUTC(chi)
		o := float64(10 + i)
		out = append(out, bar.Bar{StartUTC: startUTC, Open: o, High: o + 1, Low: o - 1, Close: o + 0.5})
	}
	return out
}

func TestCompute_Success(t *testing.T) {
	ts := newTS()
	tradingDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rangeStart := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 8, 35, 0, 0, time.UTC)

	snap := bars([]time.Time{
		rangeStart,
		rangeStart.Add(time.Minute),
		rangeStart.Add(2 * time.Minute),
		rangeStart.Add(10 * time.Minute), // outside window, excluded
	}, ts)

	res, err := Compute(ts, snap, tradingDate, rangeStart, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BarCount != 3 {
		t.Errorf("BarCount = %d, want 3", res.BarCount)
	}
	if res.RangeHigh <= res.RangeLow {
		t.Errorf("invalid range: high=%v low=%v", res.RangeHigh, res.RangeLow)
	}
	if res.FreezeCloseSource != "BAR_CLOSE" {
		t.Errorf("FreezeCloseSource = %q, want BAR_CLOSE", res.FreezeCloseSource)
	}
}

func TestCompute_InsufficientBars(t *testing.T) {
	ts := newTS()
	tradingDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rangeStart := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 8, 35, 0, 0, time.UTC)

	snap := bars([]time.Time{rangeStart, rangeStart.Add(time.Minute)}, ts)

	_, err := Compute(ts, snap, tradingDate, rangeStart, end)
	if !errors.Is(err, ErrInsufficientBars) {
		t.Errorf("expected ErrInsufficientBars, got %v", err)
	}
}

func TestCompute_ExcludesWrongTradingDate(t *testing.T) {
	ts := newTS()
	tradingDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rangeStart := time.Date(2026, 3, 3, 8, 30, 0, 0, time.UTC) // next day
	end := time.Date(2026, 3, 3, 8, 35, 0, 0, time.UTC)

	snap := bars([]time.Time{
		rangeStart, rangeStart.Add(time.Minute), rangeStart.Add(2 * time.Minute),
	}, ts)

	_, err := Compute(ts, snap, tradingDate, rangeStart, end)
	if !errors.Is(err, ErrInsufficientBars) {
		t.Errorf("expected bars outside tradingDate to be filtered out, got err=%v", err)
	}
}
