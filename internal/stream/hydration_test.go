package stream

import (
	"context"
	"testing"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/journal"
)

func TestExitPreHydration_ZeroBarsTransitionsToArmed(t *testing.T) {
	h := newHarness(t, baseConfig("es_0830"), rangeStartUTC)

	now := rangeStartUTC.Add(2 * time.Minute)
	h.stream.exitPreHydration(now)

	if got := h.stream.State(); got != Armed {
		t.Errorf("State() = %v, want Armed", got)
	}
	if !h.stream.hadZeroBarHydration {
		t.Error("expected hadZeroBarHydration to be set for an empty buffer")
	}
}

func TestExitPreHydration_LateStartNoBreakout_TransitionsToArmed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, baseConfig("es_0830"), rangeStartUTC)

	now := rangeStartUTC.Add(7 * time.Minute) // after slot_time (08:35)
	h.stream.OnBar(ctx, mkBar(0, 10, 11, 9, 10.5), bar.Live, now)
	h.stream.OnBar(ctx, mkBar(1, 10, 11, 9, 10.5), bar.Live, now)
	h.stream.OnBar(ctx, mkBar(2, 10, 11, 9, 10.5), bar.Live, now)
	// Late-window bar stays within the reconstructed range: no breakout.
	h.stream.OnBar(ctx, mkBar(6, 10, 11, 9, 10.5), bar.Live, now)

	h.stream.exitPreHydration(now)

	if got := h.stream.State(); got != Armed {
		t.Errorf("State() = %v, want Armed (late start, no missed breakout)", got)
	}
}

func TestExitPreHydration_LateStartMissedLongBreakout_CommitsNoTrade(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, baseConfig("es_0830"), rangeStartUTC)

	now := rangeStartUTC.Add(7 * time.Minute)
	h.stream.OnBar(ctx, mkBar(0, 10, 11, 9, 10.5), bar.Live, now)
	h.stream.OnBar(ctx, mkBar(1, 10, 11, 9, 10.5), bar.Live, now)
	h.stream.OnBar(ctx, mkBar(2, 10, 11, 9, 10.5), bar.Live, now)
	// Late-window bar breaks above the reconstructed range high of 11.
	h.stream.OnBar(ctx, mkBar(6, 10, 12, 9, 11.5), bar.Live, now)

	h.stream.exitPreHydration(now)

	if got := h.stream.State(); got != Done {
		t.Fatalf("State() = %v, want Done", got)
	}
	if got := h.stream.Journal().CommitReason; got != "NO_TRADE_LATE_START_MISSED_BREAKOUT" {
		t.Errorf("CommitReason = %q", got)
	}
	if got := *h.stream.Journal().TerminalState; got != journal.TerminalNoTrade {
		t.Errorf("TerminalState = %v, want NO_TRADE", got)
	}
}

func TestScanLateStartBreakout_ShortWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, baseConfig("es_0830"), rangeStartUTC)
	now := rangeStartUTC.Add(7 * time.Minute)
	h.stream.OnBar(ctx, mkBar(6, 10, 11, 8, 9), bar.Live, now) // Low 8 breaks below range low of 9

	dir, _ := h.stream.scanLateStartBreakout(11, 9, now)
	if dir != "SHORT" {
		t.Errorf("scanLateStartBreakout direction = %q, want SHORT", dir)
	}
}

func TestTickPreHydration_LiveAdapterMode_WaitsWhilePendingBarsRequestOutstanding(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig("es_0830")
	cfg.LiveAdapterMode = true
	h := newHarness(t, cfg, rangeStartUTC)
	h.stream.deps.PendingBarsRequest = func(string, string) bool { return true }

	now := rangeStartUTC.Add(30 * time.Second) // before the 1-minute timeout
	h.stream.Tick(ctx, now)

	if got := h.stream.State(); got != PreHydration {
		t.Errorf("State() = %v, want PreHydration while a bars request is outstanding", got)
	}
}

func TestTickPreHydration_LiveAdapterMode_ForcedExitDespitePendingRequest(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig("es_0830")
	cfg.LiveAdapterMode = true
	h := newHarness(t, cfg, rangeStartUTC)
	h.stream.deps.PendingBarsRequest = func(string, string) bool { return true }

	now := rangeStartUTC.Add(90 * time.Second) // past the 1-minute timeout
	h.stream.Tick(ctx, now)

	if got := h.stream.State(); got != Armed {
		t.Errorf("State() = %v, want Armed once the hard timeout elapses", got)
	}
}

func TestTickPreHydration_LiveAdapterMode_NoPendingRequest_ExitsOnBars(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig("es_0830")
	cfg.LiveAdapterMode = true
	h := newHarness(t, cfg, rangeStartUTC)
	h.stream.deps.PendingBarsRequest = func(string, string) bool { return false }

	now := rangeStartUTC.Add(10 * time.Second)
	h.stream.OnBar(ctx, mkBar(0, 10, 11, 9, 10.5), bar.Live, now)
	h.stream.Tick(ctx, now)

	if got := h.stream.State(); got != Armed {
		t.Errorf("State() = %v, want Armed", got)
	}
}

func TestUpdateSpeculativeRange_TracksHighLowWhileUnlocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, baseConfig("es_0830"), rangeStartUTC)
	h.stream.state = RangeBuilding

	now := rangeStartUTC.Add(2 * time.Minute)
	feedRangeBars(ctx, h.stream, now)

	if h.stream.rangeHigh != 13 {
		t.Errorf("rangeHigh = %v, want 13", h.stream.rangeHigh)
	}
	if h.stream.rangeLow != 9 {
		t.Errorf("rangeLow = %v, want 9", h.stream.rangeLow)
	}
}
