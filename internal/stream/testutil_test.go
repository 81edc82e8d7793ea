package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/domain/breakout"
	"github.com/sawpanic/orbstream/internal/eventlog"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/execution/dryrun"
	"github.com/sawpanic/orbstream/internal/journal"
)

// fixedTS is a deterministic TimeService double: "Chicago" is UTC plus a
// fixed offset, no DST, matching the pattern rangecalc's tests use.
type fixedTS struct{ offset time.Duration }

func (f fixedTS) ConstructChicagoTime(date time.Time, hhmm string) (time.Time, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return time.Time{}, fmt.Errorf("bad hh:mm %q: %w", hhmm, err)
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, time.UTC), nil
}

func (f fixedTS) ConvertChicagoToUTC(zoned time.Time) time.Time { return zoned.Add(-f.offset) }
func (f fixedTS) ConvertUTCToChicago(utc time.Time) time.Time   { return utc.Add(f.offset) }

func (f fixedTS) ChicagoDate(utc time.Time) time.Time {
	chi := utc.Add(f.offset)
	y, m, d := chi.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f fixedTS) SameChicagoDate(a, b time.Time) bool {
	ac, bc := a.Add(f.offset), b.Add(f.offset)
	ay, am, ad := ac.Date()
	by, bm, bd := bc.Date()
	return ay == by && am == bm && ad == bd
}

func newFixedTS() fixedTS { return fixedTS{} }

// fakeRiskGate is a controllable execution.RiskGate double.
type fakeRiskGate struct {
	allow       bool
	reason      string
	failedGates []string
	err         error
	calls       int
}

func (g *fakeRiskGate) CheckGates(ctx context.Context, mode execution.Mode, tradingDate time.Time, stream, canonicalInstrument, session, slotTimeChicago string, timetableValidated, streamArmed bool, now time.Time) (execution.GateResult, error) {
	g.calls++
	if g.err != nil {
		return execution.GateResult{}, g.err
	}
	return execution.GateResult{Allowed: g.allow, Reason: g.reason, FailedGates: g.failedGates}, nil
}

var fixedTradingDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// baseConfig returns a Config for a 5-minute opening range ending at
// 08:35, market close at 15:00, all in the fixedTS's zero-offset
// "Chicago."
func baseConfig(streamID string) Config {
	return Config{
		StreamID:              streamID,
		ExecutionInstrument:   "ESM6",
		CanonicalInstrument:   "ES",
		Session:               "RTH",
		SlotTimeChicago:       "08:35",
		RangeStartChicago:     "08:30",
		MarketCloseChicago:    "15:00",
		TickSize:              0.25,
		BaseTarget:            10,
		RoundMethod:           breakout.RoundNearest,
		Quantity:              1,
		Mode:                  execution.ModeDryRun,
		LiveAdapterMode:       false,
		CSVDataRoot:           "",
		ExpectedHydrationBars: 5,
	}
}

// testHarness bundles a Stream with its collaborators so tests can both
// drive it through its public surface and inspect/stub its dependencies.
type testHarness struct {
	stream   *Stream
	gate     *fakeRiskGate
	adapter  *dryrun.Adapter
	execJrnl *eventlog.ExecutionJournal
	paths    eventlog.Paths
}

func newHarness(t *testing.T, cfg Config, now time.Time) *testHarness {
	t.Helper()
	paths := eventlog.Paths{Root: t.TempDir()}
	gate := &fakeRiskGate{allow: true}
	execJrnl := eventlog.NewExecutionJournal(t.TempDir())
	adapter := dryrun.New(nil)

	deps := Deps{
		TS:                 newFixedTS(),
		JournalStore:       journal.NewStore(t.TempDir()),
		RangePersister:     eventlog.NewRangeLockedEventPersister(paths),
		HydrationPersister: eventlog.NewHydrationEventPersister(paths),
		EventPaths:         paths,
		ExecJournal:        execJrnl,
		Adapter:            adapter,
		RiskGate:           gate,
		PendingBarsRequest: func(string, string) bool { return false },
		Log:                zerolog.Nop(),
	}

	s, err := New(cfg, deps, fixedTradingDate, now)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testHarness{stream: s, gate: gate, adapter: adapter, execJrnl: execJrnl, paths: paths}
}

var rangeStartUTC = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

// mkBar builds a valid bar starting offsetMin minutes after range start.
func mkBar(offsetMin int, o, h, l, c float64) bar.Bar {
	return bar.Bar{
		StartUTC: rangeStartUTC.Add(time.Duration(offsetMin) * time.Minute),
		Open:     o, High: h, Low: l, Close: c,
	}
}

// feedRangeBars adds three valid in-window bars via OnBar with old-enough
// timestamps to clear the partial-bar guard.
func feedRangeBars(ctx context.Context, s *Stream, now time.Time) {
	s.OnBar(ctx, mkBar(0, 10, 11, 9, 10.5), bar.Live, now)
	s.OnBar(ctx, mkBar(1, 10.5, 12, 9.5, 11), bar.Live, now)
	s.OnBar(ctx, mkBar(2, 11, 13, 10, 12), bar.Live, now)
}
