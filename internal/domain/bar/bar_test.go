package bar

import (
	"testing"
	"time"
)

func mustBar(t *testing.T, start time.Time, o, h, l, c float64) Bar {
	t.Helper()
	b := Bar{StartUTC: start, Open: o, High: h, Low: l, Close: c}
	if err := b.Validate(); err != nil {
		t.Fatalf("invalid test bar: %v", err)
	}
	return b
}

func TestBarValidate(t *testing.T) {
	cases := []struct {
		name    string
		b       Bar
		wantErr bool
	}{
		{"valid", Bar{Open: 10, High: 12, Low: 9, Close: 11}, false},
		{"low_above_high", Bar{Open: 10, High: 9, Low: 12, Close: 10}, true},
		{"open_outside_range", Bar{Open: 20, High: 12, Low: 9, Close: 10}, true},
		{"close_outside_range", Bar{Open: 10, High: 12, Low: 9, Close: 20}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.b.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestBufferAdd_SourcePrecedence(t *testing.T) {
	buf := NewBuffer()
	start := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	old := start.Add(2 * time.Minute)

	res := buf.Add(mustBar(t, start, 10, 12, 9, 11), CSV, old)
	if res.Outcome != Added {
		t.Fatalf("expected Added, got %v (%s)", res.Outcome, res.RejectReason)
	}

	res = buf.Add(mustBar(t, start, 10, 13, 9, 12), BarsRequest, old)
	if res.Outcome != Replaced {
		t.Fatalf("expected BARSREQUEST to replace CSV, got %v", res.Outcome)
	}
	if res.PreviousSource != CSV {
		t.Errorf("expected previous source CSV, got %v", res.PreviousSource)
	}
	if !res.ValuesDiffered {
		t.Errorf("expected ValuesDiffered true, high changed 12->13")
	}

	res = buf.Add(mustBar(t, start, 1, 2, 1, 1), CSV, old)
	if res.Outcome != Rejected {
		t.Fatalf("expected lower-precedence CSV to be rejected, got %v", res.Outcome)
	}

	res = buf.Add(mustBar(t, start, 10, 14, 9, 13), Live, old)
	if res.Outcome != Replaced {
		t.Fatalf("expected LIVE to replace BARSREQUEST, got %v", res.Outcome)
	}

	if buf.Count() != 1 {
		t.Errorf("expected 1 bar held after all replacements, got %d", buf.Count())
	}
}

func TestBufferAdd_EqualPrecedenceCollisionRejected(t *testing.T) {
	buf := NewBuffer()
	start := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	old := start.Add(2 * time.Minute)

	buf.Add(mustBar(t, start, 10, 12, 9, 11), CSV, old)
	res := buf.Add(mustBar(t, start, 1, 2, 1, 1), CSV, old)
	if res.Outcome != Rejected {
		t.Errorf("expected equal-precedence collision to reject, got %v", res.Outcome)
	}
	if buf.Counters().DedupedCount != 1 {
		t.Errorf("expected DedupedCount 1, got %d", buf.Counters().DedupedCount)
	}
}

func TestBufferAdd_PartialBarGuard(t *testing.T) {
	buf := NewBuffer()
	now := time.Date(2026, 3, 2, 13, 30, 30, 0, time.UTC)
	youngStart := now.Add(-30 * time.Second)

	res := buf.Add(mustBar(t, youngStart, 10, 12, 9, 11), CSV, now)
	if res.Outcome != Rejected {
		t.Errorf("expected partial non-LIVE bar rejected, got %v", res.Outcome)
	}

	res = buf.Add(mustBar(t, youngStart, 10, 12, 9, 11), Live, now)
	if res.Outcome != Added {
		t.Errorf("expected LIVE bar to bypass partial-bar guard, got %v (%s)", res.Outcome, res.RejectReason)
	}
}

func TestBufferSnapshot_SortedByStart(t *testing.T) {
	buf := NewBuffer()
	base := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	old := base.Add(-5 * time.Minute)

	for _, offset := range []int{3, 1, 2, 0} {
		start := base.Add(time.Duration(offset) * time.Minute)
		buf.Add(mustBar(t, start, 10, 12, 9, 11), Live, old)
	}

	snap := buf.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i].StartUTC.After(snap[i-1].StartUTC) {
			t.Errorf("snapshot not sorted ascending at index %d", i)
		}
	}
}

func TestBufferCounters(t *testing.T) {
	buf := NewBuffer()
	base := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	old := base.Add(5 * time.Minute)

	buf.Add(mustBar(t, base, 10, 12, 9, 11), Live, old)
	buf.Add(mustBar(t, base.Add(time.Minute), 10, 12, 9, 11), CSV, old)
	buf.NoteFilteredFuture()

	counts := buf.Counters()
	if counts.LiveCount != 1 {
		t.Errorf("LiveCount = %d, want 1", counts.LiveCount)
	}
	if counts.HistoricalCount != 1 {
		t.Errorf("HistoricalCount = %d, want 1", counts.HistoricalCount)
	}
	if counts.FilteredFutureCount != 1 {
		t.Errorf("FilteredFutureCount = %d, want 1", counts.FilteredFutureCount)
	}
}
