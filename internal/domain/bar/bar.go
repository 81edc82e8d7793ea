// Package bar models an immutable OHLC(V) bar and a thread-safe,
// precedence-deduplicating buffer of bars for a single stream.
package bar

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Source tags where a bar came from. Precedence for deduplication is
// LIVE > BarsRequest > CSV.
type Source int

const (
	CSV Source = iota
	BarsRequest
	Live
)

func (s Source) String() string {
	switch s {
	case Live:
		return "LIVE"
	case BarsRequest:
		return "BARSREQUEST"
	case CSV:
		return "CSV"
	default:
		return "UNKNOWN"
	}
}

// precedence returns a higher number for a higher-priority source.
func (s Source) precedence() int {
	switch s {
	case Live:
		return 3
	case BarsRequest:
		return 2
	case CSV:
		return 1
	default:
		return 0
	}
}

// Bar is an immutable OHLC(V) record. StartUTC is the bar's open time.
type Bar struct {
	StartUTC time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   *float64
}

// ErrOHLCInvalid is returned when a bar violates low <= open,close <= high.
var ErrOHLCInvalid = errors.New("bar: low/open/close/high invariant violated")

// Validate checks the OHLC invariant: low <= open,close <= high.
func (b Bar) Validate() error {
	if b.Low > b.High {
		return fmt.Errorf("%w: low=%v > high=%v", ErrOHLCInvalid, b.Low, b.High)
	}
	if b.Open < b.Low || b.Open > b.High {
		return fmt.Errorf("%w: open=%v outside [%v,%v]", ErrOHLCInvalid, b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return fmt.Errorf("%w: close=%v outside [%v,%v]", ErrOHLCInvalid, b.Close, b.Low, b.High)
	}
	return nil
}

// AddOutcome classifies the result of offering a bar to a Buffer.
type AddOutcome int

const (
	Added AddOutcome = iota
	Replaced
	Rejected
)

// AddResult is the full result of Buffer.Add, including the replaced
// source (if any) and a reject reason (if any).
type AddResult struct {
	Outcome        AddOutcome
	PreviousSource Source
	RejectReason   string
	ValuesDiffered bool
}

// Counters tracks buffer bookkeeping used for observability (spec §4.2).
type Counters struct {
	LiveCount           int
	HistoricalCount      int
	DedupedCount         int
	FilteredFutureCount  int
	FilteredPartialCount int
}

// entry pairs a stored bar with the source that won it.
type entry struct {
	bar    Bar
	source Source
}

// Buffer is a thread-safe, source-precedence-deduplicating ordered
// sequence of bars for one stream. One mutex per stream guards it; bar
// delivery and tick-driven snapshotting may run on different goroutines.
type Buffer struct {
	mu      sync.Mutex
	byStart map[time.Time]entry
	sorted  []time.Time // lazily kept sorted; invalidated on insert
	dirty   bool
	counts  Counters
}

// NewBuffer constructs an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{byStart: make(map[time.Time]entry)}
}

// Add offers a bar from a given source to the buffer. now is the wall
// clock used for the partial-bar guard (non-LIVE bars younger than one
// minute are rejected; LIVE bars bypass this guard since closedness is a
// producer concern per spec §4.2).
func (buf *Buffer) Add(b Bar, source Source, now time.Time) AddResult {
	if err := b.Validate(); err != nil {
		return AddResult{Outcome: Rejected, RejectReason: err.Error()}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	if source != Live && now.Sub(b.StartUTC) < time.Minute {
		buf.counts.FilteredPartialCount++
		return AddResult{Outcome: Rejected, RejectReason: "partial bar: younger than 1 minute"}
	}

	existing, ok := buf.byStart[b.StartUTC]
	if !ok {
		buf.byStart[b.StartUTC] = entry{bar: b, source: source}
		buf.dirty = true
		buf.bumpSourceCount(source)
		return AddResult{Outcome: Added}
	}

	if existing.source.precedence() == source.precedence() {
		buf.counts.DedupedCount++
		return AddResult{Outcome: Rejected, RejectReason: "duplicate: equal-precedence source collision"}
	}

	if source.precedence() > existing.source.precedence() {
		differed := existing.bar.Open != b.Open || existing.bar.High != b.High ||
			existing.bar.Low != b.Low || existing.bar.Close != b.Close
		buf.byStart[b.StartUTC] = entry{bar: b, source: source}
		buf.dirty = true
		buf.counts.DedupedCount++
		buf.bumpSourceCount(source)
		return AddResult{Outcome: Replaced, PreviousSource: existing.source, ValuesDiffered: differed}
	}

	// Lower precedence than what's stored: reject, but still counts as
	// a deduplicated offer.
	buf.counts.DedupedCount++
	return AddResult{Outcome: Rejected, RejectReason: fmt.Sprintf("lower precedence than existing %s bar", existing.source)}
}

func (buf *Buffer) bumpSourceCount(source Source) {
	if source == Live {
		buf.counts.LiveCount++
	} else {
		buf.counts.HistoricalCount++
	}
}

// Snapshot returns a sorted copy of all bars currently in the buffer.
// Sorting happens here, never on insert, per spec §4.2 step 6.
func (buf *Buffer) Snapshot() []Bar {
	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.resort()
	out := make([]Bar, 0, len(buf.sorted))
	for _, t := range buf.sorted {
		out = append(out, buf.byStart[t].bar)
	}
	return out
}

// Count returns the number of distinct bars currently held.
func (buf *Buffer) Count() int {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return len(buf.byStart)
}

// Counters returns a copy of the bookkeeping counters.
func (buf *Buffer) Counters() Counters {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.counts
}

// NoteFilteredFuture records a bar skipped by a caller (e.g. CSV
// pre-hydration or range computation) because its start lies outside the
// window under consideration. Kept on Buffer so all bookkeeping for a
// stream lives in one place, per spec §4.2.
func (buf *Buffer) NoteFilteredFuture() {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.counts.FilteredFutureCount++
}

// resort rebuilds the sorted index if dirty. Caller must hold buf.mu.
func (buf *Buffer) resort() {
	if !buf.dirty && len(buf.sorted) == len(buf.byStart) {
		return
	}
	buf.sorted = buf.sorted[:0]
	for t := range buf.byStart {
		buf.sorted = append(buf.sorted, t)
	}
	sort.Slice(buf.sorted, func(i, j int) bool { return buf.sorted[i].Before(buf.sorted[j]) })
	buf.dirty = false
}
