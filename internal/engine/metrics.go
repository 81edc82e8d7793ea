package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/orbstream/internal/domain/bar"
	"github.com/sawpanic/orbstream/internal/journal"
	"github.com/sawpanic/orbstream/internal/stream"
)

// Metrics bundles the per-stream Prometheus gauges and counters exposed
// on /metrics (spec §2 "Metrics snapshot"): bar buffer counters, range
// lock attempt count, gap tracking fields, and slot status.
type Metrics struct {
	registry *prometheus.Registry

	streamState      *prometheus.GaugeVec
	barLiveCount     *prometheus.GaugeVec
	barHistoricCount *prometheus.GaugeVec
	barDedupedCount  *prometheus.GaugeVec
	barFilteredFutureCount  *prometheus.GaugeVec
	barFilteredPartialCount *prometheus.GaugeVec
	rangeLockAttempts *prometheus.CounterVec
	largestGapMinutes *prometheus.GaugeVec
	totalGapMinutes   *prometheus.GaugeVec
	slotStatus        *prometheus.GaugeVec
}

// NewMetrics registers every gauge/counter against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream",
			Name:      "stream_state",
			Help:      "1 for the stream's current state, keyed by state label; other state labels read 0.",
		}, []string{"stream", "state"}),
		barLiveCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "bar_live_count", Help: "Live-sourced bars accepted into the buffer.",
		}, []string{"stream"}),
		barHistoricCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "bar_historic_count", Help: "Historical-sourced (BARSREQUEST/CSV) bars accepted.",
		}, []string{"stream"}),
		barDedupedCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "bar_deduped_count", Help: "Bar offers that collided with a bar already held at the same start time (replaced or rejected).",
		}, []string{"stream"}),
		barFilteredFutureCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "bar_filtered_future_count", Help: "Bars skipped because their start lies outside the window under consideration.",
		}, []string{"stream"}),
		barFilteredPartialCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "bar_filtered_partial_count", Help: "Bars rejected by the partial-bar guard.",
		}, []string{"stream"}),
		rangeLockAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orbstream", Name: "range_lock_attempts_total", Help: "TryLockRange calls, successful or not.",
		}, []string{"stream"}),
		largestGapMinutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "largest_gap_minutes", Help: "Largest single inter-bar gap observed this slot.",
		}, []string{"stream"}),
		totalGapMinutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "total_gap_minutes", Help: "Sum of gap minutes beyond the expected 1-minute cadence.",
		}, []string{"stream"}),
		slotStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orbstream", Name: "slot_status", Help: "1 for the stream's current slot status, keyed by status label.",
		}, []string{"stream", "status"}),
	}
	reg.MustRegister(
		m.streamState, m.barLiveCount, m.barHistoricCount, m.barDedupedCount,
		m.barFilteredFutureCount, m.barFilteredPartialCount,
		m.rangeLockAttempts, m.largestGapMinutes, m.totalGapMinutes, m.slotStatus,
	)
	return m
}

// Registry exposes the underlying registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// IncRangeLockAttempt increments the per-stream attempt counter. The
// stream package has no Prometheus dependency, so the counter moves only
// when a caller outside it invokes this; the engine's pump does not.
func (m *Metrics) IncRangeLockAttempt(streamID string) {
	m.rangeLockAttempts.WithLabelValues(streamID).Inc()
}

// allStates and allSlotStatuses back the 1-of-N gauge pattern: every
// label value is set, only the current one is 1.
var allStates = []stream.State{
	stream.PreHydration, stream.Armed, stream.RangeBuilding, stream.RangeLocked, stream.Done, stream.SuspendedDataInsufficient,
}

var allSlotStatuses = []journal.SlotStatus{
	journal.SlotActive, journal.SlotComplete, journal.SlotNoTrade, journal.SlotExpired, journal.SlotFailedRuntime,
}

// Snapshot updates every gauge for one stream from its current state,
// bar counters, gap fields and journal record.
func (m *Metrics) Snapshot(streamID string, state stream.State, counts bar.Counters, largestGapMinutes, totalGapMinutes float64, slotStatus journal.SlotStatus) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		m.streamState.WithLabelValues(streamID, string(s)).Set(v)
	}
	for _, st := range allSlotStatuses {
		v := 0.0
		if st == slotStatus {
			v = 1.0
		}
		m.slotStatus.WithLabelValues(streamID, string(st)).Set(v)
	}
	m.barLiveCount.WithLabelValues(streamID).Set(float64(counts.LiveCount))
	m.barHistoricCount.WithLabelValues(streamID).Set(float64(counts.HistoricalCount))
	m.barDedupedCount.WithLabelValues(streamID).Set(float64(counts.DedupedCount))
	m.barFilteredFutureCount.WithLabelValues(streamID).Set(float64(counts.FilteredFutureCount))
	m.barFilteredPartialCount.WithLabelValues(streamID).Set(float64(counts.FilteredPartialCount))
	m.largestGapMinutes.WithLabelValues(streamID).Set(largestGapMinutes)
	m.totalGapMinutes.WithLabelValues(streamID).Set(totalGapMinutes)
}
