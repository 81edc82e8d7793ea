// Package journal defines the durable per-(trading-date, stream) lifecycle
// record and a JournalStore that persists it with atomic
// write-then-rename semantics. Every mutation produces a new value; the
// store never edits a record in place (spec §9 design note).
package journal

import (
	"time"
)

// SlotStatus is monotone: ACTIVE -> any terminal value, never
// terminal-to-terminal.
type SlotStatus string

const (
	SlotActive        SlotStatus = "ACTIVE"
	SlotComplete       SlotStatus = "COMPLETE"
	SlotNoTrade        SlotStatus = "NO_TRADE"
	SlotExpired        SlotStatus = "EXPIRED"
	SlotFailedRuntime  SlotStatus = "FAILED_RUNTIME"
)

// TerminalState classifies how a committed journal ended up, assigned at
// commit time (spec §7).
type TerminalState string

const (
	TerminalTradeCompleted  TerminalState = "TRADE_COMPLETED"
	TerminalNoTrade         TerminalState = "NO_TRADE"
	TerminalZeroBarHydration TerminalState = "ZERO_BAR_HYDRATION"
	TerminalFailedRuntime   TerminalState = "FAILED_RUNTIME"
	TerminalSuspendedData   TerminalState = "SUSPENDED_DATA"
)

// Record is the durable per-slot lifecycle record (spec §3).
type Record struct {
	TradingDate      time.Time `json:"trading_date"`
	StreamID         string    `json:"stream_id"`

	Committed    bool       `json:"committed"`
	CommitReason string     `json:"commit_reason,omitempty"`
	LastState    string     `json:"last_state"`
	LastUpdateUTC time.Time `json:"last_update_utc"`

	TimetableHashAtCommit string `json:"timetable_hash_at_commit,omitempty"`

	StopBracketsSubmittedAtLock bool `json:"stop_brackets_submitted_at_lock"`
	EntryDetected               bool `json:"entry_detected"`

	SlotStatus      SlotStatus `json:"slot_status"`
	SlotInstanceKey string     `json:"slot_instance_key,omitempty"`
	NextSlotTimeUTC *time.Time `json:"next_slot_time_utc,omitempty"`

	ExecutionInterruptedByClose bool       `json:"execution_interrupted_by_close"`
	ForcedFlattenTimestamp      *time.Time `json:"forced_flatten_timestamp,omitempty"`

	OriginalIntentID string `json:"original_intent_id,omitempty"`
	ReentryIntentID  string `json:"reentry_intent_id,omitempty"`
	ReentrySubmitted bool   `json:"reentry_submitted"`
	ReentryFilled    bool   `json:"reentry_filled"`

	ProtectionSubmitted bool `json:"protection_submitted"`
	ProtectionAccepted  bool `json:"protection_accepted"`

	PriorJournalKey string         `json:"prior_journal_key,omitempty"`
	TerminalState   *TerminalState `json:"terminal_state,omitempty"`
}

// Key returns the journal's file key: "{trading_date}_{stream_id}".
func (r Record) Key() string {
	return r.TradingDate.Format("2006-01-02") + "_" + r.StreamID
}

// SlotInstanceKeyFor constructs the slot_instance_key contract from spec
// §3: "{stream_id}_{slot_time_chicago}_{trading_date}". Set exactly once
// per lifecycle; never regenerated, only carried forward.
func SlotInstanceKeyFor(streamID, slotTimeChicago string, tradingDate time.Time) string {
	return streamID + "_" + slotTimeChicago + "_" + tradingDate.Format("2006-01-02")
}

// WithCommit returns a copy of r committed with the given reason and
// terminal classification. r itself is never mutated (copy semantics
// throughout this package, per spec §9).
func (r Record) WithCommit(reason string, terminal TerminalState, slotStatus SlotStatus, now time.Time) Record {
	out := r
	out.Committed = true
	out.CommitReason = reason
	out.TerminalState = &terminal
	out.SlotStatus = slotStatus
	out.LastUpdateUTC = now
	return out
}

// CloneForward builds the next trading date's journal by carrying
// forward the fields spec §4.8 requires for a post-entry-active slot:
// slot_instance_key, original_intent_id, re-entry/protection flags, and
// next_slot_time_utc. It also carries last_state, last_update_utc,
// slot_status, execution_interrupted_by_close and
// forced_flatten_timestamp. prior_journal_key is set to the previous
// record's key. All other daily fields reset.
func (r Record) CloneForward(newDate time.Time, newStreamID string) Record {
	return Record{
		TradingDate:     newDate,
		StreamID:        newStreamID,
		LastState:       r.LastState,
		LastUpdateUTC:   r.LastUpdateUTC,
		SlotStatus:      r.SlotStatus,
		SlotInstanceKey: r.SlotInstanceKey,

		ExecutionInterruptedByClose: r.ExecutionInterruptedByClose,
		ForcedFlattenTimestamp:      r.ForcedFlattenTimestamp,

		OriginalIntentID: r.OriginalIntentID,
		ReentryIntentID:  r.ReentryIntentID,
		ReentrySubmitted: r.ReentrySubmitted,
		ReentryFilled:    r.ReentryFilled,

		ProtectionSubmitted: r.ProtectionSubmitted,
		ProtectionAccepted:  r.ProtectionAccepted,

		NextSlotTimeUTC: r.NextSlotTimeUTC,
		PriorJournalKey: r.Key(),
	}
}
