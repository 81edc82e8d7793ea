// Package persistence defines the best-effort Postgres mirror of
// committed journal snapshots and execution-journal events. It is never
// authoritative: the jsonl journal store and execution journal (spec §6)
// remain the source of truth for restart recovery, and a mirror write
// failure is logged and swallowed, never propagated into the state
// machine's control flow.
package persistence

import (
	"context"
	"time"
)

// TimeRange bounds a mirror query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// JournalSnapshot mirrors one committed journal.Record (spec §3) for
// cross-day analytics outside the authoritative jsonl/file journal.
type JournalSnapshot struct {
	ID              int64                  `json:"id" db:"id"`
	TradingDate     time.Time              `json:"trading_date" db:"trading_date"`
	StreamID        string                 `json:"stream_id" db:"stream_id"`
	SlotInstanceKey string                 `json:"slot_instance_key" db:"slot_instance_key"`
	LastState       string                 `json:"last_state" db:"last_state"`
	SlotStatus      string                 `json:"slot_status" db:"slot_status"`
	TerminalState   *string                `json:"terminal_state,omitempty" db:"terminal_state"`
	TerminalReason  *string                `json:"terminal_reason,omitempty" db:"terminal_reason"`
	Committed       bool                   `json:"committed" db:"committed"`
	LastUpdateUTC   time.Time              `json:"last_update_utc" db:"last_update_utc"`
	Fields          map[string]interface{} `json:"fields" db:"fields"`
	CreatedAt       time.Time              `json:"created_at" db:"created_at"`
}

// ExecutionEventMirror mirrors one eventlog.ExecutionJournalEntry.
type ExecutionEventMirror struct {
	ID            int64     `json:"id" db:"id"`
	IntentID      string    `json:"intent_id" db:"intent_id"`
	TradingDate   string    `json:"trading_date" db:"trading_date"`
	StreamID      string    `json:"stream_id" db:"stream_id"`
	Direction     string    `json:"direction" db:"direction"`
	Quantity      int       `json:"quantity" db:"quantity"`
	Submitted     bool      `json:"submitted" db:"submitted"`
	BrokerOrderID string    `json:"broker_order_id" db:"broker_order_id"`
	AtUTC         time.Time `json:"at_utc" db:"at_utc"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// MirrorRepo is the best-effort write path into the Postgres audit
// tables (spec §6: `stream_journals`, `execution_events`).
type MirrorRepo interface {
	// MirrorJournal appends one committed-or-in-progress journal
	// snapshot. The engine calls it for each CRITICAL health event;
	// journal.Store.Save does not call it.
	MirrorJournal(ctx context.Context, snap JournalSnapshot) error

	// MirrorExecutionEvent appends one execution-journal entry.
	MirrorExecutionEvent(ctx context.Context, ev ExecutionEventMirror) error

	// JournalsByStream retrieves mirrored snapshots for a stream within
	// a time range, for analytics queries outside the hot path.
	JournalsByStream(ctx context.Context, streamID string, tr TimeRange, limit int) ([]JournalSnapshot, error)

	// ExecutionEventsByStream retrieves mirrored execution events for a
	// stream within a time range.
	ExecutionEventsByStream(ctx context.Context, streamID string, tr TimeRange, limit int) ([]ExecutionEventMirror, error)
}

// HealthCheck reports mirror repository health.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the mirror repository,
// surfaced on the engine's `/healthz` endpoint.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
