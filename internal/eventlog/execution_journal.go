package eventlog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// ExecutionJournalEntry records one order-submission/fill lifecycle for
// idempotency checks (spec §5: "every order-submission path consults the
// execution journal on intent_id before calling the adapter") and for
// cross-date re-entry lookups (spec §4.9).
type ExecutionJournalEntry struct {
	IntentID     string    `json:"intent_id"`
	TradingDate  string    `json:"trading_date"`
	StreamID     string    `json:"stream_id"`
	Direction    string    `json:"direction"`
	Quantity     int       `json:"quantity"`
	Submitted    bool      `json:"submitted"`
	BrokerOrderID string   `json:"broker_order_id,omitempty"`
	EntryFilled  bool      `json:"entry_filled"`
	FillPrice    *float64  `json:"fill_price,omitempty"`
	FillTimeUTC  *time.Time `json:"fill_time_utc,omitempty"`
	AtUTC        time.Time `json:"at_utc"`
}

// ExecutionJournal appends entries to
// logs/execution/{YYYY-MM-DD}_{stream}.jsonl and supports the two lookup
// shapes the state machine needs: by intent_id (idempotency) and by
// (stream, date-set) for re-entry across the trading-date rollover,
// following prior_journal_key chains.
type ExecutionJournal struct {
	root string // typically "logs/execution"
}

func NewExecutionJournal(root string) *ExecutionJournal {
	return &ExecutionJournal{root: root}
}

func (ej *ExecutionJournal) pathFor(tradingDate time.Time, streamID string) string {
	return filepath.Join(ej.root, fmt.Sprintf("%s_%s.jsonl", tradingDate.Format("2006-01-02"), streamID))
}

// Append records a new entry (submission attempt or fill update). The
// journal is append-only; the latest entry for a given intent_id wins
// when scanning.
func (ej *ExecutionJournal) Append(tradingDate time.Time, streamID string, entry ExecutionJournalEntry) error {
	return Open(ej.pathFor(tradingDate, streamID)).Append(entry)
}

// FindByIntentID returns the most recent entry for intentID on the given
// trading date/stream, if any submission has already been recorded
// (idempotency check, spec §4.5 step 3).
func (ej *ExecutionJournal) FindByIntentID(tradingDate time.Time, streamID, intentID string) (ExecutionJournalEntry, bool, error) {
	var latest ExecutionJournalEntry
	found := false
	err := Open(ej.pathFor(tradingDate, streamID)).ScanRaw(func(line []byte) error {
		var e ExecutionJournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil
		}
		if e.IntentID != intentID {
			return nil
		}
		if !found || e.AtUTC.After(latest.AtUTC) {
			latest = e
			found = true
		}
		return nil
	})
	return latest, found, err
}

// HasAnyFill reports whether any entry for (tradingDate, streamID) shows
// entry_filled = true, used to backfill entry_detected on restart when
// the journal record omits it (spec §4.8 step 1).
func (ej *ExecutionJournal) HasAnyFill(tradingDate time.Time, streamID string) (bool, error) {
	any := false
	err := Open(ej.pathFor(tradingDate, streamID)).ScanRaw(func(line []byte) error {
		var e ExecutionJournalEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil
		}
		if e.EntryFilled {
			any = true
		}
		return nil
	})
	return any, err
}

// FindOriginalForReentry looks up the original entry-fill for a re-entry
// by walking the prior_journal_key chain: journalKeys is the ordered
// list of "{trading_date}_{stream_id}" keys to search, most recent
// first, as produced by following CloneForward.PriorJournalKey
// backwards (spec §4.9: "searched across dates using prior_journal_key").
func (ej *ExecutionJournal) FindOriginalForReentry(journalKeys []string, intentID string) (ExecutionJournalEntry, bool, error) {
	for _, key := range journalKeys {
		tradingDate, streamID, ok := splitKey(key)
		if !ok {
			continue
		}
		entry, found, err := ej.FindByIntentID(tradingDate, streamID, intentID)
		if err != nil {
			return ExecutionJournalEntry{}, false, err
		}
		if found && entry.EntryFilled && entry.Quantity > 0 {
			return entry, true, nil
		}
	}
	return ExecutionJournalEntry{}, false, nil
}

func splitKey(key string) (time.Time, string, bool) {
	if len(key) < 11 || key[10] != '_' {
		return time.Time{}, "", false
	}
	t, err := time.Parse("2006-01-02", key[:10])
	if err != nil {
		return time.Time{}, "", false
	}
	return t, key[11:], true
}
