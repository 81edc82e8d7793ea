package execution

import (
	"context"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/eventlog"
)

// JournalEntryRecorder is the subset of eventlog.ExecutionJournal the
// idempotency guard needs, kept narrow so tests can fake it.
type JournalEntryRecorder interface {
	FindByIntentID(tradingDate time.Time, streamID, intentID string) (eventlog.ExecutionJournalEntry, bool, error)
	Append(tradingDate time.Time, streamID string, entry eventlog.ExecutionJournalEntry) error
}

// SubmitEntryIdempotent enforces testable property 5 ("the number of
// successful calls to the adapter's entry submission is <= 1 across the
// lifetime of the execution journal"): it consults the journal for an
// existing successful submission before calling the adapter, and records
// the outcome afterward regardless of success.
func SubmitEntryIdempotent(ctx context.Context, adapter Adapter, journal JournalEntryRecorder, i intent.Intent, executionInstrument string, price *float64, qty int, orderType OrderType, now time.Time) (SubmitResult, error) {
	intentID := i.ID()

	if existing, found, err := journal.FindByIntentID(i.TradingDate, i.Stream, intentID); err != nil {
		return SubmitResult{}, err
	} else if found && existing.Submitted {
		return SubmitResult{Success: true, BrokerOrderID: existing.BrokerOrderID}, nil
	}

	result, err := adapter.SubmitEntryOrder(ctx, intentID, executionInstrument, i.Direction, price, qty, orderType, now)

	entry := eventlog.ExecutionJournalEntry{
		IntentID:    intentID,
		TradingDate: i.TradingDate.Format("2006-01-02"),
		StreamID:    i.Stream,
		Direction:   string(i.Direction),
		Quantity:    qty,
		Submitted:   err == nil && result.Success,
		BrokerOrderID: result.BrokerOrderID,
		AtUTC:       now,
	}
	if recErr := journal.Append(i.TradingDate, i.Stream, entry); recErr != nil {
		if err == nil {
			err = recErr
		}
	}

	return result, err
}

// RecordFill appends a fill confirmation to the execution journal,
// called once the adapter or account snapshot confirms an entry filled.
func RecordFill(journal JournalEntryRecorder, tradingDate time.Time, streamID, intentID string, qty int, fillPrice float64, now time.Time) error {
	return journal.Append(tradingDate, streamID, eventlog.ExecutionJournalEntry{
		IntentID:    intentID,
		TradingDate: tradingDate.Format("2006-01-02"),
		StreamID:    streamID,
		Quantity:    qty,
		Submitted:   true,
		EntryFilled: true,
		FillPrice:   &fillPrice,
		FillTimeUTC: &now,
		AtUTC:       now,
	})
}
