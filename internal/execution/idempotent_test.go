package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/eventlog"
)

type fakeAdapter struct {
	submitCalls int
	result      SubmitResult
	err         error
}

func (f *fakeAdapter) SubmitEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, price *float64, qty int, orderType OrderType, now time.Time) (SubmitResult, error) {
	f.submitCalls++
	return f.result, f.err
}
func (f *fakeAdapter) SubmitStopEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, ocoGroup string, now time.Time) (SubmitResult, error) {
	return SubmitResult{}, nil
}
func (f *fakeAdapter) SubmitProtectiveStop(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, now time.Time) (SubmitResult, error) {
	return SubmitResult{}, nil
}
func (f *fakeAdapter) SubmitTargetOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, targetPrice float64, qty int, now time.Time) (SubmitResult, error) {
	return SubmitResult{}, nil
}
func (f *fakeAdapter) ModifyStopToBreakeven(ctx context.Context, intentID string, newStopPrice float64, now time.Time) (SubmitResult, error) {
	return SubmitResult{}, nil
}
func (f *fakeAdapter) Flatten(ctx context.Context, intentID, executionInstrument string, now time.Time) (SubmitResult, error) {
	return SubmitResult{}, nil
}
func (f *fakeAdapter) GetAccountSnapshot(ctx context.Context, now time.Time) (AccountSnapshot, error) {
	return AccountSnapshot{}, nil
}
func (f *fakeAdapter) CancelRobotOwnedWorkingOrders(ctx context.Context, identifiers []string, now time.Time) error {
	return nil
}
func (f *fakeAdapter) RegisterIntent(ctx context.Context, i intent.Intent) error { return nil }
func (f *fakeAdapter) RegisterIntentPolicy(ctx context.Context, intentID string, policy IntentPolicy) error {
	return nil
}

type fakeJournal struct {
	entries []eventlog.ExecutionJournalEntry
}

func (f *fakeJournal) FindByIntentID(tradingDate time.Time, streamID, intentID string) (eventlog.ExecutionJournalEntry, bool, error) {
	var latest eventlog.ExecutionJournalEntry
	found := false
	for _, e := range f.entries {
		if e.IntentID == intentID && e.StreamID == streamID {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}

func (f *fakeJournal) Append(tradingDate time.Time, streamID string, entry eventlog.ExecutionJournalEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func testIntent() intent.Intent {
	return intent.Intent{
		TradingDate:         time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Stream:              "es_0830",
		CanonicalInstrument: "ES",
		Session:             "rth",
		SlotTimeChicago:     "08:30",
		Direction:           intent.Long,
		EntryPrice:          5000.25,
	}
}

func TestSubmitEntryIdempotent_SubmitsOnceAndRecordsOutcome(t *testing.T) {
	adapter := &fakeAdapter{result: SubmitResult{Success: true, BrokerOrderID: "ORD-1"}}
	journal := &fakeJournal{}
	i := testIntent()

	result, err := SubmitEntryIdempotent(context.Background(), adapter, journal, i, "ES", nil, 1, OrderTypeStopMarket, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.BrokerOrderID != "ORD-1" {
		t.Errorf("unexpected result: %+v", result)
	}
	if adapter.submitCalls != 1 {
		t.Errorf("expected 1 adapter call, got %d", adapter.submitCalls)
	}
	if len(journal.entries) != 1 || !journal.entries[0].Submitted {
		t.Errorf("expected a submitted journal entry, got %+v", journal.entries)
	}
}

func TestSubmitEntryIdempotent_SecondCallShortCircuitsOnExistingSubmission(t *testing.T) {
	adapter := &fakeAdapter{result: SubmitResult{Success: true, BrokerOrderID: "ORD-1"}}
	journal := &fakeJournal{}
	i := testIntent()

	if _, err := SubmitEntryIdempotent(context.Background(), adapter, journal, i, "ES", nil, 1, OrderTypeStopMarket, time.Now()); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	result, err := SubmitEntryIdempotent(context.Background(), adapter, journal, i, "ES", nil, 1, OrderTypeStopMarket, time.Now())
	if err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if adapter.submitCalls != 1 {
		t.Errorf("expected adapter to be called only once across both submissions, got %d", adapter.submitCalls)
	}
	if !result.Success || result.BrokerOrderID != "ORD-1" {
		t.Errorf("expected the short-circuited result to replay the original broker order id, got %+v", result)
	}
}

func TestSubmitEntryIdempotent_RecordsFailedSubmission(t *testing.T) {
	adapter := &fakeAdapter{result: SubmitResult{}, err: errors.New("broker rejected")}
	journal := &fakeJournal{}
	i := testIntent()

	_, err := SubmitEntryIdempotent(context.Background(), adapter, journal, i, "ES", nil, 1, OrderTypeStopMarket, time.Now())
	if err == nil {
		t.Fatal("expected adapter error to propagate")
	}
	if len(journal.entries) != 1 || journal.entries[0].Submitted {
		t.Errorf("expected a recorded-but-not-submitted journal entry, got %+v", journal.entries)
	}
}

func TestRecordFill_AppendsFilledEntry(t *testing.T) {
	journal := &fakeJournal{}
	now := time.Now()

	if err := RecordFill(journal, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), "es_0830", "abc", 1, 5001.5, now); err != nil {
		t.Fatalf("RecordFill failed: %v", err)
	}
	if len(journal.entries) != 1 || !journal.entries[0].EntryFilled {
		t.Fatalf("expected a filled entry, got %+v", journal.entries)
	}
	if journal.entries[0].FillPrice == nil || *journal.entries[0].FillPrice != 5001.5 {
		t.Errorf("unexpected fill price: %+v", journal.entries[0].FillPrice)
	}
}
