package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSlotInstanceKeyFor(t *testing.T) {
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got := SlotInstanceKeyFor("es_0830", "08:30", date)
	want := "es_0830_08:30_2026-03-02"
	if got != want {
		t.Errorf("SlotInstanceKeyFor = %q, want %q", got, want)
	}
}

func TestWithCommit_DoesNotMutateReceiver(t *testing.T) {
	rec := Record{TradingDate: time.Now(), StreamID: "es_0830", SlotStatus: SlotActive}
	now := time.Now()

	committed := rec.WithCommit("range locked no entry", TerminalNoTrade, SlotNoTrade, now)

	if rec.Committed {
		t.Error("original record must not be mutated")
	}
	if !committed.Committed {
		t.Error("returned record must be committed")
	}
	if committed.SlotStatus != SlotNoTrade {
		t.Errorf("SlotStatus = %v, want NO_TRADE", committed.SlotStatus)
	}
	if *committed.TerminalState != TerminalNoTrade {
		t.Errorf("TerminalState = %v, want NO_TRADE", *committed.TerminalState)
	}
}

func TestCloneForward_CarriesPostEntryFields(t *testing.T) {
	orig := Record{
		TradingDate:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StreamID:         "es_0830",
		SlotInstanceKey:  "es_0830_08:30_2026-03-02",
		OriginalIntentID: "abc123",
		ReentrySubmitted: true,
		SlotStatus:       SlotActive,
	}

	next := orig.CloneForward(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "es_0830")

	if next.SlotInstanceKey != orig.SlotInstanceKey {
		t.Errorf("slot_instance_key must carry forward unchanged, got %q", next.SlotInstanceKey)
	}
	if next.OriginalIntentID != orig.OriginalIntentID {
		t.Error("original_intent_id must carry forward")
	}
	if !next.ReentrySubmitted {
		t.Error("reentry_submitted must carry forward")
	}
	if next.PriorJournalKey != orig.Key() {
		t.Errorf("PriorJournalKey = %q, want %q", next.PriorJournalKey, orig.Key())
	}
	if next.Committed {
		t.Error("cloned-forward record must start uncommitted")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	rec := Record{
		TradingDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StreamID:    "es_0830",
		LastState:   "ARMED",
		SlotStatus:  SlotActive,
	}

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, found, err := store.Load(rec.Key())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found after save")
	}
	if loaded.LastState != "ARMED" {
		t.Errorf("LastState = %q, want ARMED", loaded.LastState)
	}

	if _, err := filepath.Abs(dir); err != nil {
		t.Fatalf("unexpected path error: %v", err)
	}
}

func TestStore_Load_NotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, found, err := store.Load("nonexistent_key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for missing record")
	}
}

func TestStore_Save_RefusesOverwritingCommittedSameDate(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	tradingDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rec := Record{TradingDate: tradingDate, StreamID: "es_0830", SlotStatus: SlotActive}
	if err := store.Save(rec); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	committed := rec.WithCommit("done", TerminalNoTrade, SlotNoTrade, time.Now())
	if err := store.Save(committed); err != nil {
		t.Fatalf("commit save failed: %v", err)
	}

	attempt := committed
	attempt.LastState = "SHOULD_NOT_APPLY"
	err := store.Save(attempt)
	if err == nil {
		t.Fatal("expected error overwriting a committed record for the same trading date")
	}
}

func TestStore_Save_AllowsCloneForwardDifferentDate(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	tradingDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rec := Record{TradingDate: tradingDate, StreamID: "es_0830", SlotStatus: SlotActive}
	committed := rec.WithCommit("done", TerminalTradeCompleted, SlotComplete, time.Now())
	if err := store.Save(committed); err != nil {
		t.Fatalf("commit save failed: %v", err)
	}

	forwarded := committed.CloneForward(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), "es_0830")
	if err := store.Save(forwarded); err != nil {
		t.Fatalf("expected clone-forward save (different trading date) to succeed: %v", err)
	}
}
