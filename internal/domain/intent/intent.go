// Package intent defines the canonical trade-attempt record and its
// deterministic, content-addressed identifier.
package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the side of a breakout intent.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Intent is a declarative description of one trade attempt.
type Intent struct {
	TradingDate         time.Time `json:"trading_date"`
	Stream              string    `json:"stream"`
	CanonicalInstrument string    `json:"canonical_instrument"`
	Session             string    `json:"session"`
	SlotTimeChicago     string    `json:"slot_time_chicago"`
	Direction           Direction `json:"direction"`
	EntryPrice          float64   `json:"entry_price"`
	StopPrice           *float64  `json:"stop_price,omitempty"`
	TargetPrice         *float64  `json:"target_price,omitempty"`
	BETrigger           *float64  `json:"be_trigger,omitempty"`
	EntryTimeUTC        time.Time `json:"entry_time_utc"`
	TriggerReason       string    `json:"trigger_reason"`
}

// hashFields is the subset of Intent whose canonical JSON is hashed to
// produce the intent_id. EntryTimeUTC is deliberately excluded so the
// same logical trade reproduces the same ID across restarts (spec §3,
// testable property 6).
type hashFields struct {
	TradingDate         string    `json:"trading_date"`
	Stream              string    `json:"stream"`
	CanonicalInstrument string    `json:"canonical_instrument"`
	Session             string    `json:"session"`
	SlotTimeChicago     string    `json:"slot_time_chicago"`
	Direction           Direction `json:"direction"`
	EntryPrice          float64   `json:"entry_price"`
	StopPrice           *float64  `json:"stop_price,omitempty"`
	TargetPrice         *float64  `json:"target_price,omitempty"`
	BETrigger           *float64  `json:"be_trigger,omitempty"`
	TriggerReason       string    `json:"trigger_reason"`
}

// ID computes the deterministic sha256-hex intent_id from the canonical
// JSON encoding of the intent's content, excluding entry_time_utc.
func (i Intent) ID() string {
	hf := hashFields{
		TradingDate:         i.TradingDate.Format("2006-01-02"),
		Stream:              i.Stream,
		CanonicalInstrument: i.CanonicalInstrument,
		Session:             i.Session,
		SlotTimeChicago:     i.SlotTimeChicago,
		Direction:           i.Direction,
		EntryPrice:          i.EntryPrice,
		StopPrice:           i.StopPrice,
		TargetPrice:         i.TargetPrice,
		BETrigger:           i.BETrigger,
		TriggerReason:       i.TriggerReason,
	}
	// encoding/json on a struct with a fixed field order already produces
	// the same canonical byte sequence for the same values, which is all
	// determinism requires here.
	raw, err := json.Marshal(hf)
	if err != nil {
		// Marshal of a concrete struct of primitives cannot fail.
		panic(fmt.Sprintf("intent: marshal hash fields: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// OCOGroupID derives the OCO group identifier for a (trading-date,
// stream, slot) unit. Two brackets placed for the same slot share this
// group so the broker adapter can treat them as one-cancels-other.
func OCOGroupID(tradingDate time.Time, stream, slotTimeChicago string) string {
	return fmt.Sprintf("%s_%s_%s", tradingDate.Format("2006-01-02"), stream, slotTimeChicago)
}
