// Package execution declares the abstract operation sets the stream state
// machine calls out to: order submission (Adapter) and pre-trade
// authorization (RiskGate). Neither is implemented here beyond the
// reference implementations in the riskgate and dryrun subpackages; the
// state machine only depends on these interfaces.
package execution

import (
	"context"
	"time"

	"github.com/sawpanic/orbstream/internal/domain/intent"
)

// OrderType names the two entry order shapes the state machine submits.
type OrderType string

const (
	OrderTypeStopMarket OrderType = "STOP_MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
)

// SubmitResult is the common shape returned by every order-submission
// call. Error is non-nil only for adapter-level failures (network,
// rejection by the broker); a risk-gate block is never represented here.
type SubmitResult struct {
	Success      bool
	BrokerOrderID string
	Error        error
}

// AccountSnapshot is the abstract account state the adapter can report
// back, consulted by the state machine for position reconciliation.
type AccountSnapshot struct {
	AsOfUTC        time.Time
	OpenPositions  map[string]float64 // execution_instrument -> signed quantity
	WorkingOrderIDs []string
}

// Adapter is the execution-adapter interface consumed by the state
// machine (spec §6). Every call takes intent_id or an explicit
// correlation handle so the idempotency contract (spec §5, testable
// property 5) can be enforced by the caller before the adapter is ever
// invoked; the adapter itself is not required to deduplicate.
type Adapter interface {
	// SubmitEntryOrder places the primary entry order, either a resting
	// stop or a market/limit fired on immediate-at-lock detection.
	SubmitEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, price *float64, qty int, orderType OrderType, now time.Time) (SubmitResult, error)

	// SubmitStopEntryOrder places a resting stop-entry bracket at lock
	// time, tagged with an OCO group so Long/Short cancel each other.
	SubmitStopEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, ocoGroup string, now time.Time) (SubmitResult, error)

	SubmitProtectiveStop(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, now time.Time) (SubmitResult, error)

	SubmitTargetOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, targetPrice float64, qty int, now time.Time) (SubmitResult, error)

	ModifyStopToBreakeven(ctx context.Context, intentID string, newStopPrice float64, now time.Time) (SubmitResult, error)

	// Flatten closes any open position for the given intent/instrument,
	// best-effort (spec §4.9 forced flatten and slot expiry both call
	// this and tolerate failure, logging CRITICAL on error).
	Flatten(ctx context.Context, intentID, executionInstrument string, now time.Time) (SubmitResult, error)

	GetAccountSnapshot(ctx context.Context, now time.Time) (AccountSnapshot, error)

	// CancelRobotOwnedWorkingOrders cancels every working order tagged
	// with any of the given intent/OCO identifiers, used by slot expiry
	// to guarantee no stray bracket survives past next_slot_time_utc.
	CancelRobotOwnedWorkingOrders(ctx context.Context, identifiers []string, now time.Time) error

	// RegisterIntent and RegisterIntentPolicy are first-class operations
	// (spec §9 "polymorphism" design note), not hidden behind a type
	// assertion: the fast path from fill detection to protective
	// submission needs the adapter to remember what an intent_id means
	// and how it should behave once registered (e.g. auto-submit
	// protection on fill vs. wait for an explicit call).
	RegisterIntent(ctx context.Context, i intent.Intent) error
	RegisterIntentPolicy(ctx context.Context, intentID string, policy IntentPolicy) error
}

// IntentPolicy tells the adapter how to behave once an intent's entry
// order fills, without the state machine needing to poll.
type IntentPolicy struct {
	AutoSubmitProtectiveStop bool
	AutoSubmitTarget         bool
	StopPrice                *float64
	TargetPrice              *float64
}

// Mode distinguishes live trading from paper/dry-run operation; passed
// through to the risk gate so gate thresholds can differ by mode.
type Mode string

const (
	ModeLive   Mode = "LIVE"
	ModeDryRun Mode = "DRYRUN"
)

// GateResult is the risk gate's verdict.
type GateResult struct {
	Allowed     bool
	Reason      string
	FailedGates []string
}

// RiskGate is the pre-trade authorization interface consumed by the
// state machine (spec §6). A thrown error is always treated as "block,"
// never as "allow" (spec §5).
type RiskGate interface {
	CheckGates(ctx context.Context, mode Mode, tradingDate time.Time, stream, canonicalInstrument, session, slotTimeChicago string, timetableValidated, streamArmed bool, now time.Time) (GateResult, error)
}

// Telemetry is the live per-stream state a RiskGate implementation may
// consult beyond CheckGates' fixed parameters (spec §6 names
// check_gates' exact signature; this is how an implementation observes
// stream-internal data such as the locked range's width or the bar
// feed's gap tracking without widening that signature).
type Telemetry struct {
	RangeWidthTicks       float64
	BreakoutLevelsMissing bool
	LargestGapMinutes     float64
	TotalGapMinutes       float64
}

// TelemetryFunc looks up a stream's current Telemetry by stream ID. ok
// is false before the stream has locked a range.
type TelemetryFunc func(streamID string) (Telemetry, bool)
