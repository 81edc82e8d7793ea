// Package dryrun is a reference execution.Adapter for paper trading: an
// in-memory order book with deterministic fills, no broker RPC. It exists
// so the engine is runnable end-to-end without a live broker connection.
package dryrun

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/orbstream/internal/domain/intent"
	"github.com/sawpanic/orbstream/internal/execution"
	"github.com/sawpanic/orbstream/internal/net/circuit"
)

// ackLatency simulates the broker round-trip every call pays, long
// enough for tests to observe it as "not instantaneous" without slowing
// a suite down.
const ackLatency = 150 * time.Millisecond

// orderState is the adapter-local lifecycle of one submitted order.
type orderState struct {
	intentID    string
	instrument  string
	direction   intent.Direction
	orderType   execution.OrderType
	price       float64
	qty         int
	ocoGroup    string
	working     bool
	filled      bool
	correlationID string
}

// Book is the in-memory order book backing the adapter.
type Book struct {
	mu      sync.Mutex
	orders  map[string]*orderState // keyed by intent_id
	working map[string]*orderState // keyed by correlationID, for cancel-all
	policies map[string]execution.IntentPolicy
	registered map[string]intent.Intent
}

func newBook() *Book {
	return &Book{
		orders:     make(map[string]*orderState),
		working:    make(map[string]*orderState),
		policies:   make(map[string]execution.IntentPolicy),
		registered: make(map[string]intent.Intent),
	}
}

// Adapter implements execution.Adapter against Book, guarding every call
// through a circuit breaker the way the teacher's provider clients guard
// outbound calls (internal/net/circuit), even though there is no real
// network dependency here: it keeps the dry-run path exercising the same
// resilience wrapper the live adapter would use, so engine wiring and
// tests don't special-case DRYRUN mode.
type Adapter struct {
	book    *Book
	breaker *circuit.Breaker
}

// New builds a dry-run adapter. breaker may be shared across adapter
// instances if the caller wants one circuit per broker session.
func New(breaker *circuit.Breaker) *Adapter {
	if breaker == nil {
		breaker = circuit.NewBreaker(circuit.Config{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			RequestTimeout:   5 * time.Second,
		})
	}
	return &Adapter{book: newBook(), breaker: breaker}
}

func (a *Adapter) call(ctx context.Context, now time.Time, fn func() error) error {
	return a.breaker.Call(ctx, func(ctx context.Context) error {
		select {
		case <-time.After(ackLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
		return fn()
	})
}

func (a *Adapter) SubmitEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, price *float64, qty int, orderType execution.OrderType, now time.Time) (execution.SubmitResult, error) {
	var result execution.SubmitResult
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		if existing, ok := a.book.orders[intentID]; ok {
			result = execution.SubmitResult{Success: true, BrokerOrderID: existing.correlationID}
			return nil
		}

		p := 0.0
		if price != nil {
			p = *price
		}
		corrID := uuid.NewString()
		st := &orderState{
			intentID:      intentID,
			instrument:    executionInstrument,
			direction:     dir,
			orderType:     orderType,
			price:         p,
			qty:           qty,
			working:       true,
			correlationID: corrID,
		}
		a.book.orders[intentID] = st
		a.book.working[corrID] = st
		result = execution.SubmitResult{Success: true, BrokerOrderID: corrID}
		return nil
	})
	return result, err
}

func (a *Adapter) SubmitStopEntryOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, ocoGroup string, now time.Time) (execution.SubmitResult, error) {
	var result execution.SubmitResult
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		if existing, ok := a.book.orders[intentID]; ok {
			result = execution.SubmitResult{Success: true, BrokerOrderID: existing.correlationID}
			return nil
		}

		corrID := uuid.NewString()
		st := &orderState{
			intentID:      intentID,
			instrument:    executionInstrument,
			direction:     dir,
			orderType:     execution.OrderTypeStopMarket,
			price:         stopPrice,
			qty:           qty,
			ocoGroup:      ocoGroup,
			working:       true,
			correlationID: corrID,
		}
		a.book.orders[intentID] = st
		a.book.working[corrID] = st
		result = execution.SubmitResult{Success: true, BrokerOrderID: corrID}
		return nil
	})
	return result, err
}

func (a *Adapter) SubmitProtectiveStop(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, stopPrice float64, qty int, now time.Time) (execution.SubmitResult, error) {
	return a.submitBracketLeg(ctx, intentID+"_stop", executionInstrument, dir, stopPrice, qty, now)
}

func (a *Adapter) SubmitTargetOrder(ctx context.Context, intentID, executionInstrument string, dir intent.Direction, targetPrice float64, qty int, now time.Time) (execution.SubmitResult, error) {
	return a.submitBracketLeg(ctx, intentID+"_target", executionInstrument, dir, targetPrice, qty, now)
}

func (a *Adapter) submitBracketLeg(ctx context.Context, legID, executionInstrument string, dir intent.Direction, price float64, qty int, now time.Time) (execution.SubmitResult, error) {
	var result execution.SubmitResult
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		corrID := uuid.NewString()
		st := &orderState{
			intentID:      legID,
			instrument:    executionInstrument,
			direction:     dir,
			orderType:     execution.OrderTypeLimit,
			price:         price,
			qty:           qty,
			working:       true,
			correlationID: corrID,
		}
		a.book.orders[legID] = st
		a.book.working[corrID] = st
		result = execution.SubmitResult{Success: true, BrokerOrderID: corrID}
		return nil
	})
	return result, err
}

func (a *Adapter) ModifyStopToBreakeven(ctx context.Context, intentID string, newStopPrice float64, now time.Time) (execution.SubmitResult, error) {
	var result execution.SubmitResult
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		st, ok := a.book.orders[intentID+"_stop"]
		if !ok {
			result = execution.SubmitResult{Success: false, Error: fmt.Errorf("dryrun: no working stop for intent %s", intentID)}
			return nil
		}
		st.price = newStopPrice
		result = execution.SubmitResult{Success: true, BrokerOrderID: st.correlationID}
		return nil
	})
	return result, err
}

func (a *Adapter) Flatten(ctx context.Context, intentID, executionInstrument string, now time.Time) (execution.SubmitResult, error) {
	var result execution.SubmitResult
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		if st, ok := a.book.orders[intentID]; ok {
			st.working = false
			st.filled = false
			delete(a.book.working, st.correlationID)
		}
		result = execution.SubmitResult{Success: true}
		return nil
	})
	return result, err
}

func (a *Adapter) GetAccountSnapshot(ctx context.Context, now time.Time) (execution.AccountSnapshot, error) {
	var snap execution.AccountSnapshot
	err := a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		positions := make(map[string]float64)
		var working []string
		for corrID, st := range a.book.working {
			working = append(working, corrID)
			if st.filled {
				sign := 1.0
				if st.direction == intent.Short {
					sign = -1.0
				}
				positions[st.instrument] += sign * float64(st.qty)
			}
		}
		snap = execution.AccountSnapshot{AsOfUTC: now, OpenPositions: positions, WorkingOrderIDs: working}
		return nil
	})
	return snap, err
}

func (a *Adapter) CancelRobotOwnedWorkingOrders(ctx context.Context, identifiers []string, now time.Time) error {
	return a.call(ctx, now, func() error {
		a.book.mu.Lock()
		defer a.book.mu.Unlock()

		want := make(map[string]bool, len(identifiers))
		for _, id := range identifiers {
			want[id] = true
		}
		for corrID, st := range a.book.working {
			if want[st.intentID] || want[st.ocoGroup] || want[corrID] {
				st.working = false
				delete(a.book.working, corrID)
			}
		}
		return nil
	})
}

func (a *Adapter) RegisterIntent(ctx context.Context, i intent.Intent) error {
	a.book.mu.Lock()
	defer a.book.mu.Unlock()
	a.book.registered[i.ID()] = i
	return nil
}

func (a *Adapter) RegisterIntentPolicy(ctx context.Context, intentID string, policy execution.IntentPolicy) error {
	a.book.mu.Lock()
	defer a.book.mu.Unlock()
	a.book.policies[intentID] = policy
	return nil
}

// MarkFill marks the order for intentID as filled, standing in for a bar
// crossing its trigger price. It only sets the filled flag; the registered
// policy is not applied and no protective orders are placed. Test-only
// helper exposed for scenario harnesses.
func (a *Adapter) MarkFill(intentID string) {
	a.book.mu.Lock()
	defer a.book.mu.Unlock()
	if st, ok := a.book.orders[intentID]; ok {
		st.filled = true
	}
}

// IsFilled reports whether the order for intentID has been marked filled.
func (a *Adapter) IsFilled(intentID string) bool {
	a.book.mu.Lock()
	defer a.book.mu.Unlock()
	st, ok := a.book.orders[intentID]
	return ok && st.filled
}

// Policy returns the registered policy for intentID, if any.
func (a *Adapter) Policy(intentID string) (execution.IntentPolicy, bool) {
	a.book.mu.Lock()
	defer a.book.mu.Unlock()
	p, ok := a.book.policies[intentID]
	return p, ok
}

// BreakerStats exposes the adapter's hot-path breaker counters, consumed
// by the engine's /healthz handler through the engine.breakerHealth
// capability interface.
func (a *Adapter) BreakerStats() circuit.Stats {
	return a.breaker.Stats()
}
