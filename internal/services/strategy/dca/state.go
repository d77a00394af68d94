package dca

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type phase int

const (
	phaseHolding phase = iota
	phaseAwaitingSafetyOrder
	phaseAwaitingClose
)

func (p phase) String() string {
	switch p {
	case phaseAwaitingSafetyOrder:
		return "awaiting_safety_order"
	case phaseAwaitingClose:
		return "awaiting_close"
	default:
		return "holding"
	}
}

// symbolState per-symbol engine memory. Guarded by Engine.mu.
type symbolState struct {
	positionID string
	phase      phase
	// pendingOrderCount order_count of the safety order in flight.
	pendingOrderCount int
	// closingID id of the position a sell was dispatched for.
	closingID string
	// lastPNL trailing take profit memory; zero means absent.
	lastPNL decimal.Decimal
}

// stateFor returns the state for the snapshot's symbol. A new position id starts from a
// clean Holding state, so a close in flight ends once the snapshot shows another position.
// Caller holds e.mu.
func (e *Engine) stateFor(snapshot domain.Snapshot) *symbolState {
	state, ok := e.states[snapshot.Symbol]
	if !ok || state.positionID != snapshot.ID {
		state = &symbolState{positionID: snapshot.ID}
		e.states[snapshot.Symbol] = state
		return state
	}

	if state.phase == phaseAwaitingSafetyOrder && snapshot.SafetyOrderCount() >= state.pendingOrderCount {
		state.hold()
	}

	return state
}

func (e *Engine) forget(symbol string) {
	e.mu.Lock()
	delete(e.states, symbol)
	e.mu.Unlock()
}

// TrailingPNL returns the trailing take profit memory for symbol.
func (e *Engine) TrailingPNL(symbol string) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.states[symbol]
	if !ok || state.lastPNL.IsZero() {
		return decimal.Zero, false
	}
	return state.lastPNL, true
}

func (s *symbolState) hold() {
	s.phase = phaseHolding
	s.pendingOrderCount = 0
	s.closingID = ""
}

func (s *symbolState) awaitSafetyOrder(orderCount int) {
	s.phase = phaseAwaitingSafetyOrder
	s.pendingOrderCount = orderCount
}

func (s *symbolState) awaitClose(positionID string) {
	s.phase = phaseAwaitingClose
	s.closingID = positionID
}

// trail decides a sell for a tick where the sell condition holds and trailing is enabled.
// The first crossing only records the PNL. Later crossings sell when PNL dropped more than
// trailingPercent relative to the recorded one, or fell below takeProfit; otherwise the
// memory ratchets to the current PNL.
func (s *symbolState) trail(actualPNL, takeProfit, trailingPercent decimal.Decimal) bool {
	if s.lastPNL.IsZero() {
		s.lastPNL = actualPNL
		return false
	}

	diffPercent := actualPNL.Sub(s.lastPNL).Div(s.lastPNL).Mul(hundred)
	if (diffPercent.IsNegative() && diffPercent.Abs().GreaterThan(trailingPercent)) || actualPNL.LessThan(takeProfit) {
		return true
	}

	s.lastPNL = actualPNL
	return false
}
