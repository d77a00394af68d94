package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// SafetyOrder a filled safety order of an open position.
type SafetyOrder struct {
	Price        decimal.Decimal `json:"price"`
	OrderSize    decimal.Decimal `json:"ordersize"`
	SOPercentage decimal.Decimal `json:"so_percentage"`
	Time         time.Time       `json:"time"`
}

// Snapshot aggregate state of an open position, rebuilt for every decision.
type Snapshot struct {
	// ID identifies the position instance; a re-opened position on the same symbol gets a new ID.
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	// TotalCost quote currency spent on all fills.
	TotalCost decimal.Decimal `json:"total_cost"`
	// TotalAmount base currency held, fee-adjusted.
	TotalAmount decimal.Decimal `json:"total_amount"`
	// Fee fee rate of the last fill, e.g. 0.001.
	Fee            decimal.Decimal `json:"fee"`
	BaseOrderPrice decimal.Decimal `json:"bo_price"`
	SafetyOrders   []SafetyOrder   `json:"safetyorders"`
	OrderType      string          `json:"ordertype"`
	OpenedAt       time.Time       `json:"opened_at"`
}

// Validate checks the invariants every decision relies on.
func (s Snapshot) Validate() error {
	if s.Symbol == "" {
		return errors.Wrap(ErrInvalidPositionState, "symbol is empty")
	}
	if !s.TotalAmount.IsPositive() {
		return errors.Wrapf(ErrInvalidPositionState, "%s: total amount must be positive, got %s", s.Symbol, s.TotalAmount)
	}
	if !s.TotalCost.IsPositive() {
		return errors.Wrapf(ErrInvalidPositionState, "%s: total cost must be positive, got %s", s.Symbol, s.TotalCost)
	}
	if !s.BaseOrderPrice.IsPositive() {
		return errors.Wrapf(ErrInvalidPositionState, "%s: base order price must be positive, got %s", s.Symbol, s.BaseOrderPrice)
	}
	if s.Fee.IsNegative() {
		return errors.Wrapf(ErrInvalidPositionState, "%s: fee must not be negative, got %s", s.Symbol, s.Fee)
	}
	return nil
}

// SafetyOrderCount number of executed safety orders.
func (s Snapshot) SafetyOrderCount() int {
	return len(s.SafetyOrders)
}

// LastSafetyOrders returns the last and the second last safety orders.
// ok flags report whether each exists.
func (s Snapshot) LastSafetyOrders() (last SafetyOrder, hasLast bool, prev SafetyOrder, hasPrev bool) {
	n := len(s.SafetyOrders)
	if n >= 1 {
		last, hasLast = s.SafetyOrders[n-1], true
	}
	if n >= 2 {
		prev, hasPrev = s.SafetyOrders[n-2], true
	}
	return last, hasLast, prev, hasPrev
}

// Clone returns a copy that does not share the safety order slice.
func (s Snapshot) Clone() Snapshot {
	cp := s
	cp.SafetyOrders = append([]SafetyOrder(nil), s.SafetyOrders...)
	return cp
}
