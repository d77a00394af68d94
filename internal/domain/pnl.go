package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const percentageMultiplier = 100

var hundred = decimal.NewFromInt(percentageMultiplier)

// AverageBuyPrice returns (total_cost + total_cost*fee) / total_amount.
// The fee is applied once as a surcharge so the last sell fee is covered.
func AverageBuyPrice(s Snapshot) (decimal.Decimal, error) {
	if !s.TotalAmount.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPositionState, "%s: total amount is %s", s.Symbol, s.TotalAmount)
	}
	if s.TotalCost.IsNegative() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPositionState, "%s: total cost is %s", s.Symbol, s.TotalCost)
	}

	cost := s.TotalCost.Add(s.TotalCost.Mul(s.Fee))
	return cost.Div(s.TotalAmount), nil
}

// CalculatePNL returns the profit/loss of the position at currentPrice in percent.
func CalculatePNL(s Snapshot, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	avg, err := AverageBuyPrice(s)
	if err != nil {
		return decimal.Zero, err
	}
	if avg.IsZero() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPositionState, "%s: average buy price is zero", s.Symbol)
	}
	return PercentageDiff(currentPrice, avg), nil
}

// PercentageDiff returns percentage difference between current and reference values.
func PercentageDiff(current, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return current.Sub(reference).Div(reference).Mul(hundred)
}

// PriceAtPercent returns reference moved by percent, e.g. 100 at +2% is 102.
func PriceAtPercent(reference, percent decimal.Decimal) decimal.Decimal {
	return reference.Mul(decimal.NewFromInt(1).Add(percent.Div(hundred)))
}
