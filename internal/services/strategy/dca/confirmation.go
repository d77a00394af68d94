package dca

import (
	"context"

	"github.com/shopspring/decimal"
)

// StrategyConfirmation tells whether entering a dynamic safety order at price is favorable.
type StrategyConfirmation interface {
	Confirm(ctx context.Context, symbol string, price decimal.Decimal) (bool, error)
}

// AlwaysConfirm is used when no strategy plugin is configured.
type AlwaysConfirm struct{}

func (AlwaysConfirm) Confirm(context.Context, string, decimal.Decimal) (bool, error) {
	return true, nil
}
