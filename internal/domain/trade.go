package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeMarket = "market"
	TypeSellOrder   = "order_sell"
)

// BuyIntent safety order request emitted by the decision engine.
type BuyIntent struct {
	OrderSize    decimal.Decimal `json:"ordersize"`
	Symbol       string          `json:"symbol"`
	Direction    Direction       `json:"direction"`
	BaseOrder    bool            `json:"baseorder"`
	SafetyOrder  bool            `json:"safetyorder"`
	OrderCount   int             `json:"order_count"`
	OrderType    string          `json:"ordertype"`
	SOPercentage decimal.Decimal `json:"so_percentage"`
	Side         Side            `json:"side"`
}

// String returns a human-readable string representation.
func (b BuyIntent) String() string {
	return fmt.Sprintf("%s buy so#%d size: %s deviation: %s", b.Symbol, b.OrderCount, b.OrderSize, b.SOPercentage)
}

// SellIntent close request emitted by the decision engine.
type SellIntent struct {
	Symbol       string          `json:"symbol"`
	Direction    Direction       `json:"direction"`
	Side         Side            `json:"side"`
	TypeSell     string          `json:"type_sell"`
	ActualPNL    decimal.Decimal `json:"actual_pnl"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// String returns a human-readable string representation.
func (s SellIntent) String() string {
	return fmt.Sprintf("%s sell at %s pnl: %s%%", s.Symbol, s.CurrentPrice, s.ActualPNL.StringFixed(2))
}

// Fill executed order as reported by a trader.
type Fill struct {
	OrderID string
	Price   decimal.Decimal
	// Quantity base currency received (buy) or given (sell), net of fees.
	Quantity decimal.Decimal
	// Cost quote currency spent (buy) or received (sell).
	Cost    decimal.Decimal
	FeeRate decimal.Decimal
	Time    time.Time
}

// ClosedTrade result of a sold position.
type ClosedTrade struct {
	Symbol        string
	SOCount       int
	Profit        decimal.Decimal
	ProfitPercent decimal.Decimal
	Amount        decimal.Decimal
	Cost          decimal.Decimal
	TPPrice       decimal.Decimal
	AvgPrice      decimal.Decimal
	OpenDate      time.Time
	CloseDate     time.Time
}

// Duration how long the position was open.
func (c ClosedTrade) Duration() time.Duration {
	return c.CloseDate.Sub(c.OpenDate)
}
