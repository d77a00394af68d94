package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DCACheck telemetry of a safety-order evaluation.
type DCACheck struct {
	Timestamp      time.Time       `json:"ts"`
	Symbol         string          `json:"symbol"`
	SOOrders       int             `json:"so_orders"`
	LastSOPrice    decimal.Decimal `json:"last_so_price"`
	NewSOSize      decimal.Decimal `json:"new_so_size"`
	PriceDeviation decimal.Decimal `json:"price_deviation"`
	ActualPNL      decimal.Decimal `json:"actual_pnl"`
	NewSO          bool            `json:"new_so"`
}

// TPCheck telemetry of a take-profit / stop-loss evaluation.
type TPCheck struct {
	Timestamp    time.Time       `json:"ts"`
	Symbol       string          `json:"symbol"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	TPPrice      decimal.Decimal `json:"tp_price"`
	ActualPNL    decimal.Decimal `json:"actual_pnl"`
	Sell         bool            `json:"sell"`
	Direction    Direction       `json:"direction"`
}
