package domain

import "github.com/shopspring/decimal"

// TickTypePrice price update tick type.
const TickTypePrice = "ticker_price"

// Ticker symbol price.
type Ticker struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Tick market data event delivered to the decision engine.
type Tick struct {
	Type   string `json:"type"`
	Ticker Ticker `json:"ticker"`
}

// NewPriceTick builds a ticker_price tick.
func NewPriceTick(symbol string, price decimal.Decimal) Tick {
	return Tick{Type: TickTypePrice, Ticker: Ticker{Symbol: symbol, Price: price}}
}
