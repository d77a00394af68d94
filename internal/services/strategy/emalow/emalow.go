// Package emalow confirms dynamic safety orders when price rebounds inside a
// deep downtrend, measured by a stack of EMAs under EMA200.
package emalow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/pkg/indicators"
)

const (
	// DefaultTimeframe candle interval used when none is configured.
	DefaultTimeframe = "15m"

	slowPeriod = 200
	// extra candles on top of the slow EMA window so it settles
	historyPadding = 50
)

var fastPeriods = []int{20, 50, 100}

var validTimeframes = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1M": {},
}

type klineSource interface {
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// Plugin confirms entries for dynamic DCA.
type Plugin struct {
	l         *zap.Logger
	klines    klineSource
	timeframe string
}

// New creates the plugin. An empty timeframe falls back to DefaultTimeframe.
func New(l *zap.Logger, klines klineSource, timeframe string) (*Plugin, error) {
	if klines == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "emalow: kline source is required")
	}
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}
	if _, ok := validTimeframes[timeframe]; !ok {
		return nil, errors.Wrapf(domain.ErrInvalidConfiguration, "emalow: unsupported timeframe %q", timeframe)
	}

	return &Plugin{l: l, klines: klines, timeframe: timeframe}, nil
}

// Confirm reports whether a dynamic safety order at price is favorable for symbol.
func (p *Plugin) Confirm(ctx context.Context, symbol string, price decimal.Decimal) (bool, error) {
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return false, err
	}

	candles, err := p.klines.GetKlines(ctx, pair, p.timeframe, slowPeriod+historyPadding)
	if err != nil {
		return false, errors.Wrapf(err, "emalow: fetch %s klines", p.timeframe)
	}

	ok, err := reboundInDowntrend(domain.Closes(candles))
	if err != nil {
		return false, err
	}

	p.l.Debug("emalow evaluated",
		zap.String("symbol", symbol),
		zap.String("price", price.String()),
		zap.Bool("confirmed", ok))

	return ok, nil
}

// reboundInDowntrend is true when EMA20, EMA50 and EMA100 are all below EMA200
// and the latest close is above the previous one.
func reboundInDowntrend(closes []decimal.Decimal) (bool, error) {
	if len(closes) < slowPeriod {
		return false, errors.Errorf("emalow: need %d closes, got %d", slowPeriod, len(closes))
	}

	emas, err := indicators.LastEMA(closes, append(fastPeriods, slowPeriod)...)
	if err != nil {
		return false, errors.Wrap(err, "emalow")
	}

	slow := emas[len(emas)-1]
	for _, fast := range emas[:len(emas)-1] {
		if !fast.LessThan(slow) {
			return false, nil
		}
	}

	last, prev := closes[len(closes)-1], closes[len(closes)-2]

	return last.GreaterThan(prev), nil
}
