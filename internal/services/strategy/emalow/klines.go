package emalow

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

// BinanceKlines reads candles from the Binance spot REST API.
type BinanceKlines struct {
	client *binance.Client
}

func NewBinanceKlines(client *binance.Client) *BinanceKlines {
	return &BinanceKlines{client: client}
}

func (b *BinanceKlines) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines for %s", pair)
	}

	candles := make([]domain.MarketCandle, 0, len(klines))
	for i, k := range klines {
		candle, err := toCandle(k)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d of %s", i, pair)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

func toCandle(k *binance.Kline) (domain.MarketCandle, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	var parsed [5]decimal.Decimal
	for i, raw := range fields {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.MarketCandle{}, errors.Wrapf(err, "parse %q", raw)
		}
		parsed[i] = v
	}

	return domain.MarketCandle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}
