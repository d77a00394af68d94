package pricer

import (
	"context"
	"fmt"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

type BybitPricer struct {
	client     *bybit.Client
	marketType domain.MarketType
}

func NewBybitPricer(client *bybit.Client, marketType domain.MarketType) *BybitPricer {
	return &BybitPricer{client: client, marketType: marketType}
}

func (p *BybitPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	category := bybit.CategoryV5Spot
	if p.marketType == domain.MarketTypeFutures {
		category = bybit.CategoryV5Linear
	}

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: category,
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "bybit price %s", pair)
	}

	var last string
	switch category {
	case bybit.CategoryV5Linear:
		if result.Result.LinearInverse == nil || len(result.Result.LinearInverse.List) == 0 {
			return decimal.Decimal{}, fmt.Errorf("bybit API returned empty prices for %s", pair.String())
		}
		last = result.Result.LinearInverse.List[0].LastPrice
	default:
		if result.Result.Spot == nil || len(result.Result.Spot.List) == 0 {
			return decimal.Decimal{}, fmt.Errorf("bybit API returned empty prices for %s", pair.String())
		}
		last = result.Result.Spot.List[0].LastPrice
	}

	return decimal.NewFromString(last)
}
