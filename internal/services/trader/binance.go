// Package trader executes market orders on an exchange or against a paper wallet.
package trader

import (
	"context"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	binanceRejectedCode       = -2010
	binanceQuotePrecision     = 2
	binanceBasePrecision      = 5
)

// BinanceTrader places spot market orders.
type BinanceTrader struct {
	client  *binance.Client
	feeRate decimal.Decimal
}

// NewBinanceTrader feeRate is reported on fills for average price calculation.
func NewBinanceTrader(client *binance.Client, feeRate decimal.Decimal) *BinanceTrader {
	return &BinanceTrader{client: client, feeRate: feeRate}
}

// Buy spends quoteAmount of pair.To.
func (t *BinanceTrader) Buy(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	resp, err := t.client.NewCreateOrderService().Symbol(pair.Symbol()).
		Side(binance.SideTypeBuy).Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.RoundFloor(binanceQuotePrecision).String()).
		NewClientOrderID(clientOrderID).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return domain.Fill{}, wrapBinanceError(err, "buy", pair)
	}

	return t.fillFromResponse(resp, true)
}

// Sell sells baseAmount of pair.From.
func (t *BinanceTrader) Sell(ctx context.Context, pair domain.Pair, baseAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	resp, err := t.client.NewCreateOrderService().Symbol(pair.Symbol()).
		Side(binance.SideTypeSell).Type(binance.OrderTypeMarket).
		Quantity(baseAmount.RoundFloor(binanceBasePrecision).String()).
		NewClientOrderID(clientOrderID).
		NewOrderRespType(binance.NewOrderRespTypeFULL).
		Do(ctx)
	if err != nil {
		return domain.Fill{}, wrapBinanceError(err, "sell", pair)
	}

	return t.fillFromResponse(resp, false)
}

// GetBalance returns the free spot balance of currency.
func (t *BinanceTrader) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := t.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == currency {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

func (t *BinanceTrader) fillFromResponse(resp *binance.CreateOrderResponse, buy bool) (domain.Fill, error) {
	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "failed to parse executed quantity")
	}
	quote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "failed to parse quote quantity")
	}
	if !executed.IsPositive() {
		return domain.Fill{}, errors.Errorf("order %s was not filled, status %s", resp.ClientOrderID, resp.Status)
	}

	// commission is charged in the received asset on spot
	commission := decimal.Zero
	for _, f := range resp.Fills {
		if f == nil {
			continue
		}
		c, err := decimal.NewFromString(f.Commission)
		if err != nil {
			return domain.Fill{}, errors.Wrap(err, "failed to parse commission")
		}
		commission = commission.Add(c)
	}

	fill := domain.Fill{
		OrderID: resp.ClientOrderID,
		Price:   quote.Div(executed),
		FeeRate: t.feeRate,
		Time:    time.UnixMilli(resp.TransactTime),
	}
	if buy {
		fill.Quantity = executed.Sub(commission)
		fill.Cost = quote
	} else {
		fill.Quantity = executed
		fill.Cost = quote.Sub(commission)
	}

	return fill, nil
}

func wrapBinanceError(err error, side string, pair domain.Pair) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceRejectedCode && strings.Contains(apiErr.Message, "Duplicate") {
		return errors.Wrapf(domain.ErrDuplicateOrder, "binance %s %s: %s", side, pair, apiErr.Message)
	}
	return errors.Wrapf(err, "binance %s %s", side, pair)
}
