package trader

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/internal/storage/simstate"
)

// DefaultSimulateBalance initial quote balance of a fresh paper wallet.
var DefaultSimulateBalance = decimal.NewFromInt(10000)

// MaxRememberedFills how many recent fills are kept for client order id replay.
const MaxRememberedFills = 1000

// Pricer returns the current price of a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

type walletStore interface {
	Load() (*simstate.State, error)
	Save(state simstate.State) error
}

// SimulateTrader fills market orders at the pricer's price against a paper wallet.
type SimulateTrader struct {
	mu      sync.Mutex
	logger  *zap.Logger
	pricer  Pricer
	feeRate decimal.Decimal
	wallet  map[string]decimal.Decimal
	store   walletStore

	// fills by client order id; fillOrder oldest first, bounded by maxFills.
	fills     map[string]domain.Fill
	fillOrder []string
	maxFills  int
}

// NewSimulateTrader restores the wallet and recent fills from store (nil keeps them in memory only).
func NewSimulateTrader(logger *zap.Logger, pricer Pricer, feeRate decimal.Decimal, quote string, store walletStore) (*SimulateTrader, error) {
	if pricer == nil {
		return nil, errors.New("pricer is required for SimulateTrader")
	}
	if feeRate.IsNegative() {
		return nil, errors.Errorf("fee rate must not be negative, got %s", feeRate)
	}

	t := &SimulateTrader{
		logger:   logger,
		pricer:   pricer,
		feeRate:  feeRate,
		wallet:   map[string]decimal.Decimal{quote: DefaultSimulateBalance},
		store:    store,
		fills:    make(map[string]domain.Fill),
		maxFills: MaxRememberedFills,
	}
	if err := t.restore(); err != nil {
		logger.Warn("failed to restore simulate wallet", zap.Error(err))
	}

	logger.Info("simulate init", zap.String(quote, t.wallet[quote].String()), zap.String("fee", feeRate.String()))
	return t, nil
}

// Buy spends quoteAmount of pair.To on pair.From. A repeated clientOrderID returns the earlier fill.
func (t *SimulateTrader) Buy(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	if !quoteAmount.IsPositive() {
		return domain.Fill{}, errors.Errorf("buy amount must be positive, got %s", quoteAmount)
	}

	price, err := t.pricer.GetPrice(ctx, pair)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "failed to get price for simulated buy")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if fill, ok := t.fills[clientOrderID]; ok {
		return fill, nil
	}
	if t.wallet[pair.To].LessThan(quoteAmount) {
		return domain.Fill{}, errors.Errorf("insufficient %s balance: have %s need %s", pair.To, t.wallet[pair.To], quoteAmount)
	}

	quantity := quoteAmount.Div(price).Mul(decimal.NewFromInt(1).Sub(t.feeRate))
	t.wallet[pair.To] = t.wallet[pair.To].Sub(quoteAmount)
	t.wallet[pair.From] = t.wallet[pair.From].Add(quantity)

	fill := domain.Fill{
		OrderID:  clientOrderID,
		Price:    price,
		Quantity: quantity,
		Cost:     quoteAmount,
		FeeRate:  t.feeRate,
		Time:     time.Now(),
	}
	t.remember(fill)
	t.persist()

	t.logger.Info("simulated buy executed",
		zap.String("id", clientOrderID),
		zap.String("pair", pair.String()),
		zap.String("quote", quoteAmount.String()),
		zap.String("price", price.String()))
	return fill, nil
}

// Sell sells baseAmount of pair.From, capped to the wallet balance.
func (t *SimulateTrader) Sell(ctx context.Context, pair domain.Pair, baseAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	if !baseAmount.IsPositive() {
		return domain.Fill{}, errors.Errorf("sell amount must be positive, got %s", baseAmount)
	}

	price, err := t.pricer.GetPrice(ctx, pair)
	if err != nil {
		return domain.Fill{}, errors.Wrap(err, "failed to get price for simulated sell")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if fill, ok := t.fills[clientOrderID]; ok {
		return fill, nil
	}

	amount := decimal.Min(baseAmount, t.wallet[pair.From])
	if !amount.IsPositive() {
		return domain.Fill{}, errors.Errorf("insufficient %s balance: have %s need %s", pair.From, t.wallet[pair.From], baseAmount)
	}
	if amount.LessThan(baseAmount) {
		t.logger.Warn("sell amount exceeds balance, capping",
			zap.String("requested", baseAmount.String()),
			zap.String("balance", amount.String()))
	}

	received := amount.Mul(price).Mul(decimal.NewFromInt(1).Sub(t.feeRate))
	t.wallet[pair.From] = t.wallet[pair.From].Sub(amount)
	t.wallet[pair.To] = t.wallet[pair.To].Add(received)

	fill := domain.Fill{
		OrderID:  clientOrderID,
		Price:    price,
		Quantity: amount,
		Cost:     received,
		FeeRate:  t.feeRate,
		Time:     time.Now(),
	}
	t.remember(fill)
	t.persist()

	t.logger.Info("simulated sell executed",
		zap.String("id", clientOrderID),
		zap.String("pair", pair.String()),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()))
	return fill, nil
}

// GetBalance returns the paper balance of currency.
func (t *SimulateTrader) GetBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wallet[currency], nil
}

func (t *SimulateTrader) restore() error {
	if t.store == nil {
		return nil
	}
	state, err := t.store.Load()
	if err != nil || state == nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for currency, balance := range state.Balances() {
		t.wallet[currency] = balance
	}
	for _, f := range state.Fills {
		t.remember(domain.Fill{
			OrderID:  f.OrderID,
			Price:    f.Price,
			Quantity: f.Quantity,
			Cost:     f.Cost,
			FeeRate:  f.FeeRate,
			Time:     f.Time,
		})
	}
	return nil
}

// remember adds fill to the replay cache, evicting the oldest beyond maxFills; caller holds t.mu.
func (t *SimulateTrader) remember(fill domain.Fill) {
	if _, ok := t.fills[fill.OrderID]; ok {
		return
	}
	t.fills[fill.OrderID] = fill
	t.fillOrder = append(t.fillOrder, fill.OrderID)

	for len(t.fillOrder) > t.maxFills {
		delete(t.fills, t.fillOrder[0])
		t.fillOrder = t.fillOrder[1:]
	}
}

// persist saves the wallet; caller holds t.mu.
func (t *SimulateTrader) persist() {
	if t.store == nil {
		return
	}
	state := simstate.NewState(t.wallet)
	state.Fills = make([]simstate.Fill, 0, len(t.fillOrder))
	for _, id := range t.fillOrder {
		f := t.fills[id]
		state.Fills = append(state.Fills, simstate.Fill{
			OrderID:  f.OrderID,
			Price:    f.Price,
			Quantity: f.Quantity,
			Cost:     f.Cost,
			FeeRate:  f.FeeRate,
			Time:     f.Time,
		})
	}
	if err := t.store.Save(state); err != nil {
		t.logger.Warn("failed to persist simulate wallet", zap.Error(err))
	}
}
