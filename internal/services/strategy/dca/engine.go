// Package dca decides, tick by tick, whether an open position gets a safety order or is closed.
package dca

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const (
	defaultSnapshotTimeout = 3 * time.Second
	defaultEmissionTimeout = 5 * time.Second
)

type snapshotProvider interface {
	Snapshot(ctx context.Context, symbol string) (domain.Snapshot, error)
}

type policyProvider interface {
	ActivePolicy(ctx context.Context) (domain.Policy, error)
}

type orderDispatcher interface {
	Buy(ctx context.Context, intent domain.BuyIntent) error
	Sell(ctx context.Context, intent domain.SellIntent) error
}

type statisticsSink interface {
	RecordDCACheck(ctx context.Context, check domain.DCACheck) error
	RecordTPCheck(ctx context.Context, check domain.TPCheck) error
}

// Timeouts bound collaborator calls made while evaluating a tick.
type Timeouts struct {
	Snapshot time.Duration
	Emission time.Duration
}

// Option configures the Engine.
type Option func(*Engine)

// WithConfirmation sets the plugin consulted before dynamic safety orders.
func WithConfirmation(c StrategyConfirmation) Option {
	return func(e *Engine) {
		if c != nil {
			e.confirmation = c
		}
	}
}

// WithTimeouts overrides the default collaborator timeouts; zero values keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) {
		if t.Snapshot > 0 {
			e.timeouts.Snapshot = t.Snapshot
		}
		if t.Emission > 0 {
			e.timeouts.Emission = t.Emission
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the DCA decision engine.
type Engine struct {
	l            *zap.Logger
	snapshots    snapshotProvider
	policies     policyProvider
	orders       orderDispatcher
	stats        statisticsSink
	confirmation StrategyConfirmation
	timeouts     Timeouts
	now          func() time.Time

	mu     sync.Mutex
	states map[string]*symbolState
}

// NewEngine wires the engine with its collaborators.
func NewEngine(l *zap.Logger, snapshots snapshotProvider, policies policyProvider,
	orders orderDispatcher, stats statisticsSink, opts ...Option) (*Engine, error) {
	if snapshots == nil || policies == nil || orders == nil || stats == nil {
		return nil, errors.Wrap(domain.ErrInvalidConfiguration, "dca engine requires snapshot, policy, order and statistics collaborators")
	}

	e := &Engine{
		l:            l,
		snapshots:    snapshots,
		policies:     policies,
		orders:       orders,
		stats:        stats,
		confirmation: AlwaysConfirm{},
		timeouts: Timeouts{
			Snapshot: defaultSnapshotTimeout,
			Emission: defaultEmissionTimeout,
		},
		now:    time.Now,
		states: make(map[string]*symbolState),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Evaluate runs safety-order evaluation and then exit evaluation for the tick's symbol.
// A missing position skips the tick and returns nil. Emission failures are returned
// wrapped in domain.ErrDownstreamEmission after both evaluations ran.
func (e *Engine) Evaluate(ctx context.Context, tick domain.Tick) error {
	if tick.Type != domain.TickTypePrice {
		return nil
	}

	symbol := tick.Ticker.Symbol
	price := tick.Ticker.Price
	if !price.IsPositive() {
		return errors.Errorf("%s: non-positive price %s", symbol, price)
	}

	snapshot, err := e.fetchSnapshot(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotUnavailable) {
			e.forget(symbol)
			return nil
		}
		return errors.Wrapf(err, "%s: fetch snapshot", symbol)
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.stateFor(snapshot)
	if state.phase == phaseAwaitingClose {
		e.l.Debug("sell in flight, skipping tick", zap.String("symbol", symbol))
		return nil
	}

	policy, err := e.policies.ActivePolicy(ctx)
	if err != nil {
		return errors.Wrapf(err, "%s: resolve policy", symbol)
	}

	actualPNL, err := domain.CalculatePNL(snapshot, price)
	if err != nil {
		return err
	}

	soErr := e.evaluateSafetyOrder(ctx, snapshot, policy, state, price, actualPNL)
	exitErr := e.evaluateExit(ctx, snapshot, policy, state, price, actualPNL)

	return multierr.Combine(soErr, exitErr)
}

func (e *Engine) fetchSnapshot(ctx context.Context, symbol string) (domain.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Snapshot)
	defer cancel()
	return e.snapshots.Snapshot(ctx, symbol)
}

func (e *Engine) evaluateSafetyOrder(ctx context.Context, snapshot domain.Snapshot, policy domain.Policy,
	state *symbolState, price, actualPNL decimal.Decimal) error {
	l := e.l.With(zap.String("symbol", snapshot.Symbol))

	count := snapshot.SafetyOrderCount()
	if count >= policy.MaxSafetyOrders {
		l.Debug("max safety orders reached", zap.Int("so_count", count))
		return nil
	}
	if state.phase == phaseAwaitingSafetyOrder {
		l.Debug("safety order in flight", zap.Int("order_count", state.pendingOrderCount))
		return nil
	}

	soPercentage, size := policy.NextSafetyOrder(snapshot)
	trigger := false

	if policy.DynamicDCA {
		if actualPNL.LessThanOrEqual(soPercentage.Abs().Neg()) && e.confirm(ctx, snapshot.Symbol, price) {
			soPercentage = actualPNL
			trigger = true
		}
	} else {
		maxDeviation, actualDeviation := policy.StaticDeviation(count)
		totalPNL := domain.PercentageDiff(price, snapshot.BaseOrderPrice)
		if totalPNL.LessThanOrEqual(maxDeviation.Abs().Neg()) {
			soPercentage = maxDeviation.Sub(actualDeviation).Round(2)
			trigger = true
		}
	}

	var errs error
	if trigger {
		intent := domain.BuyIntent{
			OrderSize:    size,
			Symbol:       snapshot.Symbol,
			Direction:    snapshot.Direction,
			BaseOrder:    false,
			SafetyOrder:  true,
			OrderCount:   count + 1,
			OrderType:    orderType(snapshot),
			SOPercentage: soPercentage,
			Side:         domain.SideBuy,
		}
		state.awaitSafetyOrder(intent.OrderCount)

		if err := e.emit(ctx, func(ctx context.Context) error { return e.orders.Buy(ctx, intent) }); err != nil {
			state.hold()
			l.Error("failed to dispatch safety order", zap.Stringer("intent", intent), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(domain.ErrDownstreamEmission, "buy %s: %s", intent, err))
		} else {
			l.Info("safety order dispatched", zap.Stringer("intent", intent))
		}
	} else {
		l.Debug("no safety order",
			zap.String("actual_pnl", actualPNL.StringFixed(2)),
			zap.String("next_so_percentage", soPercentage.StringFixed(2)))
	}

	lastSOPrice := decimal.Zero
	if last, ok, _, _ := snapshot.LastSafetyOrders(); ok {
		lastSOPrice = last.Price
	}
	check := domain.DCACheck{
		Timestamp:      e.now(),
		Symbol:         snapshot.Symbol,
		SOOrders:       count,
		LastSOPrice:    lastSOPrice,
		NewSOSize:      size,
		PriceDeviation: soPercentage,
		ActualPNL:      actualPNL,
		NewSO:          trigger,
	}
	if err := e.emit(ctx, func(ctx context.Context) error { return e.stats.RecordDCACheck(ctx, check) }); err != nil {
		l.Error("failed to record dca check", zap.Error(err))
		errs = multierr.Append(errs, errors.Wrapf(domain.ErrDownstreamEmission, "dca_check %s: %s", snapshot.Symbol, err))
	}

	return errs
}

func (e *Engine) evaluateExit(ctx context.Context, snapshot domain.Snapshot, policy domain.Policy,
	state *symbolState, price, actualPNL decimal.Decimal) error {
	l := e.l.With(zap.String("symbol", snapshot.Symbol))

	avgPrice, err := domain.AverageBuyPrice(snapshot)
	if err != nil {
		return err
	}

	count := snapshot.SafetyOrderCount()
	takeProfitPrice := domain.PriceAtPercent(avgPrice, policy.EffectiveTakeProfit(count))
	stopLossPrice := domain.PriceAtPercent(avgPrice, policy.StopLossPercent.Neg())

	// zero stop loss percent disables the stop
	stopLoss := policy.StopLossPercent.IsPositive() &&
		price.LessThanOrEqual(stopLossPrice) && count == policy.MaxSafetyOrders
	candidate := price.GreaterThanOrEqual(takeProfitPrice) || stopLoss

	sell := candidate
	if policy.TrailingEnabled() && candidate {
		sell = state.trail(actualPNL, policy.TakeProfitPercent, policy.TrailingTakeProfitPercent)
		if !sell {
			l.Debug("trailing take profit holds", zap.String("last_pnl", state.lastPNL.StringFixed(2)))
		}
	}

	var errs error
	if sell {
		intent := domain.SellIntent{
			Symbol:       snapshot.Symbol,
			Direction:    snapshot.Direction,
			Side:         domain.SideSell,
			TypeSell:     domain.TypeSellOrder,
			ActualPNL:    actualPNL,
			TotalCost:    snapshot.TotalCost,
			CurrentPrice: price,
		}
		state.awaitClose(snapshot.ID)

		if err := e.emit(ctx, func(ctx context.Context) error { return e.orders.Sell(ctx, intent) }); err != nil {
			state.hold()
			l.Error("failed to dispatch sell", zap.Stringer("intent", intent), zap.Error(err))
			errs = multierr.Append(errs, errors.Wrapf(domain.ErrDownstreamEmission, "sell %s: %s", intent, err))
		} else {
			state.lastPNL = decimal.Zero
			l.Info("sell dispatched", zap.Stringer("intent", intent))
		}
	}

	check := domain.TPCheck{
		Timestamp:    e.now(),
		Symbol:       snapshot.Symbol,
		TotalCost:    snapshot.TotalCost,
		TotalAmount:  snapshot.TotalAmount,
		CurrentPrice: price,
		AvgPrice:     avgPrice,
		TPPrice:      takeProfitPrice,
		ActualPNL:    actualPNL,
		Sell:         sell,
		Direction:    snapshot.Direction,
	}
	if err := e.emit(ctx, func(ctx context.Context) error { return e.stats.RecordTPCheck(ctx, check) }); err != nil {
		l.Error("failed to record tp check", zap.Error(err))
		errs = multierr.Append(errs, errors.Wrapf(domain.ErrDownstreamEmission, "tp_check %s: %s", snapshot.Symbol, err))
	}

	return errs
}

func (e *Engine) confirm(ctx context.Context, symbol string, price decimal.Decimal) bool {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Emission)
	defer cancel()

	ok, err := e.confirmation.Confirm(ctx, symbol, price)
	if err != nil {
		e.l.Warn("strategy confirmation failed", zap.String("symbol", symbol), zap.Error(err))
		return false
	}
	return ok
}

func (e *Engine) emit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Emission)
	defer cancel()
	return fn(ctx)
}

func orderType(s domain.Snapshot) string {
	if s.OrderType == "" {
		return domain.OrderTypeMarket
	}
	return s.OrderType
}
