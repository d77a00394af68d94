package dca

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

const symbol = "BTC/USDT"

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decimalMatcher(expected decimal.Decimal) interface{} {
	return mock.MatchedBy(func(actual decimal.Decimal) bool {
		return expected.Equal(actual)
	})
}

type fakeSnapshots struct {
	mu        sync.Mutex
	positions map[string]domain.Snapshot
	err       error
}

func newFakeSnapshots(snapshots ...domain.Snapshot) *fakeSnapshots {
	f := &fakeSnapshots{positions: make(map[string]domain.Snapshot)}
	for _, s := range snapshots {
		f.positions[s.Symbol] = s
	}
	return f
}

func (f *fakeSnapshots) Snapshot(_ context.Context, symbol string) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Snapshot{}, f.err
	}
	s, ok := f.positions[symbol]
	if !ok {
		return domain.Snapshot{}, domain.ErrSnapshotUnavailable
	}
	return s.Clone(), nil
}

func (f *fakeSnapshots) set(s domain.Snapshot) {
	f.mu.Lock()
	f.positions[s.Symbol] = s
	f.mu.Unlock()
}

func (f *fakeSnapshots) remove(symbol string) {
	f.mu.Lock()
	delete(f.positions, symbol)
	f.mu.Unlock()
}

type staticPolicy struct {
	policy domain.Policy
}

func (s staticPolicy) ActivePolicy(context.Context) (domain.Policy, error) {
	return s.policy, nil
}

type dispatcherMock struct {
	mock.Mock
}

func (m *dispatcherMock) Buy(ctx context.Context, intent domain.BuyIntent) error {
	return m.Called(ctx, intent).Error(0)
}

func (m *dispatcherMock) Sell(ctx context.Context, intent domain.SellIntent) error {
	return m.Called(ctx, intent).Error(0)
}

// fillingDispatcher applies intents to the fake snapshot store immediately.
type fillingDispatcher struct {
	snapshots *fakeSnapshots
	price     decimal.Decimal
	buys      []domain.BuyIntent
	sells     []domain.SellIntent
}

func (f *fillingDispatcher) Buy(ctx context.Context, intent domain.BuyIntent) error {
	s, err := f.snapshots.Snapshot(ctx, intent.Symbol)
	if err != nil {
		return err
	}
	amount := intent.OrderSize.Div(f.price)
	s.TotalCost = s.TotalCost.Add(intent.OrderSize)
	s.TotalAmount = s.TotalAmount.Add(amount)
	s.SafetyOrders = append(s.SafetyOrders, domain.SafetyOrder{
		Price:        f.price,
		OrderSize:    intent.OrderSize,
		SOPercentage: intent.SOPercentage,
	})
	f.snapshots.set(s)
	f.buys = append(f.buys, intent)
	return nil
}

func (f *fillingDispatcher) Sell(_ context.Context, intent domain.SellIntent) error {
	f.snapshots.remove(intent.Symbol)
	f.sells = append(f.sells, intent)
	return nil
}

type recordingSink struct {
	mu   sync.Mutex
	dca  []domain.DCACheck
	tp   []domain.TPCheck
	fail error
}

func (r *recordingSink) RecordDCACheck(_ context.Context, check domain.DCACheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dca = append(r.dca, check)
	return r.fail
}

func (r *recordingSink) RecordTPCheck(_ context.Context, check domain.TPCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tp = append(r.tp, check)
	return r.fail
}

type confirmationMock struct {
	mock.Mock
}

func (m *confirmationMock) Confirm(ctx context.Context, symbol string, price decimal.Decimal) (bool, error) {
	args := m.Called(ctx, symbol, price)
	return args.Bool(0), args.Error(1)
}

func testPolicy() domain.Policy {
	return domain.Policy{
		SafetyOrderSize:          d("20"),
		SafetyOrderBaseDeviation: d("2"),
		VolumeScale:              d("1.5"),
		StepScale:                d("2"),
		MaxSafetyOrders:          3,
		TakeProfitPercent:        d("2"),
		StopLossPercent:          d("10"),
	}
}

// testSnapshot cost 1000, amount 10, fee 0.001 => average buy price 100.1.
func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		ID:             "pos-1",
		Symbol:         symbol,
		Direction:      domain.DirectionLong,
		TotalCost:      d("1000"),
		TotalAmount:    d("10"),
		Fee:            d("0.001"),
		BaseOrderPrice: d("100"),
		OrderType:      domain.OrderTypeMarket,
	}
}

func withSafetyOrders(s domain.Snapshot, n int) domain.Snapshot {
	size := d("20")
	pct := d("-2")
	for i := 0; i < n; i++ {
		s.SafetyOrders = append(s.SafetyOrders, domain.SafetyOrder{Price: d("95"), OrderSize: size, SOPercentage: pct})
		size = size.Mul(d("1.5"))
		pct = pct.Mul(d("2"))
	}
	return s
}

func newTestEngine(t *testing.T, snapshots snapshotProvider, policy domain.Policy, orders orderDispatcher, sink statisticsSink, opts ...Option) *Engine {
	t.Helper()
	opts = append(opts, withClock(func() time.Time { return time.Unix(1700000000, 0) }))
	e, err := NewEngine(zap.NewNop(), snapshots, staticPolicy{policy: policy}, orders, sink, opts...)
	require.NoError(t, err)
	return e
}

func tick(price string) domain.Tick {
	return domain.NewPriceTick(symbol, d(price))
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(zap.NewNop(), nil, staticPolicy{}, &dispatcherMock{}, &recordingSink{})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestEngine_TakeProfit(t *testing.T) {
	orders := &dispatcherMock{}
	orders.On("Sell", mock.Anything, mock.MatchedBy(func(i domain.SellIntent) bool {
		return i.Symbol == symbol && i.Side == domain.SideSell && i.TypeSell == domain.TypeSellOrder &&
			i.TotalCost.Equal(d("1000")) && i.CurrentPrice.Equal(d("103"))
	})).Return(nil).Once()
	sink := &recordingSink{}

	e := newTestEngine(t, newFakeSnapshots(testSnapshot()), testPolicy(), orders, sink)
	require.NoError(t, e.Evaluate(context.Background(), tick("103")))

	orders.AssertExpectations(t)
	orders.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything)

	require.Len(t, sink.tp, 1)
	check := sink.tp[0]
	require.True(t, check.Sell)
	require.True(t, check.AvgPrice.Equal(d("100.1")), "avg %s", check.AvgPrice)
	require.True(t, check.TPPrice.Equal(d("102.102")), "tp %s", check.TPPrice)
	require.Equal(t, domain.DirectionLong, check.Direction)

	require.Len(t, sink.dca, 1)
	require.False(t, sink.dca[0].NewSO)
}

func TestEngine_StaticSafetyOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("below max deviation", func(t *testing.T) {
		orders := &dispatcherMock{}
		sink := &recordingSink{}
		e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 1)), testPolicy(), orders, sink)

		require.NoError(t, e.Evaluate(ctx, tick("94.5")))
		orders.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything)
		require.Len(t, sink.dca, 1)
		require.False(t, sink.dca[0].NewSO)
		require.True(t, sink.dca[0].PriceDeviation.Equal(d("-6")), "next so percentage %s", sink.dca[0].PriceDeviation)
	})

	t.Run("max deviation reached", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Buy", mock.Anything, mock.MatchedBy(func(i domain.BuyIntent) bool {
			return i.OrderCount == 2 && i.SOPercentage.Equal(d("4")) && i.OrderSize.Equal(d("30")) &&
				i.SafetyOrder && !i.BaseOrder && i.Side == domain.SideBuy && i.OrderType == domain.OrderTypeMarket
		})).Return(nil).Once()
		sink := &recordingSink{}
		e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 1)), testPolicy(), orders, sink)

		require.NoError(t, e.Evaluate(ctx, tick("94")))
		orders.AssertExpectations(t)

		require.Len(t, sink.dca, 1)
		check := sink.dca[0]
		require.True(t, check.NewSO)
		require.Equal(t, 1, check.SOOrders)
		require.True(t, check.LastSOPrice.Equal(d("95")))
		require.True(t, check.NewSOSize.Equal(d("30")))
		require.True(t, check.PriceDeviation.Equal(d("4")))
	})
}

func TestEngine_DynamicSafetyOrder(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy()
	policy.DynamicDCA = true

	snapshot := testSnapshot()
	snapshot.Fee = decimal.Zero

	t.Run("plugin rejects", func(t *testing.T) {
		orders := &dispatcherMock{}
		confirmation := &confirmationMock{}
		confirmation.On("Confirm", mock.Anything, symbol, decimalMatcher(d("97"))).Return(false, nil).Once()

		e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{}, WithConfirmation(confirmation))
		require.NoError(t, e.Evaluate(ctx, tick("97")))

		confirmation.AssertExpectations(t)
		orders.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything)
	})

	t.Run("plugin error counts as rejection", func(t *testing.T) {
		orders := &dispatcherMock{}
		confirmation := &confirmationMock{}
		confirmation.On("Confirm", mock.Anything, symbol, mock.Anything).Return(true, errors.New("klines unavailable")).Once()

		e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{}, WithConfirmation(confirmation))
		require.NoError(t, e.Evaluate(ctx, tick("97")))
		orders.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything)
	})

	t.Run("pnl above next deviation skips plugin", func(t *testing.T) {
		orders := &dispatcherMock{}
		confirmation := &confirmationMock{}

		e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{}, WithConfirmation(confirmation))
		require.NoError(t, e.Evaluate(ctx, tick("98.5")))
		confirmation.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no plugin always confirms", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Buy", mock.Anything, mock.MatchedBy(func(i domain.BuyIntent) bool {
			return i.OrderCount == 1 && i.SOPercentage.Equal(d("-3")) && i.OrderSize.Equal(d("20"))
		})).Return(nil).Once()

		e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{})
		require.NoError(t, e.Evaluate(ctx, tick("97")))
		orders.AssertExpectations(t)
	})
}

func TestEngine_DynamicTakeProfit(t *testing.T) {
	policy := testPolicy()
	policy.DynamicTakeProfitDecay = d("0.5")
	sink := &recordingSink{}
	orders := &dispatcherMock{}
	orders.On("Sell", mock.Anything, mock.Anything).Return(nil).Once()

	e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 2)), policy, orders, sink)

	require.NoError(t, e.Evaluate(context.Background(), tick("101.2")))
	orders.AssertExpectations(t)

	require.Len(t, sink.tp, 1)
	require.True(t, sink.tp[0].TPPrice.Equal(d("101.101")), "effective tp 1%% of 100.1, got %s", sink.tp[0].TPPrice)
}

func TestEngine_StopLossGating(t *testing.T) {
	ctx := context.Background()

	t.Run("safety orders left", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Buy", mock.Anything, mock.Anything).Return(nil)

		e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 1)), testPolicy(), orders, &recordingSink{})
		require.NoError(t, e.Evaluate(ctx, tick("50")))
		orders.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything)
	})

	t.Run("all safety orders used", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Sell", mock.Anything, mock.Anything).Return(nil).Once()
		sink := &recordingSink{}

		e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 3)), testPolicy(), orders, sink)
		require.NoError(t, e.Evaluate(ctx, tick("50")))
		orders.AssertExpectations(t)
		orders.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything)
		require.Empty(t, sink.dca, "no dca_check once max safety orders are reached")
		require.Len(t, sink.tp, 1)
	})

	t.Run("zero stop loss never sells below average", func(t *testing.T) {
		policy := testPolicy()
		policy.StopLossPercent = decimal.Zero
		orders := &dispatcherMock{}
		sink := &recordingSink{}

		e := newTestEngine(t, newFakeSnapshots(withSafetyOrders(testSnapshot(), 3)), policy, orders, sink)
		require.NoError(t, e.Evaluate(ctx, tick("99.9")))
		require.NoError(t, e.Evaluate(ctx, tick("50")))

		orders.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything)
		require.Len(t, sink.tp, 2)
		require.False(t, sink.tp[0].Sell)
		require.False(t, sink.tp[1].Sell)
	})

	t.Run("zero stop loss without safety orders", func(t *testing.T) {
		policy := testPolicy()
		policy.MaxSafetyOrders = 0
		policy.StopLossPercent = decimal.Zero
		orders := &dispatcherMock{}

		e := newTestEngine(t, newFakeSnapshots(testSnapshot()), policy, orders, &recordingSink{})
		require.NoError(t, e.Evaluate(ctx, tick("99.9")))
		orders.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything)
	})
}

func TestEngine_TrailingTakeProfit(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy()
	policy.TakeProfitPercent = d("1")
	policy.TrailingTakeProfitPercent = d("1")

	snapshot := testSnapshot()
	snapshot.Fee = decimal.Zero
	snapshots := newFakeSnapshots(snapshot)

	orders := &dispatcherMock{}
	orders.On("Sell", mock.Anything, mock.MatchedBy(func(i domain.SellIntent) bool {
		return i.ActualPNL.Equal(d("1"))
	})).Return(nil).Once()

	e := newTestEngine(t, snapshots, policy, orders, &recordingSink{})

	require.NoError(t, e.Evaluate(ctx, tick("102")))
	last, ok := e.TrailingPNL(symbol)
	require.True(t, ok)
	require.True(t, last.Equal(d("2")))

	require.NoError(t, e.Evaluate(ctx, tick("102.5")))
	last, ok = e.TrailingPNL(symbol)
	require.True(t, ok)
	require.True(t, last.Equal(d("2.5")))
	orders.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything)

	require.NoError(t, e.Evaluate(ctx, tick("101")))
	orders.AssertExpectations(t)

	_, ok = e.TrailingPNL(symbol)
	require.False(t, ok, "trailing memory cleared on sell")

	// new position on the same symbol starts without trailing memory
	reopened := snapshot
	reopened.ID = "pos-2"
	snapshots.set(reopened)

	require.NoError(t, e.Evaluate(ctx, tick("102")))
	orders.AssertNumberOfCalls(t, "Sell", 1)
	last, ok = e.TrailingPNL(symbol)
	require.True(t, ok)
	require.True(t, last.Equal(d("2")))
}

func TestEngine_TrailingMemoryKeptOnFailedSell(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy()
	policy.TakeProfitPercent = d("1")
	policy.TrailingTakeProfitPercent = d("1")

	snapshot := testSnapshot()
	snapshot.Fee = decimal.Zero

	orders := &dispatcherMock{}
	orders.On("Sell", mock.Anything, mock.Anything).Return(errors.New("exchange unavailable")).Once()
	orders.On("Sell", mock.Anything, mock.Anything).Return(nil).Once()

	e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{})

	require.NoError(t, e.Evaluate(ctx, tick("102.5")))
	require.ErrorIs(t, e.Evaluate(ctx, tick("101")), domain.ErrDownstreamEmission)

	last, ok := e.TrailingPNL(symbol)
	require.True(t, ok, "failed sell keeps trailing memory")
	require.True(t, last.Equal(d("2.5")))

	// the retracement is still past the trailing distance, so the next tick sells at once
	require.NoError(t, e.Evaluate(ctx, tick("101")))
	orders.AssertNumberOfCalls(t, "Sell", 2)

	_, ok = e.TrailingPNL(symbol)
	require.False(t, ok)
}

func TestEngine_TrailingMemoryKeptBelowTakeProfit(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy()
	policy.TakeProfitPercent = d("1")
	policy.TrailingTakeProfitPercent = d("1")

	snapshot := testSnapshot()
	snapshot.Fee = decimal.Zero
	orders := &dispatcherMock{}

	e := newTestEngine(t, newFakeSnapshots(snapshot), policy, orders, &recordingSink{})

	require.NoError(t, e.Evaluate(ctx, tick("102")))
	require.NoError(t, e.Evaluate(ctx, tick("100.5")))

	last, ok := e.TrailingPNL(symbol)
	require.True(t, ok)
	require.True(t, last.Equal(d("2")))
	orders.AssertNotCalled(t, "Sell", mock.Anything, mock.Anything)
}

func TestEngine_SafetyOrderCapAndMonotonicDeviation(t *testing.T) {
	ctx := context.Background()
	snapshots := newFakeSnapshots(testSnapshot())
	orders := &fillingDispatcher{snapshots: snapshots}
	policy := testPolicy()
	policy.StopLossPercent = d("95")

	e := newTestEngine(t, snapshots, policy, orders, &recordingSink{})

	for price := 100; price >= 20; price-- {
		orders.price = decimal.NewFromInt(int64(price))
		require.NoError(t, e.Evaluate(ctx, domain.NewPriceTick(symbol, orders.price)))
	}

	require.Len(t, orders.buys, policy.MaxSafetyOrders)
	for i := 1; i < len(orders.buys); i++ {
		require.True(t, orders.buys[i].SOPercentage.GreaterThan(orders.buys[i-1].SOPercentage),
			"so percentage %s after %s", orders.buys[i].SOPercentage, orders.buys[i-1].SOPercentage)
		require.Equal(t, i+1, orders.buys[i].OrderCount)
	}
	require.Empty(t, orders.sells)
}

func TestEngine_AwaitingSafetyOrder(t *testing.T) {
	ctx := context.Background()
	snapshots := newFakeSnapshots(testSnapshot())
	orders := &dispatcherMock{}
	orders.On("Buy", mock.Anything, mock.MatchedBy(func(i domain.BuyIntent) bool { return i.OrderCount == 1 })).Return(nil).Once()
	orders.On("Buy", mock.Anything, mock.MatchedBy(func(i domain.BuyIntent) bool { return i.OrderCount == 2 })).Return(nil).Once()

	e := newTestEngine(t, snapshots, testPolicy(), orders, &recordingSink{})

	require.NoError(t, e.Evaluate(ctx, tick("97")))
	require.NoError(t, e.Evaluate(ctx, tick("96")), "fill not visible yet")
	orders.AssertNumberOfCalls(t, "Buy", 1)

	snapshots.set(withSafetyOrders(testSnapshot(), 1))
	require.NoError(t, e.Evaluate(ctx, tick("93")))
	orders.AssertExpectations(t)
}

func TestEngine_AwaitingClose(t *testing.T) {
	ctx := context.Background()
	snapshots := newFakeSnapshots(testSnapshot())
	orders := &dispatcherMock{}
	orders.On("Sell", mock.Anything, mock.Anything).Return(nil)
	sink := &recordingSink{}

	e := newTestEngine(t, snapshots, testPolicy(), orders, sink)

	require.NoError(t, e.Evaluate(ctx, tick("103")))
	require.NoError(t, e.Evaluate(ctx, tick("104")), "same position still reported")
	orders.AssertNumberOfCalls(t, "Sell", 1)
	require.Len(t, sink.tp, 1)

	snapshots.remove(symbol)
	require.NoError(t, e.Evaluate(ctx, tick("104")))

	reopened := testSnapshot()
	reopened.ID = "pos-2"
	snapshots.set(reopened)
	require.NoError(t, e.Evaluate(ctx, tick("104")))
	orders.AssertNumberOfCalls(t, "Sell", 2)
}

func TestEngine_DownstreamFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatcher failure still records telemetry", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Buy", mock.Anything, mock.Anything).Return(domain.ErrDuplicateOrder)
		sink := &recordingSink{}

		e := newTestEngine(t, newFakeSnapshots(testSnapshot()), testPolicy(), orders, sink)

		err := e.Evaluate(ctx, tick("97"))
		require.ErrorIs(t, err, domain.ErrDownstreamEmission)
		require.Len(t, sink.dca, 1)
		require.True(t, sink.dca[0].NewSO)
		require.Len(t, sink.tp, 1)

		// failed dispatch does not leave the symbol waiting for a fill
		_ = e.Evaluate(ctx, tick("97"))
		orders.AssertNumberOfCalls(t, "Buy", 2)
	})

	t.Run("sink failure does not block orders", func(t *testing.T) {
		orders := &dispatcherMock{}
		orders.On("Sell", mock.Anything, mock.Anything).Return(nil).Once()
		sink := &recordingSink{fail: errors.New("wal closed")}

		e := newTestEngine(t, newFakeSnapshots(testSnapshot()), testPolicy(), orders, sink)

		err := e.Evaluate(ctx, tick("103"))
		require.ErrorIs(t, err, domain.ErrDownstreamEmission)
		orders.AssertExpectations(t)
	})
}

func TestEngine_SkippedTicks(t *testing.T) {
	ctx := context.Background()

	t.Run("no position", func(t *testing.T) {
		sink := &recordingSink{}
		e := newTestEngine(t, newFakeSnapshots(), testPolicy(), &dispatcherMock{}, sink)

		require.NoError(t, e.Evaluate(ctx, tick("100")))
		require.Empty(t, sink.dca)
		require.Empty(t, sink.tp)
	})

	t.Run("invalid position", func(t *testing.T) {
		broken := testSnapshot()
		broken.TotalAmount = decimal.Zero
		sink := &recordingSink{}
		e := newTestEngine(t, newFakeSnapshots(broken), testPolicy(), &dispatcherMock{}, sink)

		require.ErrorIs(t, e.Evaluate(ctx, tick("100")), domain.ErrInvalidPositionState)
		require.Empty(t, sink.tp)
	})

	t.Run("snapshot provider failure", func(t *testing.T) {
		snapshots := newFakeSnapshots(testSnapshot())
		snapshots.err = errors.New("timeout")
		e := newTestEngine(t, snapshots, testPolicy(), &dispatcherMock{}, &recordingSink{})

		require.Error(t, e.Evaluate(ctx, tick("100")))
	})

	t.Run("other tick types", func(t *testing.T) {
		sink := &recordingSink{}
		e := newTestEngine(t, newFakeSnapshots(testSnapshot()), testPolicy(), &dispatcherMock{}, sink)

		require.NoError(t, e.Evaluate(ctx, domain.Tick{Type: "orderbook"}))
		require.Empty(t, sink.tp)
	})
}
