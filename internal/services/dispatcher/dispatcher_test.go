package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
	"github.com/vadiminshakov/dcabot/internal/storage/positions"
	"github.com/vadiminshakov/dcabot/pkg/retrier"
)

const symbol = "BTC/USDT"

var pair = domain.Pair{From: "BTC", To: "USDT"}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type traderMock struct {
	mock.Mock
}

func (m *traderMock) Buy(ctx context.Context, pair domain.Pair, quoteAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	args := m.Called(ctx, pair, quoteAmount, clientOrderID)
	return args.Get(0).(domain.Fill), args.Error(1)
}

func (m *traderMock) Sell(ctx context.Context, pair domain.Pair, baseAmount decimal.Decimal, clientOrderID string) (domain.Fill, error) {
	args := m.Called(ctx, pair, baseAmount, clientOrderID)
	return args.Get(0).(domain.Fill), args.Error(1)
}

type historyMock struct {
	mock.Mock
}

func (m *historyMock) RecordClosedTrade(ctx context.Context, trade domain.ClosedTrade) error {
	return m.Called(ctx, trade).Error(0)
}

func decimalMatcher(expected decimal.Decimal) interface{} {
	return mock.MatchedBy(func(actual decimal.Decimal) bool {
		return expected.Equal(actual)
	})
}

func fill(price, quantity, cost string) domain.Fill {
	return domain.Fill{
		OrderID:  "x",
		Price:    d(price),
		Quantity: d(quantity),
		Cost:     d(cost),
		FeeRate:  d("0.001"),
		Time:     time.Now(),
	}
}

type fixture struct {
	dispatcher *Dispatcher
	trader     *traderMock
	history    *historyMock
	positions  *positions.WALStore
	journal    *Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := positions.NewWALStore(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	journal, err := NewJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Shutdown()
		_ = journal.Close()
	})

	tr := &traderMock{}
	h := &historyMock{}
	r := retrier.New(retrier.WithMaxAttempts(2), retrier.WithInitialInterval(time.Millisecond))

	return &fixture{
		dispatcher: New(zap.NewNop(), tr, store, h, journal, r),
		trader:     tr,
		history:    h,
		positions:  store,
		journal:    journal,
	}
}

func (f *fixture) open(t *testing.T) domain.Snapshot {
	t.Helper()
	f.trader.On("Buy", mock.Anything, pair, decimalMatcher(d("1000")), mock.AnythingOfType("string")).
		Return(fill("100", "9.99", "1000"), nil).Once()

	snapshot, err := f.dispatcher.OpenPosition(context.Background(), "btc_usdt", domain.DirectionLong, d("1000"))
	require.NoError(t, err)
	return snapshot
}

func TestDispatcher_OpenPosition(t *testing.T) {
	f := newFixture(t)
	snapshot := f.open(t)

	require.Equal(t, symbol, snapshot.Symbol)
	require.True(t, snapshot.BaseOrderPrice.Equal(d("100")))
	require.True(t, snapshot.TotalAmount.Equal(d("9.99")))
	require.Empty(t, f.journal.Pending())

	_, err := f.dispatcher.OpenPosition(context.Background(), symbol, domain.DirectionLong, d("1000"))
	require.ErrorIs(t, err, domain.ErrDuplicateOrder)
}

func TestDispatcher_Buy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t)

	f.trader.On("Buy", mock.Anything, pair, decimalMatcher(d("20")), mock.AnythingOfType("string")).
		Return(fill("98", "0.2038", "20"), nil).Once()

	intent := domain.BuyIntent{
		OrderSize: d("20"), Symbol: symbol, SafetyOrder: true, OrderCount: 1,
		OrderType: domain.OrderTypeMarket, SOPercentage: d("2"), Side: domain.SideBuy,
	}
	require.NoError(t, f.dispatcher.Buy(ctx, intent))

	snapshot, err := f.positions.Snapshot(ctx, symbol)
	require.NoError(t, err)
	require.Equal(t, 1, snapshot.SafetyOrderCount())
	require.True(t, snapshot.TotalCost.Equal(d("1020")))
	require.True(t, snapshot.SafetyOrders[0].SOPercentage.Equal(d("2")))

	err = f.dispatcher.Buy(ctx, intent)
	require.ErrorIs(t, err, domain.ErrDuplicateOrder, "same order count is rejected")
	f.trader.AssertExpectations(t)
}

func TestDispatcher_BuyFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t)

	f.trader.On("Buy", mock.Anything, pair, decimalMatcher(d("20")), mock.AnythingOfType("string")).
		Return(domain.Fill{}, errors.New("exchange unavailable")).Twice()

	intent := domain.BuyIntent{OrderSize: d("20"), Symbol: symbol, OrderCount: 1, SOPercentage: d("2")}
	require.Error(t, f.dispatcher.Buy(ctx, intent))
	require.Empty(t, f.journal.Pending())

	f.trader.On("Buy", mock.Anything, pair, decimalMatcher(d("20")), mock.AnythingOfType("string")).
		Return(fill("98", "0.2038", "20"), nil).Once()
	require.NoError(t, f.dispatcher.Buy(ctx, intent))
	f.trader.AssertExpectations(t)
}

func TestDispatcher_BuyDuplicateOnExchangeStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t)

	f.trader.On("Buy", mock.Anything, pair, decimalMatcher(d("20")), mock.AnythingOfType("string")).
		Return(domain.Fill{}, domain.ErrDuplicateOrder).Once()

	intent := domain.BuyIntent{OrderSize: d("20"), Symbol: symbol, OrderCount: 1, SOPercentage: d("2")}
	require.ErrorIs(t, f.dispatcher.Buy(ctx, intent), domain.ErrDuplicateOrder)
	require.Len(t, f.journal.Pending(), 1)

	require.ErrorIs(t, f.dispatcher.Buy(ctx, intent), domain.ErrDuplicateOrder)
	f.trader.AssertNumberOfCalls(t, "Buy", 2)
}

func TestDispatcher_Sell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.open(t)

	f.trader.On("Sell", mock.Anything, pair, decimalMatcher(d("9.99")), mock.AnythingOfType("string")).
		Return(fill("110", "9.99", "1097.8011"), nil).Once()
	f.history.On("RecordClosedTrade", mock.Anything, mock.MatchedBy(func(trade domain.ClosedTrade) bool {
		return trade.Symbol == symbol && trade.Profit.Equal(d("97.8011")) &&
			trade.ProfitPercent.Equal(d("9.78011")) && trade.SOCount == 0
	})).Return(errors.New("db locked")).Once()

	err := f.dispatcher.Sell(ctx, domain.SellIntent{Symbol: symbol, Side: domain.SideSell, TypeSell: domain.TypeSellOrder})
	require.NoError(t, err, "history failure does not fail the sell")

	_, err = f.positions.Snapshot(ctx, symbol)
	require.ErrorIs(t, err, domain.ErrSnapshotUnavailable)

	f.trader.AssertExpectations(t)
	f.history.AssertExpectations(t)
}

func TestJournal_Recovery(t *testing.T) {
	dir := t.TempDir()
	journal, err := NewJournal(dir)
	require.NoError(t, err)

	key := orderKey(domain.SideBuy, "pos-1", 1)
	_, err = journal.Begin(key, symbol, domain.SideBuy, 1, d("20"))
	require.NoError(t, err)
	require.NoError(t, journal.Close())

	reopened, err := NewJournal(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Len(t, reopened.Pending(), 1)
	_, err = reopened.Begin(key, symbol, domain.SideBuy, 1, d("20"))
	require.ErrorIs(t, err, domain.ErrDuplicateOrder)
}
