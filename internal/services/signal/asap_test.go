package signal

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dcabot/internal/domain"
)

type positionsStub struct {
	symbols []string
}

func (p *positionsStub) Symbols() []string { return p.symbols }
func (p *positionsStub) Count() int         { return len(p.symbols) }

type openerMock struct {
	mock.Mock
	positions *positionsStub
}

func (m *openerMock) OpenPosition(ctx context.Context, symbol string, direction domain.Direction, quoteSize decimal.Decimal) (domain.Snapshot, error) {
	args := m.Called(symbol, direction, quoteSize.String())
	if args.Error(1) == nil {
		m.positions.symbols = append(m.positions.symbols, symbol)
	}
	return args.Get(0).(domain.Snapshot), args.Error(1)
}

func newASAP(t *testing.T, maxBots int, symbols ...string) (*ASAP, *positionsStub, *openerMock) {
	t.Helper()

	positions := &positionsStub{}
	orders := &openerMock{positions: positions}
	a, err := NewASAP(zap.NewNop(), ASAPConfig{
		Symbols:       symbols,
		Direction:     domain.DirectionLong,
		BaseOrderSize: decimal.NewFromInt(20),
		MaxBots:       maxBots,
	}, positions, orders)
	require.NoError(t, err)

	return a, positions, orders
}

func TestASAP_OpensMissingPositions(t *testing.T) {
	a, positions, orders := newASAP(t, 5, "BTC/USDT", "ETH/USDT", "SOL/USDT")
	positions.symbols = []string{"ETH/USDT"}

	orders.On("OpenPosition", "BTC/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "BTC/USDT"}, nil).Once()
	orders.On("OpenPosition", "SOL/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "SOL/USDT"}, nil).Once()

	require.Equal(t, 2, a.Scan(context.Background()))
	require.Equal(t, 0, a.Scan(context.Background()))
	orders.AssertExpectations(t)
}

func TestASAP_RespectsMaxBots(t *testing.T) {
	a, _, orders := newASAP(t, 1, "BTC/USDT", "ETH/USDT")

	orders.On("OpenPosition", "BTC/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "BTC/USDT"}, nil).Once()

	require.Equal(t, 1, a.Scan(context.Background()))
	orders.AssertNotCalled(t, "OpenPosition", "ETH/USDT", mock.Anything, mock.Anything)
}

type policyMock struct {
	mock.Mock
}

func (m *policyMock) ActivePolicy(ctx context.Context) (domain.Policy, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Policy), args.Error(1)
}

func TestASAP_TierMaxActiveDeals(t *testing.T) {
	ctx := context.Background()

	t.Run("tier cap below max bots", func(t *testing.T) {
		a, positions, orders := newASAP(t, 5, "BTC/USDT", "ETH/USDT", "SOL/USDT")
		positions.symbols = []string{"BTC/USDT"}

		policies := &policyMock{}
		policies.On("ActivePolicy", mock.Anything).Return(domain.Policy{Tier: domain.TierHigh, MaxActiveDeals: 2}, nil)
		a.WithPolicy(policies)

		orders.On("OpenPosition", "ETH/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "ETH/USDT"}, nil).Once()

		require.Equal(t, 1, a.Scan(ctx))
		orders.AssertNotCalled(t, "OpenPosition", "SOL/USDT", mock.Anything, mock.Anything)
		require.Equal(t, 0, a.Scan(ctx))
	})

	t.Run("tier cap above max bots is ignored", func(t *testing.T) {
		a, _, orders := newASAP(t, 1, "BTC/USDT", "ETH/USDT")

		policies := &policyMock{}
		policies.On("ActivePolicy", mock.Anything).Return(domain.Policy{MaxActiveDeals: 3}, nil)
		a.WithPolicy(policies)

		orders.On("OpenPosition", "BTC/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "BTC/USDT"}, nil).Once()

		require.Equal(t, 1, a.Scan(ctx))
		orders.AssertNotCalled(t, "OpenPosition", "ETH/USDT", mock.Anything, mock.Anything)
	})

	t.Run("policy error keeps max bots", func(t *testing.T) {
		a, _, orders := newASAP(t, 2, "BTC/USDT", "ETH/USDT")

		policies := &policyMock{}
		policies.On("ActivePolicy", mock.Anything).Return(domain.Policy{}, errors.New("balance unavailable"))
		a.WithPolicy(policies)

		orders.On("OpenPosition", mock.Anything, domain.DirectionLong, "20").Return(domain.Snapshot{}, nil).Twice()

		require.Equal(t, 2, a.Scan(ctx))
		orders.AssertExpectations(t)
	})
}

func TestASAP_FailureDoesNotStopScan(t *testing.T) {
	a, _, orders := newASAP(t, 5, "BTC/USDT", "ETH/USDT")

	orders.On("OpenPosition", "BTC/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{}, errors.New("insufficient balance")).Once()
	orders.On("OpenPosition", "ETH/USDT", domain.DirectionLong, "20").Return(domain.Snapshot{Symbol: "ETH/USDT"}, nil).Once()

	require.Equal(t, 1, a.Scan(context.Background()))
	orders.AssertExpectations(t)
}

func TestNewASAP_Validation(t *testing.T) {
	_, err := NewASAP(zap.NewNop(), ASAPConfig{MaxBots: 1}, &positionsStub{}, &openerMock{})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = NewASAP(zap.NewNop(), ASAPConfig{BaseOrderSize: decimal.NewFromInt(10)}, &positionsStub{}, &openerMock{})
	require.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
